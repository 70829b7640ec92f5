package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/repository"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
)

const logSnapshotListLimit = 20

// CommandServiceInterface defines remote device command operations
type CommandServiceInterface interface {
	Queue(ctx context.Context, deviceID, commandType string) (*models.DeviceCommand, error)
	PollPending(ctx context.Context, deviceID string) (*models.DeviceCommand, error)
	ReportStatus(ctx context.Context, commandID, status string, errorMessage *string) error
	SaveLogSnapshot(ctx context.Context, deviceID, content string) error
	ListLogSnapshots(ctx context.Context, deviceID string) ([]*models.DeviceLogSnapshot, error)
}

// CommandService queues remote commands for devices and tracks their
// lifecycle as agents poll and report back.
type CommandService struct {
	commandRepo *repository.CommandRepository
	log         *logger.Logger
}

func NewCommandService(commandRepo *repository.CommandRepository, log *logger.Logger) *CommandService {
	return &CommandService{
		commandRepo: commandRepo,
		log:         log,
	}
}

// Queue creates a new PENDING command for a device
func (s *CommandService) Queue(ctx context.Context, deviceID, commandType string) (*models.DeviceCommand, error) {
	if !models.ValidCommandType(commandType) {
		return nil, helpers.NewValidationError("command_type",
			"command_type must be one of REBOOT, RESTART_SERVICE, UPLOAD_LOGS, UPDATE_NOW")
	}

	cmd := &models.DeviceCommand{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		CommandType: commandType,
		Status:      models.CommandStatusPending,
	}

	if err := s.commandRepo.Queue(ctx, cmd); err != nil {
		return nil, fmt.Errorf("failed to queue command: %w", err)
	}

	s.log.WithDeviceID(deviceID).Info("Command queued",
		"command_id", cmd.ID,
		"command_type", commandType,
	)
	return cmd, nil
}

// PollPending hands the oldest pending command to a polling agent, marking
// it PICKED_UP. Returns nil when nothing is queued.
func (s *CommandService) PollPending(ctx context.Context, deviceID string) (*models.DeviceCommand, error) {
	cmd, err := s.commandRepo.PickUpPending(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to poll commands: %w", err)
	}
	return cmd, nil
}

// ReportStatus records the terminal status a device reported after executing
// a command.
func (s *CommandService) ReportStatus(ctx context.Context, commandID, status string, errorMessage *string) error {
	if _, err := uuid.Parse(commandID); err != nil {
		return helpers.NewValidationError("command_id", "command_id must be a valid UUID")
	}
	if status != models.CommandStatusCompleted && status != models.CommandStatusFailed {
		return helpers.NewValidationError("status", "status must be COMPLETED or FAILED")
	}

	updated, err := s.commandRepo.UpdateStatus(ctx, commandID, status, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update command status: %w", err)
	}
	if !updated {
		return helpers.NewValidationError("command_id", "command not found")
	}

	return nil
}

// SaveLogSnapshot stores uploaded log content for a device
func (s *CommandService) SaveLogSnapshot(ctx context.Context, deviceID, content string) error {
	if err := s.commandRepo.SaveLogSnapshot(ctx, deviceID, content); err != nil {
		return fmt.Errorf("failed to save log snapshot: %w", err)
	}
	return nil
}

// ListLogSnapshots retrieves the newest log snapshots for a device
func (s *CommandService) ListLogSnapshots(ctx context.Context, deviceID string) ([]*models.DeviceLogSnapshot, error) {
	snapshots, err := s.commandRepo.ListLogSnapshots(ctx, deviceID, logSnapshotListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list log snapshots: %w", err)
	}
	return snapshots, nil
}
