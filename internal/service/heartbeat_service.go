package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/repository"
	"sessionpulse/telemetry-service/pkg/logger"
)

const (
	// StaleThresholdMinutes marks a device dead when its latest heartbeat
	// is older than this.
	StaleThresholdMinutes = 20

	// healthyLatencyMS is the listing threshold for a fully healthy device
	healthyLatencyMS = 300

	eventRetentionDays = 30
	cleanupDenominator = 100 // 1-in-100 chance per ingest
)

// HeartbeatInput is one heartbeat report from a device agent
type HeartbeatInput struct {
	DeviceID      string
	AgentVersion  string
	Connectivity  string
	SignalRSSI    *int
	LatencyMS     *int
	AgentStatus   string
	LastSessionAt *time.Time
	BootTime      *time.Time
	RawPayload    json.RawMessage
}

// DeviceStatus is one row of the fleet listing
type DeviceStatus struct {
	DeviceID      string
	Status        string
	LastSeen      time.Time
	Connectivity  string
	AgentVersion  string
	SignalRSSI    *int
	LatencyMS     *int
	LastSessionAt *time.Time
}

// HeartbeatServiceInterface defines device heartbeat operations
type HeartbeatServiceInterface interface {
	Record(ctx context.Context, in HeartbeatInput, now time.Time) (*models.DeviceHeartbeat, error)
	ListStatuses(ctx context.Context, now time.Time) ([]DeviceStatus, error)
}

// HeartbeatService upserts the latest heartbeat per device and keeps the raw
// event history, pruned probabilistically to bound table growth.
type HeartbeatService struct {
	heartbeatRepo *repository.HeartbeatRepository
	log           *logger.Logger

	// cleanupChance is 1-in-N per Record; 0 disables cleanup (tests)
	cleanupChance int
}

func NewHeartbeatService(heartbeatRepo *repository.HeartbeatRepository, log *logger.Logger) *HeartbeatService {
	return &HeartbeatService{
		heartbeatRepo: heartbeatRepo,
		log:           log,
		cleanupChance: cleanupDenominator,
	}
}

// Record upserts the device's latest heartbeat and appends the raw payload
// to the event history.
func (s *HeartbeatService) Record(ctx context.Context, in HeartbeatInput, now time.Time) (*models.DeviceHeartbeat, error) {
	hb := &models.DeviceHeartbeat{
		DeviceID:         in.DeviceID,
		AgentVersion:     in.AgentVersion,
		Connectivity:     in.Connectivity,
		SignalRSSI:       in.SignalRSSI,
		LatencyMS:        in.LatencyMS,
		AgentStatus:      in.AgentStatus,
		LastSessionAt:    in.LastSessionAt,
		BootTime:         in.BootTime,
		ServerReceivedAt: now.UTC(),
	}

	if err := s.heartbeatRepo.UpsertLatest(ctx, hb); err != nil {
		return nil, fmt.Errorf("failed to upsert heartbeat: %w", err)
	}

	if err := s.heartbeatRepo.InsertEvent(ctx, in.DeviceID, in.RawPayload, now); err != nil {
		return nil, fmt.Errorf("failed to record heartbeat event: %w", err)
	}

	s.maybeCleanupEvents(ctx, now)

	return hb, nil
}

// ListStatuses returns heartbeat status for all devices ordered by recency,
// marking stale devices as dead.
func (s *HeartbeatService) ListStatuses(ctx context.Context, now time.Time) ([]DeviceStatus, error) {
	heartbeats, err := s.heartbeatRepo.ListLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}

	cutoff := now.UTC().Add(-StaleThresholdMinutes * time.Minute)
	statuses := make([]DeviceStatus, 0, len(heartbeats))
	for _, hb := range heartbeats {
		statuses = append(statuses, DeviceStatus{
			DeviceID:      hb.DeviceID,
			Status:        classifyDevice(hb, cutoff),
			LastSeen:      hb.ServerReceivedAt,
			Connectivity:  hb.Connectivity,
			AgentVersion:  hb.AgentVersion,
			SignalRSSI:    hb.SignalRSSI,
			LatencyMS:     hb.LatencyMS,
			LastSessionAt: hb.LastSessionAt,
		})
	}

	return statuses, nil
}

func (s *HeartbeatService) maybeCleanupEvents(ctx context.Context, now time.Time) {
	if s.cleanupChance <= 0 || rand.Intn(s.cleanupChance) != 0 {
		return
	}

	cutoff := now.UTC().AddDate(0, 0, -eventRetentionDays)
	deleted, err := s.heartbeatRepo.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		s.log.Warn("Heartbeat event cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		s.log.Info("Heartbeat events cleaned up", "deleted_count", deleted)
	}
}

func classifyDevice(hb *models.DeviceHeartbeat, cutoff time.Time) string {
	if hb.ServerReceivedAt.Before(cutoff) {
		return models.DeviceDead
	}
	if hb.AgentStatus == "ok" && hb.LatencyMS != nil && *hb.LatencyMS < healthyLatencyMS {
		return models.DeviceHealthy
	}
	return models.DeviceDegraded
}
