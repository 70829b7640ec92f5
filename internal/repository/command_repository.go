package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sessionpulse/telemetry-service/internal/models"
)

// CommandRepository handles device_commands and device_log_snapshots table
// operations
type CommandRepository struct {
	db *sql.DB
}

func NewCommandRepository(db *sql.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Queue creates a new PENDING command for a device
func (r *CommandRepository) Queue(ctx context.Context, cmd *models.DeviceCommand) error {
	query := `
		INSERT INTO device_commands (id, device_id, command_type, status, created_at, updated_at)
		VALUES (?, ?, ?, 'PENDING', NOW(), NOW())
	`

	_, err := r.db.ExecContext(ctx, query, cmd.ID, cmd.DeviceID, cmd.CommandType)
	return err
}

// PickUpPending claims the oldest pending command for a device and marks it
// PICKED_UP. SELECT ... FOR UPDATE inside one transaction keeps two polling
// agents from claiming the same command. Returns nil when nothing is queued.
func (r *CommandRepository) PickUpPending(ctx context.Context, deviceID string) (*models.DeviceCommand, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, device_id, command_type, status, error_message, created_at, updated_at
		FROM device_commands
		WHERE device_id = ? AND status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE
	`

	cmd, err := scanCommand(tx.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	update := "UPDATE device_commands SET status = 'PICKED_UP', updated_at = NOW() WHERE id = ?"
	if _, err := tx.ExecContext(ctx, update, cmd.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pickup: %w", err)
	}

	cmd.Status = models.CommandStatusPickedUp
	return cmd, nil
}

// UpdateStatus records the terminal status a device reported for a command.
// Returns false when the command id is unknown.
func (r *CommandRepository) UpdateStatus(ctx context.Context, commandID, status string, errorMessage *string) (bool, error) {
	query := `
		UPDATE device_commands
		SET status = ?, error_message = ?, updated_at = NOW()
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, status, errorMessage, commandID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SaveLogSnapshot stores uploaded log content for a device
func (r *CommandRepository) SaveLogSnapshot(ctx context.Context, deviceID, content string) error {
	query := `
		INSERT INTO device_log_snapshots (device_id, log_content, created_at)
		VALUES (?, ?, NOW())
	`

	_, err := r.db.ExecContext(ctx, query, deviceID, content)
	return err
}

// ListLogSnapshots retrieves the newest log snapshots for a device
func (r *CommandRepository) ListLogSnapshots(ctx context.Context, deviceID string, limit int) ([]*models.DeviceLogSnapshot, error) {
	query := `
		SELECT id, device_id, log_content, created_at
		FROM device_log_snapshots
		WHERE device_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*models.DeviceLogSnapshot
	for rows.Next() {
		var snapshot models.DeviceLogSnapshot
		if err := rows.Scan(&snapshot.ID, &snapshot.DeviceID, &snapshot.LogContent, &snapshot.CreatedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, &snapshot)
	}

	return snapshots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommand(row rowScanner) (*models.DeviceCommand, error) {
	var cmd models.DeviceCommand
	var errorMessage sql.NullString

	err := row.Scan(
		&cmd.ID,
		&cmd.DeviceID,
		&cmd.CommandType,
		&cmd.Status,
		&errorMessage,
		&cmd.CreatedAt,
		&cmd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorMessage.Valid {
		cmd.ErrorMessage = &errorMessage.String
	}
	return &cmd, nil
}
