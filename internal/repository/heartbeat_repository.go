package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"sessionpulse/telemetry-service/internal/models"
)

// HeartbeatRepository handles device_latest_heartbeat and
// device_heartbeat_events table operations
type HeartbeatRepository struct {
	db *sql.DB
}

func NewHeartbeatRepository(db *sql.DB) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

// UpsertLatest replaces the device's latest heartbeat in place
func (r *HeartbeatRepository) UpsertLatest(ctx context.Context, hb *models.DeviceHeartbeat) error {
	query := `
		INSERT INTO device_latest_heartbeat
			(device_id, agent_version, connectivity, signal_rssi, latency_ms, agent_status, last_session_at, boot_time, server_received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			agent_version = VALUES(agent_version),
			connectivity = VALUES(connectivity),
			signal_rssi = VALUES(signal_rssi),
			latency_ms = VALUES(latency_ms),
			agent_status = VALUES(agent_status),
			last_session_at = VALUES(last_session_at),
			boot_time = VALUES(boot_time),
			server_received_at = VALUES(server_received_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		hb.DeviceID,
		hb.AgentVersion,
		hb.Connectivity,
		hb.SignalRSSI,
		hb.LatencyMS,
		hb.AgentStatus,
		nullableTime(hb.LastSessionAt),
		nullableTime(hb.BootTime),
		hb.ServerReceivedAt.UTC(),
	)
	return err
}

// InsertEvent appends the raw heartbeat payload to the history table
func (r *HeartbeatRepository) InsertEvent(ctx context.Context, deviceID string, payload json.RawMessage, receivedAt time.Time) error {
	query := `
		INSERT INTO device_heartbeat_events (device_id, raw_payload, server_received_at)
		VALUES (?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, deviceID, []byte(payload), receivedAt.UTC())
	return err
}

// ListLatest retrieves the latest heartbeat per device, most recent first
func (r *HeartbeatRepository) ListLatest(ctx context.Context) ([]*models.DeviceHeartbeat, error) {
	query := `
		SELECT device_id, agent_version, connectivity, signal_rssi, latency_ms, agent_status, last_session_at, boot_time, server_received_at
		FROM device_latest_heartbeat
		ORDER BY server_received_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var heartbeats []*models.DeviceHeartbeat
	for rows.Next() {
		var hb models.DeviceHeartbeat
		var signalRSSI, latencyMS sql.NullInt64
		var lastSessionAt, bootTime sql.NullTime

		if err := rows.Scan(
			&hb.DeviceID,
			&hb.AgentVersion,
			&hb.Connectivity,
			&signalRSSI,
			&latencyMS,
			&hb.AgentStatus,
			&lastSessionAt,
			&bootTime,
			&hb.ServerReceivedAt,
		); err != nil {
			return nil, err
		}

		if signalRSSI.Valid {
			v := int(signalRSSI.Int64)
			hb.SignalRSSI = &v
		}
		if latencyMS.Valid {
			v := int(latencyMS.Int64)
			hb.LatencyMS = &v
		}
		if lastSessionAt.Valid {
			t := lastSessionAt.Time
			hb.LastSessionAt = &t
		}
		if bootTime.Valid {
			t := bootTime.Time
			hb.BootTime = &t
		}

		heartbeats = append(heartbeats, &hb)
	}

	return heartbeats, rows.Err()
}

// DeleteEventsBefore prunes heartbeat history older than the cutoff.
// Called probabilistically from the ingest path to bound table growth.
func (r *HeartbeatRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM device_heartbeat_events WHERE server_received_at < ?",
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
