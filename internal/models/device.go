package models

import (
	"encoding/json"
	"time"
)

const (
	CommandReboot         = "REBOOT"
	CommandRestartService = "RESTART_SERVICE"
	CommandUploadLogs     = "UPLOAD_LOGS"
	CommandUpdateNow      = "UPDATE_NOW"
)

const (
	CommandStatusPending   = "PENDING"
	CommandStatusPickedUp  = "PICKED_UP"
	CommandStatusCompleted = "COMPLETED"
	CommandStatusFailed    = "FAILED"
)

const (
	DeviceHealthy  = "healthy"
	DeviceDegraded = "degraded"
	DeviceDead     = "dead"
)

// DeviceHeartbeat is the latest heartbeat per device, upserted on every
// report. Raw payload history lives in device_heartbeat_events.
type DeviceHeartbeat struct {
	DeviceID         string     `db:"device_id"`
	AgentVersion     string     `db:"agent_version"`
	Connectivity     string     `db:"connectivity"`
	SignalRSSI       *int       `db:"signal_rssi"`
	LatencyMS        *int       `db:"latency_ms"`
	AgentStatus      string     `db:"agent_status"`
	LastSessionAt    *time.Time `db:"last_session_at"`
	BootTime         *time.Time `db:"boot_time"`
	ServerReceivedAt time.Time  `db:"server_received_at"`
}

type DeviceHeartbeatEvent struct {
	ID               uint64          `db:"id"`
	DeviceID         string          `db:"device_id"`
	RawPayload       json.RawMessage `db:"raw_payload"`
	ServerReceivedAt time.Time       `db:"server_received_at"`
}

// DeviceCommand is a queued remote command. Lifecycle:
// PENDING -> PICKED_UP -> COMPLETED | FAILED.
type DeviceCommand struct {
	ID           string    `db:"id"`
	DeviceID     string    `db:"device_id"`
	CommandType  string    `db:"command_type"`
	Status       string    `db:"status"`
	ErrorMessage *string   `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type DeviceLogSnapshot struct {
	ID         uint64    `db:"id"`
	DeviceID   string    `db:"device_id"`
	LogContent string    `db:"log_content"`
	CreatedAt  time.Time `db:"created_at"`
}

// ValidCommandType reports whether t is one of the supported remote commands.
func ValidCommandType(t string) bool {
	switch t {
	case CommandReboot, CommandRestartService, CommandUploadLogs, CommandUpdateNow:
		return true
	}
	return false
}
