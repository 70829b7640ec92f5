package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"sessionpulse/telemetry-service/internal/service"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
)

type heartbeatNetworkPayload struct {
	SignalRSSI *int `json:"signal_rssi"`
	LatencyMS  *int `json:"latency_ms"`
}

type heartbeatRequest struct {
	DeviceID      string                  `json:"device_id" validate:"required"`
	AgentVersion  string                  `json:"agent_version" validate:"required"`
	Connectivity  string                  `json:"connectivity" validate:"required"`
	AgentStatus   string                  `json:"agent_status" validate:"required"`
	Network       heartbeatNetworkPayload `json:"network"`
	LastSessionAt *time.Time              `json:"last_session_at"`
	BootTime      *time.Time              `json:"boot_time"`
	Timestamp     *time.Time              `json:"timestamp"`
}

type deviceStatusPayload struct {
	DeviceID      string     `json:"deviceId"`
	Status        string     `json:"status"`
	LastSeen      time.Time  `json:"lastSeen"`
	Connectivity  string     `json:"connectivity"`
	AgentVersion  string     `json:"agentVersion"`
	SignalRSSI    *int       `json:"signalRssi"`
	LatencyMS     *int       `json:"latencyMs"`
	LastSessionAt *time.Time `json:"lastSessionAt"`
}

type heartbeatSummaryResponse struct {
	Devices               []deviceStatusPayload `json:"devices"`
	AsOf                  time.Time             `json:"asOf"`
	StaleThresholdMinutes int                   `json:"staleThresholdMinutes"`
}

// HeartbeatHandler serves device heartbeat ingestion and the fleet listing
type HeartbeatHandler struct {
	heartbeatService service.HeartbeatServiceInterface
	validator        *helpers.CustomValidator
	clock            service.Clock
	log              *logger.Logger
}

func NewHeartbeatHandler(heartbeatService service.HeartbeatServiceInterface, validator *helpers.CustomValidator, clock service.Clock, log *logger.Logger) *HeartbeatHandler {
	return &HeartbeatHandler{
		heartbeatService: heartbeatService,
		validator:        validator,
		clock:            clock,
		log:              log,
	}
}

// RecordHeartbeat handles POST /internal/heartbeat
func (h *HeartbeatHandler) RecordHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if fields := h.validator.Validate(req); fields != nil {
		writeValidationError(w, fields)
		return
	}

	raw, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid heartbeat payload")
		return
	}

	now := h.clock.Now()
	hb, err := h.heartbeatService.Record(r.Context(), service.HeartbeatInput{
		DeviceID:      req.DeviceID,
		AgentVersion:  req.AgentVersion,
		Connectivity:  req.Connectivity,
		SignalRSSI:    req.Network.SignalRSSI,
		LatencyMS:     req.Network.LatencyMS,
		AgentStatus:   req.AgentStatus,
		LastSessionAt: req.LastSessionAt,
		BootTime:      req.BootTime,
		RawPayload:    raw,
	}, now)
	if err != nil {
		h.log.WithDeviceID(req.DeviceID).Error("Heartbeat ingestion failed", "error", err)
		writeServiceError(w, err)
		return
	}

	entry := h.log.WithDeviceID(req.DeviceID).WithField("agent_version", req.AgentVersion)
	if req.Timestamp != nil {
		age := hb.ServerReceivedAt.Sub(*req.Timestamp).Seconds()
		if age < 0 {
			age = 0
		}
		entry = entry.WithField("heartbeat_age_seconds", age)
	}
	entry.Info("Heartbeat ingested")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListHeartbeats handles GET /api/heartbeats
func (h *HeartbeatHandler) ListHeartbeats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := h.clock.Now()
	statuses, err := h.heartbeatService.ListStatuses(r.Context(), now)
	if err != nil {
		h.log.Error("Heartbeat listing failed", "error", err)
		writeServiceError(w, err)
		return
	}

	devices := make([]deviceStatusPayload, 0, len(statuses))
	for _, status := range statuses {
		devices = append(devices, deviceStatusPayload{
			DeviceID:      status.DeviceID,
			Status:        status.Status,
			LastSeen:      status.LastSeen,
			Connectivity:  status.Connectivity,
			AgentVersion:  status.AgentVersion,
			SignalRSSI:    status.SignalRSSI,
			LatencyMS:     status.LatencyMS,
			LastSessionAt: status.LastSessionAt,
		})
	}

	writeJSON(w, http.StatusOK, heartbeatSummaryResponse{
		Devices:               devices,
		AsOf:                  now,
		StaleThresholdMinutes: service.StaleThresholdMinutes,
	})
}
