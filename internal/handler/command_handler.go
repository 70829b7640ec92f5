package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/service"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
)

type commandCreateRequest struct {
	DeviceID    string `json:"device_id" validate:"required"`
	CommandType string `json:"command_type" validate:"required,command_type"`
}

type commandStatusRequest struct {
	Status       string  `json:"status" validate:"required,command_report_status"`
	ErrorMessage *string `json:"error_message"`
}

type logUploadRequest struct {
	DeviceID   string `json:"device_id" validate:"required"`
	LogContent string `json:"log_content" validate:"required"`
}

type commandPayload struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"deviceId"`
	CommandType string    `json:"commandType"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CommandHandler serves admin command queueing, agent polling and status
// reporting, and device log snapshots
type CommandHandler struct {
	commandService service.CommandServiceInterface
	validator      *helpers.CustomValidator
	log            *logger.Logger
}

func NewCommandHandler(commandService service.CommandServiceInterface, validator *helpers.CustomValidator, log *logger.Logger) *CommandHandler {
	return &CommandHandler{
		commandService: commandService,
		validator:      validator,
		log:            log,
	}
}

// CreateCommand handles POST /admin/commands
func (h *CommandHandler) CreateCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req commandCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if fields := h.validator.Validate(req); fields != nil {
		writeValidationError(w, fields)
		return
	}

	cmd, err := h.commandService.Queue(r.Context(), req.DeviceID, req.CommandType)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, buildCommandPayload(cmd))
}

// PollPending handles GET /internal/commands/pending?device_id=
func (h *CommandHandler) PollPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	cmd, err := h.commandService.PollPending(r.Context(), deviceID)
	if err != nil {
		h.log.WithDeviceID(deviceID).Error("Command poll failed", "error", err)
		writeServiceError(w, err)
		return
	}

	if cmd == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"command": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"command": buildCommandPayload(cmd)})
}

// ReportStatus handles POST /internal/commands/{id}/status
func (h *CommandHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	commandID := extractCommandID(r.URL.Path)
	if commandID == "" {
		writeError(w, http.StatusBadRequest, "command id is required")
		return
	}

	var req commandStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if fields := h.validator.Validate(req); fields != nil {
		writeValidationError(w, fields)
		return
	}

	if err := h.commandService.ReportStatus(r.Context(), commandID, req.Status, req.ErrorMessage); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UploadLogs handles POST /internal/ingest/logs
func (h *CommandHandler) UploadLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req logUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if fields := h.validator.Validate(req); fields != nil {
		writeValidationError(w, fields)
		return
	}

	if err := h.commandService.SaveLogSnapshot(r.Context(), req.DeviceID, req.LogContent); err != nil {
		h.log.WithDeviceID(req.DeviceID).Error("Log upload failed", "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetDeviceLogs handles GET /admin/logs/{device_id}
func (h *CommandHandler) GetDeviceLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	deviceID := extractIDFromPath(r.URL.Path, "/admin/logs/")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device id is required")
		return
	}

	snapshots, err := h.commandService.ListLogSnapshots(r.Context(), deviceID)
	if err != nil {
		h.log.WithDeviceID(deviceID).Error("Log listing failed", "error", err)
		writeServiceError(w, err)
		return
	}

	logs := make([]map[string]interface{}, 0, len(snapshots))
	for _, snapshot := range snapshots {
		logs = append(logs, map[string]interface{}{
			"id":         snapshot.ID,
			"deviceId":   snapshot.DeviceID,
			"logContent": snapshot.LogContent,
			"createdAt":  snapshot.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func buildCommandPayload(cmd *models.DeviceCommand) commandPayload {
	return commandPayload{
		ID:          cmd.ID,
		DeviceID:    cmd.DeviceID,
		CommandType: cmd.CommandType,
		Status:      cmd.Status,
		CreatedAt:   cmd.CreatedAt,
		UpdatedAt:   cmd.UpdatedAt,
	}
}

// extractCommandID pulls the id out of /internal/commands/{id}/status
func extractCommandID(path string) string {
	trimmed := strings.TrimPrefix(path, "/internal/commands/")
	trimmed = strings.TrimSuffix(strings.Trim(trimmed, "/"), "/status")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return ""
	}
	return trimmed
}
