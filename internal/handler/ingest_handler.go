package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"sessionpulse/telemetry-service/internal/service"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
)

const naiveTimestampLayout = "2006-01-02T15:04:05.999999999"

type sessionSummaryRequest struct {
	SessionID       string   `json:"session_id" validate:"required"`
	UserExternalID  string   `json:"user_external_id" validate:"required"`
	StartedAt       string   `json:"started_at" validate:"required"`
	DurationSeconds int      `json:"duration_seconds" validate:"gte=0,lte=86400"`
	SentimentScore  *float64 `json:"sentiment_score" validate:"omitempty,gte=0,lte=1"`
	DeviceID        *string  `json:"device_id"`
}

// IngestHandler serves the internal session-summary ingestion route
type IngestHandler struct {
	ingestService service.IngestServiceInterface
	validator     *helpers.CustomValidator
	log           *logger.Logger
}

func NewIngestHandler(ingestService service.IngestServiceInterface, validator *helpers.CustomValidator, log *logger.Logger) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		validator:     validator,
		log:           log,
	}
}

// IngestSessionSummary handles POST /internal/ingest/session_summary.
// Duplicate session ids are a successful outcome, not an error.
func (h *IngestHandler) IngestSessionSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req sessionSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if fields := h.validator.Validate(req); fields != nil {
		writeValidationError(w, fields)
		return
	}

	startedAt, errMsg := parseStartedAt(req.StartedAt)
	if errMsg != "" {
		writeValidationError(w, map[string]string{"started_at": errMsg})
		return
	}

	deviceID := req.DeviceID
	if headerID := r.Header.Get("X-Device-ID"); headerID != "" {
		deviceID = &headerID
	}

	outcome, err := h.ingestService.IngestSessionSummary(r.Context(), service.IngestInput{
		SessionID:       req.SessionID,
		UserExternalID:  req.UserExternalID,
		DeviceID:        deviceID,
		StartedAt:       startedAt,
		DurationSeconds: req.DurationSeconds,
		SentimentScore:  req.SentimentScore,
	})
	if err != nil {
		h.log.WithUserID(req.UserExternalID).Error("Session ingestion failed", "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

// parseStartedAt parses the caller's timestamp. A timestamp without explicit
// timezone information is a caller-facing validation error, never a silent
// UTC assumption.
func parseStartedAt(value string) (time.Time, string) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), ""
	}
	if _, err := time.Parse(naiveTimestampLayout, value); err == nil {
		return time.Time{}, "started_at must include timezone information"
	}
	return time.Time{}, "started_at must be an RFC 3339 timestamp"
}
