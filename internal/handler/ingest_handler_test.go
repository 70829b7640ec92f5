package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionpulse/telemetry-service/internal/service"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
)

// mockIngestService implements ingest service methods for testing
type mockIngestService struct {
	ingestFunc func(ctx context.Context, in service.IngestInput) (service.IngestOutcome, error)
}

func (m *mockIngestService) IngestSessionSummary(ctx context.Context, in service.IngestInput) (service.IngestOutcome, error) {
	if m.ingestFunc != nil {
		return m.ingestFunc(ctx, in)
	}
	return "", errors.New("not implemented")
}

func newIngestRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/internal/ingest/session_summary", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIngestHandler_IngestSessionSummary(t *testing.T) {
	log := logger.NewLogger("test")
	validator := helpers.NewCustomValidator()

	t.Run("StoresNewSession", func(t *testing.T) {
		mockService := &mockIngestService{}
		mockService.ingestFunc = func(ctx context.Context, in service.IngestInput) (service.IngestOutcome, error) {
			assert.Equal(t, "sess-1", in.SessionID)
			assert.Equal(t, "user-1", in.UserExternalID)
			assert.Equal(t, time.Date(2026, 8, 29, 7, 30, 0, 0, time.UTC), in.StartedAt)
			assert.Equal(t, 600, in.DurationSeconds)
			require.NotNil(t, in.SentimentScore)
			assert.Equal(t, 0.75, *in.SentimentScore)
			return service.OutcomeOK, nil
		}

		handler := NewIngestHandler(mockService, validator, log)
		rec := httptest.NewRecorder()
		handler.IngestSessionSummary(rec, newIngestRequest(`{
			"session_id": "sess-1",
			"user_external_id": "user-1",
			"started_at": "2026-08-29T09:30:00+02:00",
			"duration_seconds": 600,
			"sentiment_score": 0.75
		}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	})

	t.Run("DuplicateIsSuccess", func(t *testing.T) {
		mockService := &mockIngestService{}
		mockService.ingestFunc = func(ctx context.Context, in service.IngestInput) (service.IngestOutcome, error) {
			return service.OutcomeDuplicate, nil
		}

		handler := NewIngestHandler(mockService, validator, log)
		rec := httptest.NewRecorder()
		handler.IngestSessionSummary(rec, newIngestRequest(`{
			"session_id": "sess-1",
			"user_external_id": "user-1",
			"started_at": "2026-08-29T09:30:00Z",
			"duration_seconds": 600
		}`))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "duplicate", decodeBody(t, rec)["status"])
	})

	t.Run("NaiveTimestampRejected", func(t *testing.T) {
		handler := NewIngestHandler(&mockIngestService{}, validator, log)
		rec := httptest.NewRecorder()
		handler.IngestSessionSummary(rec, newIngestRequest(`{
			"session_id": "sess-1",
			"user_external_id": "user-1",
			"started_at": "2026-08-29T09:30:00",
			"duration_seconds": 600
		}`))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "validation_error", body["error"])
		fields := body["fields"].(map[string]interface{})
		assert.Equal(t, "started_at must include timezone information", fields["started_at"])
	})

	t.Run("MissingFieldsRejected", func(t *testing.T) {
		handler := NewIngestHandler(&mockIngestService{}, validator, log)
		rec := httptest.NewRecorder()
		handler.IngestSessionSummary(rec, newIngestRequest(`{"duration_seconds": 90000}`))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fields := decodeBody(t, rec)["fields"].(map[string]interface{})
		assert.Contains(t, fields, "session_id")
		assert.Contains(t, fields, "user_external_id")
		assert.Contains(t, fields, "started_at")
		assert.Contains(t, fields, "duration_seconds")
	})

	t.Run("HeaderDeviceIDOverridesBody", func(t *testing.T) {
		mockService := &mockIngestService{}
		mockService.ingestFunc = func(ctx context.Context, in service.IngestInput) (service.IngestOutcome, error) {
			require.NotNil(t, in.DeviceID)
			assert.Equal(t, "rpi-007", *in.DeviceID)
			return service.OutcomeOK, nil
		}

		handler := NewIngestHandler(mockService, validator, log)
		req := newIngestRequest(`{
			"session_id": "sess-1",
			"user_external_id": "user-1",
			"started_at": "2026-08-29T09:30:00Z",
			"duration_seconds": 600,
			"device_id": "rpi-001"
		}`)
		req.Header.Set("X-Device-ID", "rpi-007")

		rec := httptest.NewRecorder()
		handler.IngestSessionSummary(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("MalformedJSONRejected", func(t *testing.T) {
		handler := NewIngestHandler(&mockIngestService{}, validator, log)
		rec := httptest.NewRecorder()
		handler.IngestSessionSummary(rec, newIngestRequest(`{not json`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		handler := NewIngestHandler(&mockIngestService{}, validator, log)
		rec := httptest.NewRecorder()
		handler.IngestSessionSummary(rec, httptest.NewRequest(http.MethodGet, "/internal/ingest/session_summary", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestParseStartedAt(t *testing.T) {
	t.Run("OffsetNormalizedToUTC", func(t *testing.T) {
		parsed, errMsg := parseStartedAt("2026-08-29T09:30:00+02:00")
		require.Empty(t, errMsg)
		assert.Equal(t, time.Date(2026, 8, 29, 7, 30, 0, 0, time.UTC), parsed)
	})

	t.Run("NaiveTimestampNamed", func(t *testing.T) {
		_, errMsg := parseStartedAt("2026-08-29T09:30:00.123456")
		assert.Equal(t, "started_at must include timezone information", errMsg)
	})

	t.Run("GarbageRejected", func(t *testing.T) {
		_, errMsg := parseStartedAt("yesterday at nine")
		assert.Equal(t, "started_at must be an RFC 3339 timestamp", errMsg)
	})
}
