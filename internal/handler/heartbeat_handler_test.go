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

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/service"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
)

// mockHeartbeatService implements heartbeat service methods for testing
type mockHeartbeatService struct {
	recordFunc       func(ctx context.Context, in service.HeartbeatInput, now time.Time) (*models.DeviceHeartbeat, error)
	listStatusesFunc func(ctx context.Context, now time.Time) ([]service.DeviceStatus, error)
}

func (m *mockHeartbeatService) Record(ctx context.Context, in service.HeartbeatInput, now time.Time) (*models.DeviceHeartbeat, error) {
	if m.recordFunc != nil {
		return m.recordFunc(ctx, in, now)
	}
	return nil, errors.New("not implemented")
}

func (m *mockHeartbeatService) ListStatuses(ctx context.Context, now time.Time) ([]service.DeviceStatus, error) {
	if m.listStatusesFunc != nil {
		return m.listStatusesFunc(ctx, now)
	}
	return nil, errors.New("not implemented")
}

func TestHeartbeatHandler_RecordHeartbeat(t *testing.T) {
	log := logger.NewLogger("test")
	validator := helpers.NewCustomValidator()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	clock := service.FixedClock{Instant: now}

	t.Run("RecordsHeartbeat", func(t *testing.T) {
		mockService := &mockHeartbeatService{}
		mockService.recordFunc = func(ctx context.Context, in service.HeartbeatInput, reqNow time.Time) (*models.DeviceHeartbeat, error) {
			assert.Equal(t, "rpi-001", in.DeviceID)
			assert.Equal(t, "1.4.2", in.AgentVersion)
			require.NotNil(t, in.SignalRSSI)
			assert.Equal(t, -58, *in.SignalRSSI)
			require.NotNil(t, in.LatencyMS)
			assert.Equal(t, 120, *in.LatencyMS)
			assert.Equal(t, now, reqNow)
			assert.NotEmpty(t, in.RawPayload)
			return &models.DeviceHeartbeat{DeviceID: in.DeviceID, ServerReceivedAt: reqNow}, nil
		}

		handler := NewHeartbeatHandler(mockService, validator, clock, log)
		req := httptest.NewRequest(http.MethodPost, "/internal/heartbeat", strings.NewReader(`{
			"device_id": "rpi-001",
			"agent_version": "1.4.2",
			"connectivity": "wifi",
			"agent_status": "ok",
			"network": {"signal_rssi": -58, "latency_ms": 120},
			"timestamp": "2026-08-29T11:59:58Z"
		}`))

		rec := httptest.NewRecorder()
		handler.RecordHeartbeat(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	})

	t.Run("MissingFieldsRejected", func(t *testing.T) {
		handler := NewHeartbeatHandler(&mockHeartbeatService{}, validator, clock, log)
		req := httptest.NewRequest(http.MethodPost, "/internal/heartbeat", strings.NewReader(`{"device_id": "rpi-001"}`))

		rec := httptest.NewRecorder()
		handler.RecordHeartbeat(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		fields := decodeBody(t, rec)["fields"].(map[string]interface{})
		assert.Contains(t, fields, "agent_version")
		assert.Contains(t, fields, "connectivity")
		assert.Contains(t, fields, "agent_status")
	})
}

func TestHeartbeatHandler_ListHeartbeats(t *testing.T) {
	log := logger.NewLogger("test")
	validator := helpers.NewCustomValidator()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	clock := service.FixedClock{Instant: now}

	mockService := &mockHeartbeatService{}
	mockService.listStatusesFunc = func(ctx context.Context, reqNow time.Time) ([]service.DeviceStatus, error) {
		return []service.DeviceStatus{
			{DeviceID: "rpi-001", Status: models.DeviceHealthy, LastSeen: now.Add(-time.Minute), Connectivity: "wifi", AgentVersion: "1.4.2"},
			{DeviceID: "rpi-002", Status: models.DeviceDead, LastSeen: now.Add(-time.Hour), Connectivity: "lte", AgentVersion: "1.3.9"},
		}, nil
	}

	handler := NewHeartbeatHandler(mockService, validator, clock, log)
	rec := httptest.NewRecorder()
	handler.ListHeartbeats(rec, httptest.NewRequest(http.MethodGet, "/api/heartbeats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Devices []struct {
			DeviceID string `json:"deviceId"`
			Status   string `json:"status"`
		} `json:"devices"`
		AsOf                  time.Time `json:"asOf"`
		StaleThresholdMinutes int       `json:"staleThresholdMinutes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Devices, 2)
	assert.Equal(t, "rpi-001", body.Devices[0].DeviceID)
	assert.Equal(t, models.DeviceHealthy, body.Devices[0].Status)
	assert.Equal(t, models.DeviceDead, body.Devices[1].Status)
	assert.Equal(t, service.StaleThresholdMinutes, body.StaleThresholdMinutes)
	assert.True(t, now.Equal(body.AsOf))
}
