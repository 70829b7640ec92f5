package handler

import (
	"net/http"
	"time"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/service"
	"sessionpulse/telemetry-service/pkg/logger"
)

// The response shape below is a fixed wire contract with the dashboard
// client: exact field names, seven-element arrays, oldest day first.

type lastSessionPayload struct {
	Timestamp *time.Time `json:"timestamp"`
}

type streakPayload struct {
	Days          int    `json:"days"`
	DailyActivity []bool `json:"dailyActivity"`
}

type avgDurationPayload struct {
	Minutes        int   `json:"minutes"`
	DailyDurations []int `json:"dailyDurations"`
}

type toneTrendPayload struct {
	Current        string     `json:"current"`
	DailySentiment []*float64 `json:"dailySentiment"`
}

type dashboardResponse struct {
	LastSession lastSessionPayload `json:"lastSession"`
	Streak      streakPayload      `json:"streak"`
	AvgDuration avgDurationPayload `json:"avgDuration"`
	ToneTrend   toneTrendPayload   `json:"toneTrend"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// DashboardHandler serves the dashboard read path
type DashboardHandler struct {
	dashboardService service.DashboardServiceInterface
	clock            service.Clock
	log              *logger.Logger
}

func NewDashboardHandler(dashboardService service.DashboardServiceInterface, clock service.Clock, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		clock:            clock,
		log:              log,
	}
}

// GetDashboard handles GET /api/dashboard/{user_id}. Never-seen users get
// the zeroed structure, not an error.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := extractIDFromPath(r.URL.Path, "/api/dashboard/")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	snapshot, err := h.dashboardService.GetDashboard(r.Context(), userID, h.clock.Now())
	if err != nil {
		h.log.WithUserID(userID).Error("Dashboard read failed", "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildDashboardResponse(snapshot))
}

func buildDashboardResponse(snapshot *models.DashboardSnapshot) dashboardResponse {
	sentiment := make([]*float64, len(snapshot.DailySentiment))
	for i, value := range snapshot.DailySentiment {
		if value == nil {
			continue
		}
		f := value.InexactFloat64()
		sentiment[i] = &f
	}

	return dashboardResponse{
		LastSession: lastSessionPayload{Timestamp: snapshot.LastSessionAt},
		Streak: streakPayload{
			Days:          snapshot.StreakDays,
			DailyActivity: snapshot.DailyActivity,
		},
		AvgDuration: avgDurationPayload{
			Minutes:        snapshot.AvgDurationMinutes,
			DailyDurations: snapshot.DailyDurations,
		},
		ToneTrend: toneTrendPayload{
			Current:        snapshot.CurrentTone,
			DailySentiment: sentiment,
		},
		LastUpdated: snapshot.LastUpdated,
	}
}
