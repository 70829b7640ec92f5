package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/repository"
)

// DashboardServiceInterface defines the read path operations
type DashboardServiceInterface interface {
	GetDashboard(ctx context.Context, userExternalID string, now time.Time) (*models.DashboardSnapshot, error)
}

// DashboardService serves the seven-day snapshot. Unknown users are created
// lazily and get a fully zeroed structure; first contact is not an error.
type DashboardService struct {
	userRepo   *repository.UserRepository
	rollupRepo *repository.RollupRepository
}

func NewDashboardService(userRepo *repository.UserRepository, rollupRepo *repository.RollupRepository) *DashboardService {
	return &DashboardService{
		userRepo:   userRepo,
		rollupRepo: rollupRepo,
	}
}

// GetDashboard returns the user's rollup with streakDays recomputed from the
// stored dailyActivity at response time, so the displayed streak reflects
// "up to right now" even when a day boundary passed since the last recompute.
func (s *DashboardService) GetDashboard(ctx context.Context, userExternalID string, now time.Time) (*models.DashboardSnapshot, error) {
	user, err := s.userRepo.GetOrCreateByExternalID(ctx, userExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	rollup, err := s.rollupRepo.FindByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return emptySnapshot(now), nil
		}
		return nil, fmt.Errorf("failed to load rollup: %w", err)
	}

	return &models.DashboardSnapshot{
		LastSessionAt:      rollup.LastSessionAt,
		DailyActivity:      rollup.DailyActivity,
		DailyDurations:     rollup.DailyDurations,
		DailySentiment:     rollup.DailySentiment,
		StreakDays:         models.StreakDays(rollup.DailyActivity),
		AvgDurationMinutes: rollup.AvgDurationMinutes,
		CurrentTone:        rollup.CurrentTone,
		LastUpdated:        rollup.UpdatedAt,
	}, nil
}

// emptySnapshot is the synthesized first-contact state: all-false activity,
// zero durations, null sentiment, neutral tone.
func emptySnapshot(now time.Time) *models.DashboardSnapshot {
	return &models.DashboardSnapshot{
		DailyActivity:      make([]bool, models.WindowDays),
		DailyDurations:     make([]int, models.WindowDays),
		DailySentiment:     make([]*decimal.Decimal, models.WindowDays),
		StreakDays:         0,
		AvgDurationMinutes: 0,
		CurrentTone:        models.ToneNeutral,
		LastUpdated:        now.UTC(),
	}
}
