package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/repository"
	"sessionpulse/telemetry-service/pkg/logger"
)

// ErrWindowLength guards the fixed wire contract: a rollup computed over a
// window other than seven days would produce wrong-shaped arrays.
var ErrWindowLength = errors.New("rollup window is locked to 7 days")

// Tone thresholds over the newest non-null daily sentiment mean.
var (
	tonePositiveFloor = decimal.RequireFromString("0.61")
	toneNeutralFloor  = decimal.RequireFromString("0.40")
)

var secondsPerMinute = decimal.NewFromInt(60)

// RollupServiceInterface defines the rollup engine operations
type RollupServiceInterface interface {
	Recompute(ctx context.Context, userID uint64, now time.Time) error
}

// RollupService recomputes the seven-day engagement rollup from the full
// set of a user's sessions in the trailing window.
type RollupService struct {
	sessionRepo *repository.SessionRepository
	rollupRepo  *repository.RollupRepository
	windowDays  int
	log         *logger.Logger
}

func NewRollupService(
	sessionRepo *repository.SessionRepository,
	rollupRepo *repository.RollupRepository,
	windowDays int,
	log *logger.Logger,
) *RollupService {
	return &RollupService{
		sessionRepo: sessionRepo,
		rollupRepo:  rollupRepo,
		windowDays:  windowDays,
		log:         log,
	}
}

// Recompute rebuilds the rollup for a user from the current snapshot of
// sessions in [today-6 .. today] UTC and persists it as a full replace.
// `now` is injected, never read from the wall clock here, so the same
// inputs always produce the same rollup (except updatedAt).
func (s *RollupService) Recompute(ctx context.Context, userID uint64, now time.Time) error {
	if s.windowDays != models.WindowDays {
		return ErrWindowLength
	}

	windowStart := windowStartDay(now, s.windowDays)
	windowEnd := windowStart.AddDate(0, 0, s.windowDays)

	sessions, err := s.sessionRepo.ListForUserInWindow(ctx, userID, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("failed to load sessions for rollup: %w", err)
	}

	rollup := computeRollup(userID, sessions, windowStart, s.windowDays, now)

	if err := s.rollupRepo.Upsert(ctx, rollup); err != nil {
		return fmt.Errorf("failed to persist rollup: %w", err)
	}

	s.log.Debug("Rollup recomputed",
		"user_id", userID,
		"sessions", len(sessions),
		"tone", rollup.CurrentTone,
	)
	return nil
}

// windowStartDay returns 00:00 UTC of the oldest day in the window
func windowStartDay(now time.Time, windowDays int) time.Time {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -(windowDays - 1))
}

// computeRollup is the pure transformation from an unordered session set to
// the fixed-shape aggregate. Every session is credited to the UTC calendar
// day it started, even when it crosses midnight.
func computeRollup(userID uint64, sessions []*models.Session, windowStart time.Time, windowDays int, now time.Time) *models.Rollup {
	buckets := make(map[string][]*models.Session)
	for _, session := range sessions {
		key := session.StartedAt.UTC().Format("2006-01-02")
		buckets[key] = append(buckets[key], session)
	}

	dailyActivity := make([]bool, 0, windowDays)
	dailyDurations := make([]int, 0, windowDays)
	dailySentiment := make([]*decimal.Decimal, 0, windowDays)

	var lastSessionAt *time.Time

	for offset := 0; offset < windowDays; offset++ {
		day := windowStart.AddDate(0, 0, offset)
		bucket := buckets[day.Format("2006-01-02")]

		if len(bucket) == 0 {
			dailyActivity = append(dailyActivity, false)
			dailyDurations = append(dailyDurations, 0)
			dailySentiment = append(dailySentiment, nil)
			continue
		}

		totalSeconds := 0
		for _, session := range bucket {
			totalSeconds += session.DurationSeconds

			ended := session.EndedAt()
			if lastSessionAt == nil || ended.After(*lastSessionAt) {
				endedCopy := ended
				lastSessionAt = &endedCopy
			}
		}

		dailyActivity = append(dailyActivity, true)
		dailyDurations = append(dailyDurations, roundMinutesFromSeconds(totalSeconds))
		dailySentiment = append(dailySentiment, averageSentiment(bucket))
	}

	return &models.Rollup{
		UserID:             userID,
		LastSessionAt:      lastSessionAt,
		DailyActivity:      dailyActivity,
		DailyDurations:     dailyDurations,
		DailySentiment:     dailySentiment,
		AvgDurationMinutes: averageNonzeroDuration(dailyDurations),
		CurrentTone:        determineCurrentTone(dailySentiment),
		UpdatedAt:          now.UTC(),
	}
}

// roundMinutesFromSeconds converts summed seconds to minutes, half-up.
// Decimal arithmetic keeps repeated recomputation bit-identical.
func roundMinutesFromSeconds(seconds int) int {
	minutes := decimal.NewFromInt(int64(seconds)).Div(secondsPerMinute)
	return int(minutes.Round(0).IntPart())
}

// averageSentiment returns the mean of the day's non-null sentiment scores
// rounded half-up to two decimal places, or nil when no session on the day
// carried a score.
func averageSentiment(bucket []*models.Session) *decimal.Decimal {
	total := decimal.Zero
	count := 0
	for _, session := range bucket {
		if !session.SentimentScore.Valid {
			continue
		}
		total = total.Add(session.SentimentScore.Decimal)
		count++
	}
	if count == 0 {
		return nil
	}

	avg := total.Div(decimal.NewFromInt(int64(count))).Round(2)
	return &avg
}

// averageNonzeroDuration is the half-up mean of the non-zero daily duration
// entries, or 0 when every day is empty.
func averageNonzeroDuration(dailyDurations []int) int {
	total := decimal.Zero
	count := 0
	for _, minutes := range dailyDurations {
		if minutes <= 0 {
			continue
		}
		total = total.Add(decimal.NewFromInt(int64(minutes)))
		count++
	}
	if count == 0 {
		return 0
	}

	avg := total.Div(decimal.NewFromInt(int64(count))).Round(0)
	return int(avg.IntPart())
}

// determineCurrentTone scans daily sentiment from the newest day backward;
// the first non-null mean decides. All-null defaults to neutral.
func determineCurrentTone(dailySentiment []*decimal.Decimal) string {
	for i := len(dailySentiment) - 1; i >= 0; i-- {
		sentiment := dailySentiment[i]
		if sentiment == nil {
			continue
		}
		if sentiment.GreaterThanOrEqual(tonePositiveFloor) {
			return models.TonePositive
		}
		if sentiment.GreaterThanOrEqual(toneNeutralFloor) {
			return models.ToneNeutral
		}
		return models.ToneNegative
	}
	return models.ToneNeutral
}
