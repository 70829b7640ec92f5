package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"sessionpulse/telemetry-service/internal/models"
)

// RollupRepository handles dashboard_rollups table operations. The rollup is
// a derived cache keyed by user, so writes are always a full replace.
type RollupRepository struct {
	db *sql.DB
}

func NewRollupRepository(db *sql.DB) *RollupRepository {
	return &RollupRepository{db: db}
}

// Upsert stores the rollup, overwriting every field of a previous
// computation. Stale fields must never survive into the new record.
func (r *RollupRepository) Upsert(ctx context.Context, rollup *models.Rollup) error {
	activity, err := json.Marshal(rollup.DailyActivity)
	if err != nil {
		return fmt.Errorf("failed to encode daily activity: %w", err)
	}
	durations, err := json.Marshal(rollup.DailyDurations)
	if err != nil {
		return fmt.Errorf("failed to encode daily durations: %w", err)
	}
	sentiment, err := json.Marshal(rollup.DailySentiment)
	if err != nil {
		return fmt.Errorf("failed to encode daily sentiment: %w", err)
	}

	query := `
		INSERT INTO dashboard_rollups
			(user_id, last_session_at, daily_activity, daily_durations, daily_sentiment, avg_duration_minutes, current_tone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			last_session_at = VALUES(last_session_at),
			daily_activity = VALUES(daily_activity),
			daily_durations = VALUES(daily_durations),
			daily_sentiment = VALUES(daily_sentiment),
			avg_duration_minutes = VALUES(avg_duration_minutes),
			current_tone = VALUES(current_tone),
			updated_at = VALUES(updated_at)
	`

	var lastSessionAt interface{}
	if rollup.LastSessionAt != nil {
		lastSessionAt = rollup.LastSessionAt.UTC()
	}

	_, err = r.db.ExecContext(ctx, query,
		rollup.UserID,
		lastSessionAt,
		activity,
		durations,
		sentiment,
		rollup.AvgDurationMinutes,
		rollup.CurrentTone,
		rollup.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rollup: %w", err)
	}
	return nil
}

// FindByUserID retrieves the rollup for a user. Returns sql.ErrNoRows when
// the user has never had a recomputation.
func (r *RollupRepository) FindByUserID(ctx context.Context, userID uint64) (*models.Rollup, error) {
	query := `
		SELECT user_id, last_session_at, daily_activity, daily_durations, daily_sentiment, avg_duration_minutes, current_tone, updated_at
		FROM dashboard_rollups
		WHERE user_id = ?
	`

	var rollup models.Rollup
	var lastSessionAt sql.NullTime
	var activity, durations, sentiment []byte

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rollup.UserID,
		&lastSessionAt,
		&activity,
		&durations,
		&sentiment,
		&rollup.AvgDurationMinutes,
		&rollup.CurrentTone,
		&rollup.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSessionAt.Valid {
		t := lastSessionAt.Time
		rollup.LastSessionAt = &t
	}

	if err := json.Unmarshal(activity, &rollup.DailyActivity); err != nil {
		return nil, fmt.Errorf("failed to decode daily activity: %w", err)
	}
	if err := json.Unmarshal(durations, &rollup.DailyDurations); err != nil {
		return nil, fmt.Errorf("failed to decode daily durations: %w", err)
	}
	rollup.DailySentiment = make([]*decimal.Decimal, 0, models.WindowDays)
	if err := json.Unmarshal(sentiment, &rollup.DailySentiment); err != nil {
		return nil, fmt.Errorf("failed to decode daily sentiment: %w", err)
	}

	return &rollup, nil
}
