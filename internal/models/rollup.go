package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WindowDays is the rollup window length. The seven-element array shape is a
// wire contract with the dashboard client, so the value is locked for this
// release; config refuses any other value at startup.
const WindowDays = 7

const (
	TonePositive = "positive"
	ToneNeutral  = "neutral"
	ToneNegative = "negative"
)

// Rollup is the persisted seven-day aggregate for one user. It is a derived
// cache: fully reproducible from the user's sessions plus "now", and fully
// replaced on every recomputation.
type Rollup struct {
	UserID             uint64             `db:"user_id"`
	LastSessionAt      *time.Time         `db:"last_session_at"`
	DailyActivity      []bool             `db:"daily_activity"`
	DailyDurations     []int              `db:"daily_durations"`
	DailySentiment     []*decimal.Decimal `db:"daily_sentiment"`
	AvgDurationMinutes int                `db:"avg_duration_minutes"`
	CurrentTone        string             `db:"current_tone"`
	UpdatedAt          time.Time          `db:"updated_at"`
}

// StreakDays counts consecutive active days ending at today (the last
// element), stopping at the first inactive day.
func StreakDays(dailyActivity []bool) int {
	streak := 0
	for i := len(dailyActivity) - 1; i >= 0; i-- {
		if !dailyActivity[i] {
			break
		}
		streak++
	}
	return streak
}

// DashboardSnapshot is what the read path returns: the rollup fields plus
// the streak recomputed from DailyActivity at response time.
type DashboardSnapshot struct {
	LastSessionAt      *time.Time
	DailyActivity      []bool
	DailyDurations     []int
	DailySentiment     []*decimal.Decimal
	StreakDays         int
	AvgDurationMinutes int
	CurrentTone        string
	LastUpdated        time.Time
}
