package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session is one immutable telemetry record. Rows are write-once: the unique
// key on session_id makes a replay of the same session a no-op.
type Session struct {
	ID              uint64              `db:"id"`
	UserID          uint64              `db:"user_id"`
	DeviceID        *string             `db:"device_id"`
	SessionID       string              `db:"session_id"`
	StartedAt       time.Time           `db:"started_at"`
	DurationSeconds int                 `db:"duration_seconds"`
	SentimentScore  decimal.NullDecimal `db:"sentiment_score"`
	CreatedAt       time.Time           `db:"created_at"`
}

// EndedAt is the instant the session finished. Sessions are still credited
// to the UTC day of StartedAt even when they cross midnight.
func (s *Session) EndedAt() time.Time {
	return s.StartedAt.Add(time.Duration(s.DurationSeconds) * time.Second)
}
