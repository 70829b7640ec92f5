package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"sessionpulse/telemetry-service/internal/models"
)

const mysqlErrDuplicateEntry = 1062

// SessionRepository handles sessions table operations
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// ExistsBySessionID reports whether a session with the given logical
// identifier was already ingested.
func (r *SessionRepository) ExistsBySessionID(ctx context.Context, sessionID string) (bool, error) {
	query := "SELECT COUNT(*) FROM sessions WHERE session_id = ?"

	var count int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert stores a session row. The unique key on session_id is the final
// authority on duplicates: a replay returns (false, nil), never an error.
func (r *SessionRepository) Insert(ctx context.Context, session *models.Session) (bool, error) {
	query := `
		INSERT IGNORE INTO sessions (user_id, device_id, session_id, started_at, duration_seconds, sentiment_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW())
	`

	result, err := r.db.ExecContext(ctx, query,
		session.UserID,
		session.DeviceID,
		session.SessionID,
		session.StartedAt.UTC(),
		session.DurationSeconds,
		session.SentimentScore,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return false, nil
		}
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListForUserInWindow retrieves the user's sessions with started_at in
// [start, end), ordered oldest first.
func (r *SessionRepository) ListForUserInWindow(ctx context.Context, userID uint64, start, end time.Time) ([]*models.Session, error) {
	query := `
		SELECT id, user_id, device_id, session_id, started_at, duration_seconds, sentiment_score, created_at
		FROM sessions
		WHERE user_id = ? AND started_at >= ? AND started_at < ?
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var session models.Session
		var deviceID sql.NullString

		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&deviceID,
			&session.SessionID,
			&session.StartedAt,
			&session.DurationSeconds,
			&session.SentimentScore,
			&session.CreatedAt,
		); err != nil {
			return nil, err
		}

		if deviceID.Valid {
			session.DeviceID = &deviceID.String
		}
		sessions = append(sessions, &session)
	}

	return sessions, rows.Err()
}

// CountAll returns the total number of ingested sessions (readiness probe)
func (r *SessionRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}
