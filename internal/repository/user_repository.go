package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sessionpulse/telemetry-service/internal/models"
)

// UserRepository handles users table operations
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreateByExternalID resolves or creates the user row for an external
// identifier. INSERT IGNORE makes concurrent first-contact creates converge
// on one row instead of failing either caller.
func (r *UserRepository) GetOrCreateByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	insert := `
		INSERT IGNORE INTO users (external_id, created_at)
		VALUES (?, NOW())
	`

	if _, err := r.db.ExecContext(ctx, insert, externalID); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Always SELECT to get the row, whether just created or already present
	query := `
		SELECT id, external_id, created_at
		FROM users
		WHERE external_id = ?
	`

	var user models.User
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&user.ID,
		&user.ExternalID,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return &user, nil
}
