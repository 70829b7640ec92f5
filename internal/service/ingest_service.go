package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sessionpulse/telemetry-service/internal/models"
	"sessionpulse/telemetry-service/internal/repository"
	"sessionpulse/telemetry-service/pkg/helpers"
	"sessionpulse/telemetry-service/pkg/logger"
)

// IngestOutcome is the caller-visible result of a session ingestion. Both
// values are successful outcomes; duplicate is not an error.
type IngestOutcome string

const (
	OutcomeOK        IngestOutcome = "ok"
	OutcomeDuplicate IngestOutcome = "duplicate"
)

const maxDurationSeconds = 86400

// IngestInput is one session summary as reported by a device agent.
// SentimentScore is nil when the session produced no sentiment signal.
type IngestInput struct {
	SessionID       string
	UserExternalID  string
	DeviceID        *string
	StartedAt       time.Time
	DurationSeconds int
	SentimentScore  *float64
}

// IngestServiceInterface defines the ingestion coordinator operations
type IngestServiceInterface interface {
	IngestSessionSummary(ctx context.Context, in IngestInput) (IngestOutcome, error)
}

// IngestService guarantees at-most-once storage per logical session identity
// and triggers rollup recomputation synchronously after each new session.
type IngestService struct {
	userRepo    *repository.UserRepository
	sessionRepo *repository.SessionRepository
	rollup      RollupServiceInterface
	clock       Clock
	log         *logger.Logger
}

func NewIngestService(
	userRepo *repository.UserRepository,
	sessionRepo *repository.SessionRepository,
	rollup RollupServiceInterface,
	clock Clock,
	log *logger.Logger,
) *IngestService {
	return &IngestService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		rollup:      rollup,
		clock:       clock,
		log:         log,
	}
}

// IngestSessionSummary validates, dedupes and stores one session record.
// Replays of the same session id are free: they return OutcomeDuplicate and
// touch nothing. A uniqueness violation raised by a concurrent insert is
// downgraded to the same duplicate outcome, never surfaced as a fault.
func (s *IngestService) IngestSessionSummary(ctx context.Context, in IngestInput) (IngestOutcome, error) {
	if verr := validateIngestInput(in); verr != nil {
		return "", verr
	}

	user, err := s.userRepo.GetOrCreateByExternalID(ctx, in.UserExternalID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user: %w", err)
	}

	// Fast path for replays. The check races with concurrent inserts; the
	// unique key inside Insert is the final authority either way.
	exists, err := s.sessionRepo.ExistsBySessionID(ctx, in.SessionID)
	if err != nil {
		return "", fmt.Errorf("failed to check session: %w", err)
	}
	if exists {
		return OutcomeDuplicate, nil
	}

	session := &models.Session{
		UserID:          user.ID,
		DeviceID:        in.DeviceID,
		SessionID:       in.SessionID,
		StartedAt:       in.StartedAt.UTC(),
		DurationSeconds: in.DurationSeconds,
		SentimentScore:  quantizeScore(in.SentimentScore),
	}

	inserted, err := s.sessionRepo.Insert(ctx, session)
	if err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	if !inserted {
		return OutcomeDuplicate, nil
	}

	// The session is durable at this point. A recompute failure leaves the
	// rollup stale until the next ingestion, not the telemetry lost.
	if err := s.rollup.Recompute(ctx, user.ID, s.clock.Now()); err != nil {
		s.log.WithUserID(in.UserExternalID).Error("Rollup recompute failed after insert; rollup is stale", "error", err)
		return "", fmt.Errorf("session stored but rollup recompute failed: %w", err)
	}

	return OutcomeOK, nil
}

func validateIngestInput(in IngestInput) *helpers.ValidationError {
	fields := make(map[string]string)

	if in.SessionID == "" {
		fields["session_id"] = "session_id is required"
	}
	if in.UserExternalID == "" {
		fields["user_external_id"] = "user_external_id is required"
	}
	if in.StartedAt.IsZero() {
		fields["started_at"] = "started_at must include timezone information"
	}
	if in.DurationSeconds < 0 || in.DurationSeconds > maxDurationSeconds {
		fields["duration_seconds"] = fmt.Sprintf("duration_seconds must be between 0 and %d", maxDurationSeconds)
	}
	if in.SentimentScore != nil && (*in.SentimentScore < 0 || *in.SentimentScore > 1) {
		fields["sentiment_score"] = "sentiment_score must be between 0 and 1"
	}

	if len(fields) > 0 {
		return helpers.NewValidationErrors(fields)
	}
	return nil
}

// quantizeScore stores sentiment at two decimal places, half-up
func quantizeScore(score *float64) decimal.NullDecimal {
	if score == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: decimal.NewFromFloat(*score).Round(2),
		Valid:   true,
	}
}
