package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgAttemptStore persists every delivery attempt so operators can audit a
// provider's notification history and trigger a manual resend.
type PgAttemptStore struct {
	pool *pgxpool.Pool
}

func NewPgAttemptStore(pool *pgxpool.Pool) *PgAttemptStore {
	return &PgAttemptStore{pool: pool}
}

func (s *PgAttemptStore) RecordAttempt(ctx context.Context, slotID uuid.UUID, a Attempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_attempts (slot_id, channel, attempt, accepted, provider_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, slotID, a.Channel, a.Index, a.Accepted, a.ProviderID, a.Error, a.At)
	if err != nil {
		return fmt.Errorf("insert notification attempt: %w", err)
	}

	return nil
}
