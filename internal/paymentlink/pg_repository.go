package paymentlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const linkColumns = `token, slot_id, session_id,
	patient_name, patient_national_id, patient_phone, patient_email, patient_age, patient_reason,
	amount_cents, created_at, expires_at, used`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanLink(row pgx.Row, notFound error) (*PaymentLink, error) {
	var l PaymentLink

	err := row.Scan(
		&l.Token,
		&l.Context.SlotID,
		&l.Context.SessionID,
		&l.Context.Patient.Name,
		&l.Context.Patient.NationalID,
		&l.Context.Patient.Phone,
		&l.Context.Patient.Email,
		&l.Context.Patient.Age,
		&l.Context.Patient.VisitReason,
		&l.Context.AmountCents,
		&l.CreatedAt,
		&l.ExpiresAt,
		&l.Used,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}

	return &l, nil
}

func (r *PgRepository) Insert(ctx context.Context, link PaymentLink) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_links (token, slot_id, session_id,
			patient_name, patient_national_id, patient_phone, patient_email, patient_age, patient_reason,
			amount_cents, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false)
	`, link.Token, link.Context.SlotID, link.Context.SessionID,
		link.Context.Patient.Name, link.Context.Patient.NationalID, link.Context.Patient.Phone,
		link.Context.Patient.Email, link.Context.Patient.Age, link.Context.Patient.VisitReason,
		link.Context.AmountCents, link.CreatedAt, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert payment link: %w", err)
	}

	return nil
}

func (r *PgRepository) GetByToken(ctx context.Context, token string) (*PaymentLink, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+linkColumns+`
		FROM payment_links
		WHERE token = $1
	`, token)
	return scanLink(row, ErrNotFound)
}

func (r *PgRepository) MarkUsed(ctx context.Context, token string, now time.Time) (*PaymentLink, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE payment_links
		SET used = true
		WHERE token = $1
		  AND used = false
		  AND expires_at > $2
		RETURNING `+linkColumns+`
	`, token, now)

	return scanLink(row, ErrRedeemConditionFailed)
}

func (r *PgRepository) DeleteForSlot(ctx context.Context, slotID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM payment_links
		WHERE slot_id = $1
		  AND used = false
	`, slotID)
	if err != nil {
		return 0, fmt.Errorf("delete payment links for slot: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *PgRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM payment_links
		WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired payment links: %w", err)
	}

	return tag.RowsAffected(), nil
}
