package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slotColumns = `id, provider_id, specialty, visit_date, visit_time, location, status,
	holder_session, hold_expires_at,
	patient_name, patient_national_id, patient_phone, patient_email, patient_age, patient_reason,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row, notFound error) (*Slot, error) {
	var s Slot
	var holder *string
	var holdExpiresAt *time.Time
	var pName, pNationalID, pPhone, pEmail, pReason *string
	var pAge *int

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Specialty,
		&s.VisitDate,
		&s.VisitTime,
		&s.Location,
		&s.Status,
		&holder,
		&holdExpiresAt,
		&pName,
		&pNationalID,
		&pPhone,
		&pEmail,
		&pAge,
		&pReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}

	s.HolderSession = holder
	s.HoldExpiresAt = holdExpiresAt
	if pName != nil {
		snap := PatientSnapshot{Name: *pName}
		if pNationalID != nil {
			snap.NationalID = *pNationalID
		}
		if pPhone != nil {
			snap.Phone = *pPhone
		}
		if pEmail != nil {
			snap.Email = *pEmail
		}
		if pAge != nil {
			snap.Age = *pAge
		}
		if pReason != nil {
			snap.VisitReason = *pReason
		}
		s.Patient = &snap
	}

	return &s, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty, email, phone *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&email,
		&phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	p.Email = email
	p.Phone = phone
	return &p, nil
}

// Interface methods

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row, ErrSlotNotFound)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, email, phone, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) HoldSlot(ctx context.Context, id uuid.UUID, session string, expiresAt time.Time) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'held',
		    holder_session = $2,
		    hold_expires_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, id, session, expiresAt)

	return scanSlot(row, ErrStaleTransition)
}

func (r *PgRepository) ConfirmSlot(ctx context.Context, id uuid.UUID, session string, now time.Time, patient PatientSnapshot) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'confirmed',
		    holder_session = NULL,
		    hold_expires_at = NULL,
		    patient_name = $4,
		    patient_national_id = $5,
		    patient_phone = $6,
		    patient_email = $7,
		    patient_age = $8,
		    patient_reason = $9,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'held'
		  AND holder_session = $2
		  AND hold_expires_at > $3
		RETURNING `+slotColumns+`
	`, id, session, now,
		patient.Name, patient.NationalID, patient.Phone, patient.Email, patient.Age, patient.VisitReason)

	return scanSlot(row, ErrStaleTransition)
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID, expectedHolder string) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'available',
		    holder_session = NULL,
		    hold_expires_at = NULL,
		    patient_name = NULL,
		    patient_national_id = NULL,
		    patient_phone = NULL,
		    patient_email = NULL,
		    patient_age = NULL,
		    patient_reason = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'held'
		  AND holder_session = $2
		RETURNING `+slotColumns+`
	`, id, expectedHolder)

	return scanSlot(row, ErrStaleTransition)
}

func (r *PgRepository) ReleaseSlotAnyHolder(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'available',
		    holder_session = NULL,
		    hold_expires_at = NULL,
		    patient_name = NULL,
		    patient_national_id = NULL,
		    patient_phone = NULL,
		    patient_email = NULL,
		    patient_age = NULL,
		    patient_reason = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'held'
		RETURNING `+slotColumns+`
	`, id)

	return scanSlot(row, ErrStaleTransition)
}

func (r *PgRepository) FindExpiredHeld(ctx context.Context, now time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE status = 'held'
		  AND (hold_expires_at IS NULL OR hold_expires_at < $1)
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows, ErrSlotNotFound)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountHolds(ctx context.Context, now time.Time) (total, active, expired int, err error) {
	row := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE hold_expires_at >= $1),
		       count(*) FILTER (WHERE hold_expires_at IS NULL OR hold_expires_at < $1)
		FROM slots
		WHERE status = 'held'
	`, now)

	if err := row.Scan(&total, &active, &expired); err != nil {
		return 0, 0, 0, fmt.Errorf("count holds: %w", err)
	}

	return total, active, expired, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_events (event_type, slot_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
