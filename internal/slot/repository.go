package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound     = errors.New("slot not found")
	ErrProviderNotFound = errors.New("provider not found")

	// ErrStaleTransition means a conditional write matched zero rows: the
	// slot's current state no longer satisfies the transition's precondition.
	ErrStaleTransition = errors.New("slot state changed since read")
)

// Repository contains all record-store interactions needed by the service.
// Every transition method is a single conditional write; the store decides
// the winner under concurrent callers.
type Repository interface {
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	// HoldSlot transitions available -> held.
	HoldSlot(ctx context.Context, id uuid.UUID, session string, expiresAt time.Time) (*Slot, error)

	// ConfirmSlot transitions held -> confirmed, conditioned on the holder
	// matching and the deadline not having passed as of now.
	ConfirmSlot(ctx context.Context, id uuid.UUID, session string, now time.Time, patient PatientSnapshot) (*Slot, error)

	// ReleaseSlot transitions held -> available, conditioned on the current
	// holder matching expectedHolder so a stale release cannot clobber a
	// re-held slot. ReleaseSlotAnyHolder drops the holder condition; it is
	// reserved for the data-anomaly path where no holder was recorded.
	ReleaseSlot(ctx context.Context, id uuid.UUID, expectedHolder string) (*Slot, error)
	ReleaseSlotAnyHolder(ctx context.Context, id uuid.UUID) (*Slot, error)

	// Sweeper support
	FindExpiredHeld(ctx context.Context, now time.Time) ([]Slot, error)
	CountHolds(ctx context.Context, now time.Time) (total, active, expired int, err error)

	// Event logging
	InsertEvent(ctx context.Context, ev BookingEvent) error
}
