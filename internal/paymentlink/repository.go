package paymentlink

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("payment link not found")
	ErrExpired     = errors.New("payment link has expired")
	ErrAlreadyUsed = errors.New("payment link already used")

	// ErrRedeemConditionFailed means the conditional used=false write
	// matched zero rows; the registry reloads to classify why.
	ErrRedeemConditionFailed = errors.New("payment link redeem condition failed")
)

type Repository interface {
	Insert(ctx context.Context, link PaymentLink) error
	GetByToken(ctx context.Context, token string) (*PaymentLink, error)

	// MarkUsed flips used false -> true in one conditional write, also
	// conditioned on expires_at > now. Exactly one concurrent caller can
	// succeed per token.
	MarkUsed(ctx context.Context, token string, now time.Time) (*PaymentLink, error)

	// DeleteForSlot removes any unredeemed link bound to the slot, keeping
	// at most one live link per held slot.
	DeleteForSlot(ctx context.Context, slotID uuid.UUID) (int64, error)

	// DeleteExpired is the sweep GC hook.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
