package paymentlink

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/overplus/booking-service/internal/config"
	"github.com/overplus/booking-service/internal/logging"
	"github.com/overplus/booking-service/internal/metrics"
)

// Registry issues and redeems single-use payment capability tokens.
type Registry struct {
	repo   Repository
	cfg    config.Config
	logger *logging.Logger
}

func NewRegistry(repo Repository, cfg config.Config, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// Issue creates a link for the given booking context, replacing any live
// link already bound to the same slot.
func (r *Registry) Issue(ctx context.Context, bc BookingContext, ttl time.Duration) (*PaymentLink, error) {
	if ttl <= 0 {
		ttl = r.cfg.PaymentLinkTTL
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generate payment token: %w", err)
	}

	if n, err := r.repo.DeleteForSlot(ctx, bc.SlotID); err != nil {
		r.logger.Warn("failed to clear previous payment link for slot", "slot_id", bc.SlotID, "error", err)
	} else if n > 0 {
		r.logger.Info("replaced live payment link", "slot_id", bc.SlotID)
	}

	now := time.Now()
	link := PaymentLink{
		Token:     token,
		Context:   bc,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := r.repo.Insert(ctx, link); err != nil {
		return nil, fmt.Errorf("insert payment link: %w", err)
	}

	return &link, nil
}

// Resolve loads the context without consuming the token, so a payment page
// can render and re-render freely before the user commits.
func (r *Registry) Resolve(ctx context.Context, token string) (*BookingContext, error) {
	link, err := r.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load payment link: %w", err)
	}

	if link.Used {
		return nil, ErrAlreadyUsed
	}
	if time.Now().After(link.ExpiresAt) {
		return nil, ErrExpired
	}

	bc := link.Context
	return &bc, nil
}

// Redeem consumes the token. The used flag flips inside one conditional
// write, so a replayed return-from-payment callback cannot redeem twice.
func (r *Registry) Redeem(ctx context.Context, token string) (*BookingContext, error) {
	now := time.Now()

	link, err := r.repo.MarkUsed(ctx, token, now)
	if err == nil {
		metrics.LinkRedemptions.WithLabelValues("redeemed").Inc()
		bc := link.Context
		return &bc, nil
	}
	if !errors.Is(err, ErrRedeemConditionFailed) {
		return nil, fmt.Errorf("redeem payment link: %w", err)
	}

	// Zero rows; reload to classify.
	current, err := r.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.LinkRedemptions.WithLabelValues("not_found").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("reload payment link after failed redeem: %w", err)
	}

	if current.Used {
		metrics.LinkRedemptions.WithLabelValues("already_used").Inc()
		return nil, ErrAlreadyUsed
	}
	metrics.LinkRedemptions.WithLabelValues("expired").Inc()
	return nil, ErrExpired
}

// newToken returns a 128-bit unguessable capability token.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
