package slot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/overplus/booking-service/internal/config"
	"github.com/overplus/booking-service/internal/logging"
	"github.com/overplus/booking-service/internal/metrics"
	redisclient "github.com/overplus/booking-service/internal/redis"
)

const (
	EventSlotHeld      = "SLOT_HELD"
	EventSlotConfirmed = "SLOT_CONFIRMED"
	EventSlotReleased  = "SLOT_RELEASED"
	EventHoldExpired   = "SLOT_HOLD_EXPIRED"
)

var (
	ErrAlreadyHeld  = errors.New("slot is no longer available")
	ErrSlotBusy     = errors.New("slot is currently being booked, please retry")
	ErrHoldExpired  = errors.New("hold has expired")
	ErrHoldMismatch = errors.New("slot is held by a different session")
	ErrNotHeld      = errors.New("slot is not held")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	logger *logging.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		logger: logger,
	}
}

// Hold claims an available slot for sessionID until now+ttl. Exactly one of
// any set of concurrent callers wins: the transition is a conditional write
// against the store, with a per-slot Redis lock in front of it to keep
// losers from even reaching the store under a stampede.
func (s *Service) Hold(ctx context.Context, slotID uuid.UUID, sessionID string, ttl time.Duration) (*Hold, error) {
	if ttl <= 0 {
		ttl = s.cfg.HoldTTL
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status != StatusAvailable {
		metrics.HoldRequests.WithLabelValues("conflict").Inc()
		return nil, ErrAlreadyHeld
	}

	expiresAt := time.Now().Add(ttl)
	var held *Slot

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		updated, err := s.repo.HoldSlot(lockCtx, slotID, sessionID, expiresAt)
		if err != nil {
			if errors.Is(err, ErrStaleTransition) {
				return ErrAlreadyHeld
			}
			return fmt.Errorf("hold slot: %w", err)
		}
		held = updated

		s.logEvent(lockCtx, slotID, EventSlotHeld, map[string]any{
			"session_id": sessionID,
			"expires_at": expiresAt,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			metrics.HoldRequests.WithLabelValues("busy").Inc()
			return nil, ErrSlotBusy
		}
		if errors.Is(err, ErrAlreadyHeld) {
			metrics.HoldRequests.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	metrics.HoldRequests.WithLabelValues("granted").Inc()

	return &Hold{
		SlotID:    held.ID,
		SessionID: sessionID,
		ExpiresAt: *held.HoldExpiresAt,
	}, nil
}

// Confirm moves a held slot to confirmed. The full precondition (held, same
// holder, deadline not passed) travels inside one conditional write, so a
// payment callback racing the sweeper cannot half-apply. The deadline is
// re-checked here rather than left to the sweeper: a confirmed booking must
// never be reverted afterwards.
func (s *Service) Confirm(ctx context.Context, slotID uuid.UUID, sessionID string, patient PatientSnapshot) (*Slot, error) {
	now := time.Now()

	updated, err := s.repo.ConfirmSlot(ctx, slotID, sessionID, now, patient)
	if err == nil {
		s.logEvent(ctx, slotID, EventSlotConfirmed, map[string]any{
			"session_id": sessionID,
		})
		metrics.Confirmations.WithLabelValues("confirmed").Inc()
		return updated, nil
	}
	if !errors.Is(err, ErrStaleTransition) {
		// Store failure with unverifiable outcome: surface it, never assume
		// the booking was written.
		return nil, fmt.Errorf("confirm slot: %w", err)
	}

	// Zero rows matched; reload to tell the caller which precondition failed.
	current, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reload slot after failed confirm: %w", err)
	}

	switch {
	case current.Status != StatusHeld:
		metrics.Confirmations.WithLabelValues("not_held").Inc()
		return nil, ErrNotHeld
	case current.HolderSession == nil || *current.HolderSession != sessionID:
		metrics.Confirmations.WithLabelValues("mismatch").Inc()
		return nil, ErrHoldMismatch
	case current.HoldExpiresAt == nil || !current.HoldExpiresAt.After(now):
		// Return the slot to the market now instead of waiting for a sweep.
		if _, rerr := s.repo.ReleaseSlot(ctx, slotID, sessionID); rerr != nil && !errors.Is(rerr, ErrStaleTransition) {
			s.logger.Warn("failed to release expired hold during confirm", "slot_id", slotID, "error", rerr)
		}
		s.logEvent(ctx, slotID, EventHoldExpired, map[string]any{
			"session_id": sessionID,
			"reason":     "confirm_after_expiry",
		})
		metrics.Confirmations.WithLabelValues("expired").Inc()
		return nil, ErrHoldExpired
	default:
		return nil, fmt.Errorf("confirm slot: %w", ErrStaleTransition)
	}
}

// Release returns a held slot to available, conditioned on the current
// holder matching expectedHolder. It is idempotent: when the condition no
// longer matches (already released, re-held by someone else, confirmed) it
// reports false with no error. An empty expectedHolder asks Release to
// discover the holder itself, which also covers held slots that carry no
// holder at all.
func (s *Service) Release(ctx context.Context, slotID uuid.UUID, expectedHolder string) (bool, error) {
	if expectedHolder == "" {
		current, err := s.repo.GetSlotByID(ctx, slotID)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return false, err
			}
			return false, fmt.Errorf("load slot: %w", err)
		}
		if current.Status != StatusHeld {
			return false, nil
		}
		if current.HolderSession == nil {
			s.logger.Warn("held slot has no recorded holder, releasing", "slot_id", slotID)
			if _, err := s.repo.ReleaseSlotAnyHolder(ctx, slotID); err != nil {
				if errors.Is(err, ErrStaleTransition) {
					return false, nil
				}
				return false, fmt.Errorf("release slot: %w", err)
			}
			s.logEvent(ctx, slotID, EventSlotReleased, map[string]any{"reason": "missing_holder"})
			return true, nil
		}
		expectedHolder = *current.HolderSession
	}

	if _, err := s.repo.ReleaseSlot(ctx, slotID, expectedHolder); err != nil {
		if errors.Is(err, ErrStaleTransition) {
			return false, nil
		}
		return false, fmt.Errorf("release slot: %w", err)
	}

	s.logEvent(ctx, slotID, EventSlotReleased, map[string]any{
		"holder": expectedHolder,
	})
	return true, nil
}

// GetSlot retrieves a slot by ID.
func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// GetProvider retrieves the provider assigned to a slot's schedule.
func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	provider, err := s.repo.GetProviderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return provider, nil
}

func (s *Service) logEvent(ctx context.Context, slotID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	id := slotID

	ev := BookingEvent{
		EventType: eventType,
		SlotID:    &id,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert booking event", "event_type", eventType, "slot_id", slotID, "error", err)
	}
}
