package slot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepository mirrors the store's conditional-write semantics in memory:
// every transition checks its precondition and mutates under one mutex, so
// concurrent callers observe the same winner-takes-all behavior as the
// conditional UPDATEs in PgRepository.
type memRepository struct {
	mu        sync.Mutex
	slots     map[uuid.UUID]*Slot
	providers map[uuid.UUID]*Provider
	events    []BookingEvent

	releaseErr map[uuid.UUID]error
}

func newMemRepository() *memRepository {
	return &memRepository{
		slots:      make(map[uuid.UUID]*Slot),
		providers:  make(map[uuid.UUID]*Provider),
		releaseErr: make(map[uuid.UUID]error),
	}
}

func (r *memRepository) addSlot(s Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.slots[s.ID] = &cp
}

func (r *memRepository) addProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.providers[p.ID] = &cp
}

func copySlot(s *Slot) *Slot {
	cp := *s
	if s.HolderSession != nil {
		h := *s.HolderSession
		cp.HolderSession = &h
	}
	if s.HoldExpiresAt != nil {
		e := *s.HoldExpiresAt
		cp.HoldExpiresAt = &e
	}
	if s.Patient != nil {
		p := *s.Patient
		cp.Patient = &p
	}
	return &cp
}

func (r *memRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return copySlot(s), nil
}

func (r *memRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepository) HoldSlot(ctx context.Context, id uuid.UUID, session string, expiresAt time.Time) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.Status != StatusAvailable {
		return nil, ErrStaleTransition
	}
	s.Status = StatusHeld
	s.HolderSession = &session
	s.HoldExpiresAt = &expiresAt
	s.UpdatedAt = time.Now()
	return copySlot(s), nil
}

func (r *memRepository) ConfirmSlot(ctx context.Context, id uuid.UUID, session string, now time.Time, patient PatientSnapshot) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.Status != StatusHeld ||
		s.HolderSession == nil || *s.HolderSession != session ||
		s.HoldExpiresAt == nil || !s.HoldExpiresAt.After(now) {
		return nil, ErrStaleTransition
	}
	s.Status = StatusConfirmed
	s.HolderSession = nil
	s.HoldExpiresAt = nil
	s.Patient = &patient
	s.UpdatedAt = time.Now()
	return copySlot(s), nil
}

func (r *memRepository) ReleaseSlot(ctx context.Context, id uuid.UUID, expectedHolder string) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.releaseErr[id]; ok {
		return nil, err
	}
	s, ok := r.slots[id]
	if !ok || s.Status != StatusHeld ||
		s.HolderSession == nil || *s.HolderSession != expectedHolder {
		return nil, ErrStaleTransition
	}
	return r.releaseLocked(s), nil
}

func (r *memRepository) ReleaseSlotAnyHolder(ctx context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.releaseErr[id]; ok {
		return nil, err
	}
	s, ok := r.slots[id]
	if !ok || s.Status != StatusHeld {
		return nil, ErrStaleTransition
	}
	return r.releaseLocked(s), nil
}

func (r *memRepository) releaseLocked(s *Slot) *Slot {
	s.Status = StatusAvailable
	s.HolderSession = nil
	s.HoldExpiresAt = nil
	s.Patient = nil
	s.UpdatedAt = time.Now()
	return copySlot(s)
}

func (r *memRepository) FindExpiredHeld(ctx context.Context, now time.Time) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Slot
	for _, s := range r.slots {
		if s.Status == StatusHeld && (s.HoldExpiresAt == nil || s.HoldExpiresAt.Before(now)) {
			result = append(result, *copySlot(s))
		}
	}
	return result, nil
}

func (r *memRepository) CountHolds(ctx context.Context, now time.Time) (total, active, expired int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.Status != StatusHeld {
			continue
		}
		total++
		if s.HoldExpiresAt != nil && !s.HoldExpiresAt.Before(now) {
			active++
		} else {
			expired++
		}
	}
	return total, active, expired, nil
}

func (r *memRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// passLocker runs the critical section directly. The tests exercise the
// conditional-write discipline, which must hold even with no lock at all.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
