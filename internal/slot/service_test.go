package slot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overplus/booking-service/internal/config"
)

func newTestService(repo *memRepository) *Service {
	cfg := config.Config{HoldTTL: 15 * time.Minute}
	return NewService(repo, passLocker{}, cfg, nil)
}

func availableSlot() Slot {
	return Slot{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		Specialty:  "Dermatology",
		VisitDate:  time.Now().AddDate(0, 0, 3),
		VisitTime:  "10:30",
		Location:   "Clinic A",
		Status:     StatusAvailable,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func heldSlot(session string, expiresAt time.Time) Slot {
	s := availableSlot()
	s.Status = StatusHeld
	s.HolderSession = &session
	s.HoldExpiresAt = &expiresAt
	return s
}

func testPatient() PatientSnapshot {
	return PatientSnapshot{
		Name:        "Sara Ahmed",
		NationalID:  "29805120101234",
		Phone:       "+201001234567",
		Email:       "sara@example.com",
		Age:         27,
		VisitReason: "follow-up",
	}
}

func TestHoldGrantsAvailableSlot(t *testing.T) {
	repo := newMemRepository()
	s := availableSlot()
	repo.addSlot(s)
	svc := newTestService(repo)

	hold, err := svc.Hold(context.Background(), s.ID, "session-a", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, s.ID, hold.SlotID)
	assert.True(t, hold.ExpiresAt.After(time.Now()))

	stored, err := repo.GetSlotByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusHeld, stored.Status)
	require.NotNil(t, stored.HolderSession)
	assert.Equal(t, "session-a", *stored.HolderSession)
	require.NotNil(t, stored.HoldExpiresAt)
}

func TestHoldConflictOnHeldSlot(t *testing.T) {
	repo := newMemRepository()
	s := heldSlot("session-a", time.Now().Add(10*time.Minute))
	repo.addSlot(s)
	svc := newTestService(repo)

	_, err := svc.Hold(context.Background(), s.ID, "session-b", 15*time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyHeld)
}

func TestHoldUnknownSlot(t *testing.T) {
	svc := newTestService(newMemRepository())

	_, err := svc.Hold(context.Background(), uuid.New(), "session-a", 15*time.Minute)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

// Exactly one of any set of concurrent holds on the same available slot may
// win; every loser must observe a conflict, never a silent overwrite.
func TestHoldMutualExclusion(t *testing.T) {
	repo := newMemRepository()
	s := availableSlot()
	repo.addSlot(s)
	svc := newTestService(repo)

	const workers = 32
	var wg sync.WaitGroup
	results := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Hold(context.Background(), s.ID, fmt.Sprintf("session-%d", i), 15*time.Minute)
		}(i)
	}
	wg.Wait()

	var won, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadyHeld):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, won)
	assert.Equal(t, workers-1, conflicted)
}

func TestConfirmHappyPath(t *testing.T) {
	repo := newMemRepository()
	s := heldSlot("session-a", time.Now().Add(10*time.Minute))
	repo.addSlot(s)
	svc := newTestService(repo)

	confirmed, err := svc.Confirm(context.Background(), s.ID, "session-a", testPatient())
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.Nil(t, confirmed.HolderSession)
	assert.Nil(t, confirmed.HoldExpiresAt, "a confirmed booking carries no deadline")
	require.NotNil(t, confirmed.Patient)
	assert.Equal(t, "Sara Ahmed", confirmed.Patient.Name)
}

// The deadline is checked at confirm time, not left to the sweeper: a hold
// past its expiry must fail even if no sweep has run yet.
func TestConfirmAfterExpiry(t *testing.T) {
	repo := newMemRepository()
	s := heldSlot("session-a", time.Now().Add(-time.Minute))
	repo.addSlot(s)
	svc := newTestService(repo)

	_, err := svc.Confirm(context.Background(), s.ID, "session-a", testPatient())
	assert.ErrorIs(t, err, ErrHoldExpired)

	// The expired hold goes back to the market immediately.
	stored, err := repo.GetSlotByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, stored.Status)
}

func TestConfirmHolderMismatch(t *testing.T) {
	repo := newMemRepository()
	s := heldSlot("session-a", time.Now().Add(10*time.Minute))
	repo.addSlot(s)
	svc := newTestService(repo)

	_, err := svc.Confirm(context.Background(), s.ID, "session-b", testPatient())
	assert.ErrorIs(t, err, ErrHoldMismatch)

	// The real holder is unaffected.
	stored, err := repo.GetSlotByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusHeld, stored.Status)
}

func TestConfirmNotHeld(t *testing.T) {
	repo := newMemRepository()
	s := availableSlot()
	repo.addSlot(s)
	svc := newTestService(repo)

	_, err := svc.Confirm(context.Background(), s.ID, "session-a", testPatient())
	assert.ErrorIs(t, err, ErrNotHeld)
}

// A sweep release racing a confirm must never move a confirmed slot back to
// available: the release condition (status=held, holder match) no longer
// matches once the confirm has won.
func TestNoResurrectionAfterConfirm(t *testing.T) {
	repo := newMemRepository()
	s := heldSlot("session-a", time.Now().Add(10*time.Minute))
	repo.addSlot(s)
	svc := newTestService(repo)

	_, err := svc.Confirm(context.Background(), s.ID, "session-a", testPatient())
	require.NoError(t, err)

	released, err := svc.Release(context.Background(), s.ID, "session-a")
	require.NoError(t, err)
	assert.False(t, released)

	stored, err := repo.GetSlotByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
}

func TestReleaseIdempotent(t *testing.T) {
	repo := newMemRepository()
	s := heldSlot("session-a", time.Now().Add(10*time.Minute))
	repo.addSlot(s)
	svc := newTestService(repo)

	released, err := svc.Release(context.Background(), s.ID, "session-a")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = svc.Release(context.Background(), s.ID, "session-a")
	require.NoError(t, err)
	assert.False(t, released, "second release is a harmless no-op")

	released, err = svc.Release(context.Background(), s.ID, "session-a")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestReleaseStaleHolderDoesNotClobber(t *testing.T) {
	repo := newMemRepository()
	s := heldSlot("session-b", time.Now().Add(10*time.Minute))
	repo.addSlot(s)
	svc := newTestService(repo)

	// session-a's hold expired long ago and the slot was re-held by
	// session-b; a stale release from session-a must not touch it.
	released, err := svc.Release(context.Background(), s.ID, "session-a")
	require.NoError(t, err)
	assert.False(t, released)

	stored, err := repo.GetSlotByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusHeld, stored.Status)
	assert.Equal(t, "session-b", *stored.HolderSession)
}

func TestReleaseDiscoversHolder(t *testing.T) {
	repo := newMemRepository()
	s := heldSlot("session-a", time.Now().Add(10*time.Minute))
	repo.addSlot(s)
	svc := newTestService(repo)

	released, err := svc.Release(context.Background(), s.ID, "")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestReleaseMissingHolderAnomaly(t *testing.T) {
	repo := newMemRepository()
	s := availableSlot()
	s.Status = StatusHeld // no holder, no expiry: data anomaly
	repo.addSlot(s)
	svc := newTestService(repo)

	released, err := svc.Release(context.Background(), s.ID, "")
	require.NoError(t, err)
	assert.True(t, released)

	stored, err := repo.GetSlotByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, stored.Status)
}

func TestHoldDefaultTTL(t *testing.T) {
	repo := newMemRepository()
	s := availableSlot()
	repo.addSlot(s)
	svc := newTestService(repo)

	hold, err := svc.Hold(context.Background(), s.ID, "session-a", 0)
	require.NoError(t, err)

	remaining := time.Until(hold.ExpiresAt)
	assert.Greater(t, remaining, 14*time.Minute)
	assert.LessOrEqual(t, remaining, 15*time.Minute)
}
