package slot

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusHeld      Status = "held"
	StatusConfirmed Status = "confirmed"
)

// PatientSnapshot is captured on confirmation and frozen on the slot.
type PatientSnapshot struct {
	Name        string
	NationalID  string
	Phone       string
	Email       string
	Age         int
	VisitReason string
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a single bookable appointment unit. Status, holder and expiry
// move together: held implies a holder session and a deadline, confirmed
// clears both and freezes the patient snapshot.
type Slot struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	Specialty     string
	VisitDate     time.Time
	VisitTime     string
	Location      string
	Status        Status
	HolderSession *string
	HoldExpiresAt *time.Time
	Patient       *PatientSnapshot
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Hold is what a successful hold call hands back to the caller.
type Hold struct {
	SlotID    uuid.UUID
	SessionID string
	ExpiresAt time.Time
}

type BookingEvent struct {
	ID        int64
	EventType string
	SlotID    *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
