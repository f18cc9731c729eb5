package paymentlink

import (
	"time"

	"github.com/google/uuid"

	"github.com/overplus/booking-service/internal/slot"
)

// BookingContext is everything an out-of-band payment flow needs to resume
// a specific booking: the slot, the holding session, the patient details
// collected so far, and the price.
type BookingContext struct {
	SlotID      uuid.UUID            `json:"slot_id"`
	SessionID   string               `json:"session_id"`
	Patient     slot.PatientSnapshot `json:"patient"`
	AmountCents int64                `json:"amount_cents"`
}

// PaymentLink is a single-use capability token wrapping a BookingContext.
// It may be resolved any number of times before expiry, but redeemed at
// most once.
type PaymentLink struct {
	Token     string
	Context   BookingContext
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}
