package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/overplus/booking-service/internal/slot"
)

type PatientPayload struct {
	Name        string `json:"name"`
	NationalID  string `json:"national_id"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Age         int    `json:"age"`
	VisitReason string `json:"visit_reason"`
}

func (p PatientPayload) toSnapshot() slot.PatientSnapshot {
	return slot.PatientSnapshot{
		Name:        p.Name,
		NationalID:  p.NationalID,
		Phone:       p.Phone,
		Email:       p.Email,
		Age:         p.Age,
		VisitReason: p.VisitReason,
	}
}

type SlotResponse struct {
	ID            uuid.UUID  `json:"id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	Specialty     string     `json:"specialty"`
	VisitDate     string     `json:"visit_date"`
	VisitTime     string     `json:"visit_time"`
	Location      string     `json:"location"`
	Status        string     `json:"status"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

type HoldRequest struct {
	SessionID  string `json:"session_id"`
	TTLMinutes int    `json:"ttl_minutes"`
}

type HoldResponse struct {
	SlotID        uuid.UUID `json:"slot_id"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}

type ConfirmRequest struct {
	SessionID string         `json:"session_id"`
	Patient   PatientPayload `json:"patient"`
}

type ConfirmResponse struct {
	Confirmed bool `json:"confirmed"`
}

type ReleaseRequest struct {
	SessionID string `json:"session_id"`
}

type ReleaseResponse struct {
	Released bool `json:"released"`
}

type IssuePaymentLinkRequest struct {
	SlotID      string         `json:"slot_id"`
	SessionID   string         `json:"session_id"`
	Patient     PatientPayload `json:"patient"`
	AmountCents int64          `json:"amount_cents"`
	TTLMinutes  int            `json:"ttl_minutes"`
}

type IssuePaymentLinkResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PaymentContextResponse struct {
	SlotID      uuid.UUID      `json:"slot_id"`
	SessionID   string         `json:"session_id"`
	Patient     PatientPayload `json:"patient"`
	AmountCents int64          `json:"amount_cents"`
}

type RedeemPaymentLinkRequest struct {
	Token string `json:"token"`
}

type PaymentCallbackRequest struct {
	Token   string `json:"token"`
	Outcome string `json:"outcome"` // success, failure, cancelled
}

type PaymentCallbackResponse struct {
	Confirmed bool `json:"confirmed"`
	Released  bool `json:"released,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
