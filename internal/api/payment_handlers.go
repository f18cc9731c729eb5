package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/overplus/booking-service/internal/logging"
	"github.com/overplus/booking-service/internal/notify"
	"github.com/overplus/booking-service/internal/paymentlink"
	"github.com/overplus/booking-service/internal/slot"
)

func issuePaymentLinkHandler(reg *paymentlink.Registry, svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IssuePaymentLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}
		if req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
			return
		}
		if req.AmountCents <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount_cents must be positive")
			return
		}

		// A link only makes sense against the caller's own live hold.
		current, err := svc.GetSlot(r.Context(), slotID)
		if err != nil {
			if errors.Is(err, slot.ErrSlotNotFound) {
				writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if current.Status != slot.StatusHeld || current.HolderSession == nil || *current.HolderSession != req.SessionID {
			writeError(w, http.StatusConflict, "not_held", "slot is not held by this session")
			return
		}

		link, err := reg.Issue(r.Context(), paymentlink.BookingContext{
			SlotID:      slotID,
			SessionID:   req.SessionID,
			Patient:     req.Patient.toSnapshot(),
			AmountCents: req.AmountCents,
		}, time.Duration(req.TTLMinutes)*time.Minute)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, IssuePaymentLinkResponse{
			Token:     link.Token,
			ExpiresAt: link.ExpiresAt,
		})
	}
}

func resolvePaymentLinkHandler(reg *paymentlink.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeError(w, http.StatusBadRequest, "missing_token", "token query parameter is required")
			return
		}

		bc, err := reg.Resolve(r.Context(), token)
		if err != nil {
			handlePaymentLinkError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, contextResponse(bc))
	}
}

func redeemPaymentLinkHandler(reg *paymentlink.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RedeemPaymentLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Token == "" {
			writeError(w, http.StatusBadRequest, "missing_token", "token is required")
			return
		}

		bc, err := reg.Redeem(r.Context(), req.Token)
		if err != nil {
			handlePaymentLinkError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, contextResponse(bc))
	}
}

// paymentCallbackHandler is the webhook the payment page redirects through.
// A success outcome redeems the token (at most once), confirms the held
// slot, and hands the provider notification to the dispatcher off the
// request path. Failure and cancellation give the slot back immediately
// instead of waiting for the sweep.
func paymentCallbackHandler(reg *paymentlink.Registry, svc *slot.Service, dispatcher *notify.Dispatcher, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PaymentCallbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Token == "" {
			writeError(w, http.StatusBadRequest, "missing_token", "token is required")
			return
		}

		switch req.Outcome {
		case "success":
			bc, err := reg.Redeem(r.Context(), req.Token)
			if err != nil {
				handlePaymentLinkError(w, err)
				return
			}

			if _, err := svc.Confirm(r.Context(), bc.SlotID, bc.SessionID, bc.Patient); err != nil {
				handleConfirmError(w, err)
				return
			}

			dispatchProviderNotification(svc, dispatcher, logger, bc.SlotID, bc.Patient)
			writeJSON(w, http.StatusOK, PaymentCallbackResponse{Confirmed: true})

		case "failure", "cancelled":
			bc, err := reg.Resolve(r.Context(), req.Token)
			if err != nil {
				handlePaymentLinkError(w, err)
				return
			}

			released, err := svc.Release(r.Context(), bc.SlotID, bc.SessionID)
			if err != nil && !errors.Is(err, slot.ErrSlotNotFound) {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			writeJSON(w, http.StatusOK, PaymentCallbackResponse{Released: released})

		default:
			writeError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be success, failure or cancelled")
		}
	}
}

// dispatchProviderNotification builds the job and runs it on its own
// goroutine with a fresh context: delivery retries must not stretch the
// confirming request, and cancelling that request must not cancel them.
func dispatchProviderNotification(svc *slot.Service, dispatcher *notify.Dispatcher, logger *logging.Logger, slotID uuid.UUID, patient slot.PatientSnapshot) {
	if dispatcher == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		confirmed, err := svc.GetSlot(ctx, slotID)
		if err != nil {
			logger.Warn("cannot notify provider, slot load failed", "slot_id", slotID, "error", err)
			return
		}
		provider, err := svc.GetProvider(ctx, confirmed.ProviderID)
		if err != nil {
			logger.Warn("cannot notify provider, provider load failed", "slot_id", slotID, "error", err)
			return
		}

		dispatcher.Dispatch(ctx, buildProviderJob(confirmed, provider, patient))
	}()
}

func buildProviderJob(s *slot.Slot, p *slot.Provider, patient slot.PatientSnapshot) notify.Job {
	job := notify.Job{
		SlotID:       s.ID,
		ProviderName: p.Name,
		Subject:      "New confirmed booking",
		EmailBody: fmt.Sprintf(
			"A booking was confirmed for your %s %s slot at %s.\n\nPatient: %s\nPhone: %s\nReason: %s\n",
			s.VisitDate.Format("Monday, January 2"), s.VisitTime, s.Location,
			patient.Name, patient.Phone, patient.VisitReason,
		),
		Text: fmt.Sprintf("New booking: %s %s at %s. Patient %s (%s).",
			s.VisitDate.Format("Mon 1/2"), s.VisitTime, s.Location,
			patient.Name, patient.Phone,
		),
	}
	if p.Email != nil {
		job.EmailAddress = *p.Email
	}
	if p.Phone != nil {
		job.MessagingAddr = *p.Phone
	}
	return job
}

func contextResponse(bc *paymentlink.BookingContext) PaymentContextResponse {
	return PaymentContextResponse{
		SlotID:    bc.SlotID,
		SessionID: bc.SessionID,
		Patient: PatientPayload{
			Name:        bc.Patient.Name,
			NationalID:  bc.Patient.NationalID,
			Phone:       bc.Patient.Phone,
			Email:       bc.Patient.Email,
			Age:         bc.Patient.Age,
			VisitReason: bc.Patient.VisitReason,
		},
		AmountCents: bc.AmountCents,
	}
}

func handlePaymentLinkError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, paymentlink.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment_link_not_found", err.Error())
	case errors.Is(err, paymentlink.ErrAlreadyUsed):
		writeError(w, http.StatusConflict, "payment_link_already_used", err.Error())
	case errors.Is(err, paymentlink.ErrExpired):
		writeError(w, http.StatusGone, "payment_link_expired", "this payment link has expired, please start over")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
