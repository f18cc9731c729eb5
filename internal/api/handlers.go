package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/overplus/booking-service/internal/redis"
	"github.com/overplus/booking-service/internal/slot"
)

func getSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		s, err := svc.GetSlot(r.Context(), slotID)
		if err != nil {
			if errors.Is(err, slot.ErrSlotNotFound) {
				writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, SlotResponse{
			ID:            s.ID,
			ProviderID:    s.ProviderID,
			Specialty:     s.Specialty,
			VisitDate:     s.VisitDate.Format("2006-01-02"),
			VisitTime:     s.VisitTime,
			Location:      s.Location,
			Status:        string(s.Status),
			HoldExpiresAt: s.HoldExpiresAt,
		})
	}
}

func holdSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		var req HoldRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
			return
		}

		hold, err := svc.Hold(r.Context(), slotID, req.SessionID, time.Duration(req.TTLMinutes)*time.Minute)
		if err != nil {
			handleHoldError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, HoldResponse{
			SlotID:        hold.SlotID,
			HoldExpiresAt: hold.ExpiresAt,
		})
	}
}

func confirmSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		var req ConfirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
			return
		}
		if req.Patient.Name == "" || req.Patient.Phone == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_fields", "patient name and phone are required")
			return
		}

		if _, err := svc.Confirm(r.Context(), slotID, req.SessionID, req.Patient.toSnapshot()); err != nil {
			handleConfirmError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConfirmResponse{Confirmed: true})
	}
}

func releaseSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		// Body is optional: admin cleanup releases whoever holds the slot.
		var req ReleaseRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		released, err := svc.Release(r.Context(), slotID, req.SessionID)
		if err != nil {
			if errors.Is(err, slot.ErrSlotNotFound) {
				writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, ReleaseResponse{Released: released})
	}
}

func sweepHandler(sweeper *slot.Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := sweeper.Sweep(r.Context(), time.Now())
		writeJSON(w, http.StatusOK, report)
	}
}

func sweepStatusHandler(sweeper *slot.Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := sweeper.Status(r.Context(), time.Now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func slotIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleHoldError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrAlreadyHeld):
		writeError(w, http.StatusConflict, "already_held", "this slot is no longer available")
	case errors.Is(err, slot.ErrSlotBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_busy", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleConfirmError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrHoldExpired):
		writeError(w, http.StatusGone, "hold_expired", "your session expired, please choose a slot again")
	case errors.Is(err, slot.ErrHoldMismatch):
		writeError(w, http.StatusConflict, "hold_mismatch", "this slot is held by a different session")
	case errors.Is(err, slot.ErrNotHeld):
		writeError(w, http.StatusConflict, "not_held", "this slot is not currently held")
	default:
		// A confirm whose outcome could not be verified is not safely
		// retryable without the caller knowing.
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	}
}
