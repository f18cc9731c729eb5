package api

import (
	"encoding/json"
	"net/http"

	"github.com/overplus/booking-service/internal/notify"
)

// notifyHandler runs a dispatch synchronously and returns the full channel
// report, which is what the manual-resend path wants to see.
func notifyHandler(dispatcher *notify.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var job notify.Job
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if job.EmailAddress == "" && job.MessagingAddr == "" {
			writeError(w, http.StatusBadRequest, "missing_recipient", "at least one of email_address or messaging_address is required")
			return
		}

		result := dispatcher.Dispatch(r.Context(), job)
		writeJSON(w, http.StatusOK, result)
	}
}
