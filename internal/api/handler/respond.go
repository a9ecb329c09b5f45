package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/service"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{Success: true, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, msg string, data any) {
	writeEnvelope(w, status, envelope{Success: true, Message: msg, Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	writeEnvelope(w, status, envelope{Success: false, Message: msg})
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// mapError translates sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	var scan *service.ScanError
	switch {
	case errors.As(err, &scan):
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: err.Error(), Reason: string(scan.Reason)})
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, queue.ErrJobNotFound),
		errors.Is(err, queue.ErrUnknownQueue):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrRegistrationCancelled),
		errors.Is(err, queue.ErrJobNotFailed),
		errors.Is(err, queue.ErrJobActive):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidChannel),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrNoRecipients),
		errors.Is(err, domain.ErrTooManyRecipients),
		errors.Is(err, domain.ErrInvalidExpiry),
		errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrInvalidRecommendScore),
		errors.Is(err, domain.ErrNotAttended),
		errors.Is(err, domain.ErrNotTicket),
		errors.Is(err, domain.ErrEventMismatch),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, queue.ErrInvalidState):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
