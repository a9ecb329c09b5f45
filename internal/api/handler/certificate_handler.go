package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/eventdesk/internal/api/middleware"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/service"
)

type CertificateHandler struct {
	svc    *service.CertificateService
	logger *zap.Logger
}

func NewCertificateHandler(svc *service.CertificateService, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{svc: svc, logger: logger}
}

type jobAccepted struct {
	JobID     string `json:"job_id"`
	Queue     string `json:"queue"`
	Duplicate bool   `json:"duplicate"`
}

func accepted(h queue.Handle) jobAccepted {
	return jobAccepted{JobID: h.JobID, Queue: h.Queue, Duplicate: !h.Created}
}

// GenerateForEvent handles POST /api/v1/events/{id}/certificates
func (h *CertificateHandler) GenerateForEvent(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.GenerateForEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.warn(r, "bulk certificate enqueue failed", err)
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusAccepted, "certificate generation queued", accepted(job))
}

// GenerateForUser handles POST /api/v1/events/{id}/certificates/{userID}.
// ?regenerate=true replaces an existing certificate.
func (h *CertificateHandler) GenerateForUser(w http.ResponseWriter, r *http.Request) {
	eventID, userID := chi.URLParam(r, "id"), chi.URLParam(r, "userID")
	var (
		job queue.Handle
		err error
	)
	if r.URL.Query().Get("regenerate") == "true" {
		job, err = h.svc.Regenerate(r.Context(), eventID, userID)
	} else {
		job, err = h.svc.GenerateForUser(r.Context(), eventID, userID)
	}
	if err != nil {
		h.warn(r, "certificate enqueue failed", err)
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusAccepted, "certificate generation queued", accepted(job))
}

// Mine handles GET /api/v1/certificates, the caller's certificates.
// Admins may filter by ?event_id= and ?user_id= instead.
func (h *CertificateHandler) Mine(w http.ResponseWriter, r *http.Request) {
	p, _ := apimw.GetPrincipal(r.Context())
	eventID, userID := r.URL.Query().Get("event_id"), p.UserID
	if p.IsAdmin() {
		userID = r.URL.Query().Get("user_id")
	}
	list, err := h.svc.List(r.Context(), eventID, userID)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Lookup handles GET /api/v1/certificates/{number}; public, used to check a printed certificate.
func (h *CertificateHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CertificateHandler) warn(r *http.Request, msg string, err error) {
	h.logger.Warn(msg,
		zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
		zap.Error(err),
	)
}
