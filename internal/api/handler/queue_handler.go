package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/eventdesk/internal/api/middleware"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/service"
)

// QueueHandler exposes the operator endpoints over the job queues.
type QueueHandler struct {
	admin  *service.QueueAdmin
	logger *zap.Logger
}

func NewQueueHandler(admin *service.QueueAdmin, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{admin: admin, logger: logger}
}

// Overview handles GET /api/v1/queues
func (h *QueueHandler) Overview(w http.ResponseWriter, r *http.Request) {
	out, err := h.admin.Overview(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/queues/{name}
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	out, err := h.admin.Queue(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// ListJobs handles GET /api/v1/queues/{name}/jobs?status=&limit=
func (h *QueueHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	list, err := h.admin.ListJobs(r.Context(), chi.URLParam(r, "name"), queue.State(q.Get("status")), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// GetJob handles GET /api/v1/queues/{name}/jobs/{jobID}
func (h *QueueHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.admin.GetJob(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "jobID"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, j)
}

// RetryJob handles POST /api/v1/queues/{name}/jobs/{jobID}/retry
func (h *QueueHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	name, id := chi.URLParam(r, "name"), chi.URLParam(r, "jobID")
	if err := h.admin.RetryJob(r.Context(), name, id); err != nil {
		h.warn(r, "retry job failed", err)
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "job queued for retry", nil)
}

// RemoveJob handles DELETE /api/v1/queues/{name}/jobs/{jobID}
func (h *QueueHandler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	name, id := chi.URLParam(r, "name"), chi.URLParam(r, "jobID")
	if err := h.admin.RemoveJob(r.Context(), name, id); err != nil {
		h.warn(r, "remove job failed", err)
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "job removed", nil)
}

// cleanBody is the clean request as sent over HTTP; grace is milliseconds.
type cleanBody struct {
	Queue  string      `json:"queue,omitempty"`
	Status queue.State `json:"status,omitempty"`
	Grace  int64       `json:"grace"`
}

// Clean handles POST /api/v1/queues/clean
func (h *QueueHandler) Clean(w http.ResponseWriter, r *http.Request) {
	var body cleanBody
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if body.Grace < 0 {
		respondError(w, http.StatusBadRequest, "grace must not be negative")
		return
	}
	removed, err := h.admin.Clean(r.Context(), service.CleanRequest{
		Queue:  body.Queue,
		Status: body.Status,
		Grace:  time.Duration(body.Grace) * time.Millisecond,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "queues cleaned", removed)
}

// PauseAll handles POST /api/v1/queues/pause
func (h *QueueHandler) PauseAll(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.PauseAll(r.Context()); err != nil {
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "all queues paused", nil)
}

// ResumeAll handles POST /api/v1/queues/resume
func (h *QueueHandler) ResumeAll(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.ResumeAll(r.Context()); err != nil {
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "all queues resumed", nil)
}

// Pause handles POST /api/v1/queues/{name}/pause
func (h *QueueHandler) Pause(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.admin.Pause(r.Context(), name); err != nil {
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "queue "+name+" paused", nil)
}

// Resume handles POST /api/v1/queues/{name}/resume
func (h *QueueHandler) Resume(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.admin.Resume(r.Context(), name); err != nil {
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "queue "+name+" resumed", nil)
}

func (h *QueueHandler) warn(r *http.Request, msg string, err error) {
	h.logger.Warn(msg,
		zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
		zap.Error(err),
	)
}
