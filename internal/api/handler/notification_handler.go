package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/eventdesk/internal/api/middleware"
	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/service"
)

// NotificationHandler serves broadcasts and the caller's in-app inbox.
type NotificationHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// Broadcast handles POST /api/v1/notifications/broadcast
//
// @Summary     Send one notification to many users
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       X-Idempotency-Key  header    string                   false  "Idempotency key"
// @Param       body               body      domain.BroadcastRequest  true   "Broadcast payload"
// @Success     202                {object}  service.BroadcastReceipt
// @Failure     422                {object}  map[string]any
// @Router      /api/v1/notifications/broadcast [post]
func (h *NotificationHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req domain.BroadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receipt, err := h.svc.Broadcast(r.Context(), req, r.Header.Get("X-Idempotency-Key"))
	if err != nil {
		h.logger.Warn("broadcast failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	status := http.StatusAccepted
	if receipt.Duplicate {
		status = http.StatusOK
	}
	respondMessage(w, status, "broadcast queued", receipt)
}

// Pending handles GET /api/v1/notifications?limit=
func (h *NotificationHandler) Pending(w http.ResponseWriter, r *http.Request) {
	p, _ := apimw.GetPrincipal(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.svc.Pending(r.Context(), p.UserID, limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// MarkRead handles POST /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, _ := apimw.GetPrincipal(r.Context())
	if err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"), p.UserID); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
