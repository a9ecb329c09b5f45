package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/eventdesk/internal/api/middleware"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/service"
)

// EventHandler serves registration and the event's QR codes.
type EventHandler struct {
	regs   *service.RegistrationService
	qr     *service.QRService
	logger *zap.Logger
}

func NewEventHandler(regs *service.RegistrationService, qrs *service.QRService, logger *zap.Logger) *EventHandler {
	return &EventHandler{regs: regs, qr: qrs, logger: logger}
}

// Register handles POST /api/v1/events/{id}/register for the caller.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	p, _ := apimw.GetPrincipal(r.Context())
	reg, err := h.regs.Register(r.Context(), chi.URLParam(r, "id"), p.UserID)
	if err != nil {
		h.logger.Warn("registration failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondMessage(w, http.StatusCreated, "registered", reg)
}

// EventQR handles GET /api/v1/events/{id}/qr.
// ?format=json returns the signed payload with a data URL instead of a PNG.
func (h *EventHandler) EventQR(w http.ResponseWriter, r *http.Request) {
	signed, err := h.qr.EventQR(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	h.writeCode(w, r, signed)
}

// Ticket handles GET /api/v1/events/{id}/ticket, the caller's own check-in code.
func (h *EventHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	p, _ := apimw.GetPrincipal(r.Context())
	signed, err := h.qr.TicketQR(r.Context(), chi.URLParam(r, "id"), p.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	h.writeCode(w, r, signed)
}

type codeView struct {
	qr.Signed
	Image string `json:"image"`
}

func (h *EventHandler) writeCode(w http.ResponseWriter, r *http.Request, signed qr.Signed) {
	size := qr.DefaultImageSize
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s >= 64 && s <= 1024 {
		size = s
	}
	if r.URL.Query().Get("format") == "json" {
		url, err := qr.EncodeDataURL(signed, size)
		if err != nil {
			mapError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, codeView{Signed: signed, Image: url})
		return
	}
	png, err := qr.EncodePNG(signed, size)
	if err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
