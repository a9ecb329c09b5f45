package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/eventdesk/internal/api/middleware"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/service"
)

type AttendanceHandler struct {
	svc    *service.AttendanceService
	qr     *service.QRService
	logger *zap.Logger
}

func NewAttendanceHandler(svc *service.AttendanceService, qrs *service.QRService, logger *zap.Logger) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, qr: qrs, logger: logger}
}

type scanRequest struct {
	QRData    string `json:"qrData"`
	Signature string `json:"signature"`
	EventID   string `json:"eventId,omitempty"`
}

// Scan handles POST /api/v1/attendance/scan.
// A rejected code answers 400 with the reason: malformed, bad_signature or expired.
func (h *AttendanceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.svc.CheckIn(r.Context(), req.QRData, req.Signature, req.EventID)
	if err != nil {
		h.logger.Info("scan rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	msg := "checked in"
	if res.Status == service.StatusAlreadyCheckedIn {
		msg = "already checked in"
	}
	respondMessage(w, http.StatusOK, msg, res)
}

// verifyRequest carries either the payload and signature separately or
// content, the raw string a scanner read off the image.
type verifyRequest struct {
	QRData    string `json:"qrData"`
	Signature string `json:"signature"`
	Content   string `json:"content,omitempty"`
}

// Verify handles POST /api/v1/qr/verify. It only checks the code and answers
// with the bare verification result; invalid codes get 400.
func (h *AttendanceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var res qr.Result
	if req.Content != "" {
		res = h.qr.VerifyScanned(req.Content)
	} else {
		res = h.qr.Verify(req.QRData, req.Signature)
	}
	status := http.StatusOK
	if !res.Valid {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}
