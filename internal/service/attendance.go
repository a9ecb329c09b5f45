package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/repository"
)

// ScanObserver receives QR verification and check-in outcomes.
// *metrics.Metrics satisfies it.
type ScanObserver interface {
	QRScan(result string)
	CheckIn(status string)
}

type nopObserver struct{}

func (nopObserver) QRScan(string)  {}
func (nopObserver) CheckIn(string) {}

// ScanError carries the reason a scanned code was rejected.
type ScanError struct {
	Reason qr.Reason
}

func (e *ScanError) Error() string { return "qr code rejected: " + string(e.Reason) }

// QRService issues and verifies the signed codes.
type QRService struct {
	repos *repository.Store
	codec *qr.Codec
	obs   ScanObserver
}

func NewQRService(repos *repository.Store, codec *qr.Codec, obs ScanObserver) *QRService {
	if obs == nil {
		obs = nopObserver{}
	}
	return &QRService{repos: repos, codec: codec, obs: obs}
}

// EventQR is the code shown at the venue entrance.
func (s *QRService) EventQR(ctx context.Context, eventID string) (qr.Signed, error) {
	event, err := s.repos.Events.GetByID(ctx, eventID)
	if err != nil {
		return qr.Signed{}, err
	}
	return s.codec.BuildEventQR(event.ID, event.Title, event.StartTime, event.Venue)
}

// TicketQR is the attendee's personal check-in code. Cancelled
// registrations get no ticket.
func (s *QRService) TicketQR(ctx context.Context, eventID, userID string) (qr.Signed, error) {
	reg, err := s.repos.Registrations.Get(ctx, eventID, userID)
	if err != nil {
		return qr.Signed{}, err
	}
	if reg.Status == domain.RegistrationCancelled {
		return qr.Signed{}, domain.ErrRegistrationCancelled
	}
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return qr.Signed{}, err
	}
	event, err := s.repos.Events.GetByID(ctx, eventID)
	if err != nil {
		return qr.Signed{}, err
	}
	return s.codec.BuildTicketQR(user.ID, event.ID, user.Name, user.Email, event.Title, event.StartTime)
}

// Verify checks a payload and signature and records the outcome.
func (s *QRService) Verify(qrData, signature string) qr.Result {
	return s.observe(s.codec.VerifyPayload(qrData, signature))
}

// VerifyScanned checks the raw string read from a QR image.
func (s *QRService) VerifyScanned(content string) qr.Result {
	return s.observe(s.codec.VerifyScanned(content))
}

func (s *QRService) observe(res qr.Result) qr.Result {
	if res.Valid {
		s.obs.QRScan("valid")
	} else {
		s.obs.QRScan(string(res.Error))
	}
	return res
}

const (
	StatusCheckedIn        = "checked_in"
	StatusAlreadyCheckedIn = "already_checked_in"
)

type CheckInResult struct {
	Status     string    `json:"status"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name,omitempty"`
	EventTitle string    `json:"event_title,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// AttendanceService turns verified ticket scans into attendance.
type AttendanceService struct {
	repos  *repository.Store
	qr     *QRService
	obs    ScanObserver
	now    func() time.Time
	logger *zap.Logger
}

func NewAttendanceService(repos *repository.Store, qrs *QRService, obs ScanObserver, logger *zap.Logger) *AttendanceService {
	if obs == nil {
		obs = nopObserver{}
	}
	return &AttendanceService{repos: repos, qr: qrs, obs: obs, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

// CheckIn verifies a scanned ticket and marks the registration attended.
// Scanning the same ticket again reports already_checked_in. eventID, when
// set, is the event the scanner is stationed at.
func (s *AttendanceService) CheckIn(ctx context.Context, qrData, signature, eventID string) (*CheckInResult, error) {
	res := s.qr.Verify(qrData, signature)
	if !res.Valid {
		return nil, &ScanError{Reason: res.Error}
	}
	env := res.Data
	if env.Type != qr.KindTicket {
		return nil, domain.ErrNotTicket
	}
	if eventID != "" && env.EventID != eventID {
		return nil, domain.ErrEventMismatch
	}

	now := s.now()
	changed, err := s.repos.Registrations.MarkAttended(ctx, env.EventID, env.UserID, now)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrRegistrationCancelled):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("mark attended: %w", err)
	}

	out := &CheckInResult{
		Status:     StatusCheckedIn,
		EventID:    env.EventID,
		UserID:     env.UserID,
		UserName:   env.UserName,
		EventTitle: env.EventTitle,
		CheckedAt:  now,
	}
	if !changed {
		out.Status = StatusAlreadyCheckedIn
	}
	s.obs.CheckIn(out.Status)
	s.logger.Info("attendee checked in",
		zap.String("event_id", env.EventID),
		zap.String("user_id", env.UserID),
		zap.String("status", out.Status),
	)
	return out, nil
}
