package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/service"
)

type countingObserver struct {
	scans    map[string]int
	checkIns map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{scans: map[string]int{}, checkIns: map[string]int{}}
}

func (o *countingObserver) QRScan(r string)  { o.scans[r]++ }
func (o *countingObserver) CheckIn(s string) { o.checkIns[s]++ }

func TestAttendance_CheckIn(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ev1", "u1", domain.RegistrationRegistered)
	obs := newCountingObserver()
	qrs := service.NewQRService(e.repos, e.codec, obs)
	att := service.NewAttendanceService(e.repos, qrs, obs, zap.NewNop())
	ctx := context.Background()

	ticket, err := qrs.TicketQR(ctx, "ev1", "u1")
	if err != nil {
		t.Fatal(err)
	}

	first, err := att.CheckIn(ctx, ticket.Payload, ticket.Signature, "ev1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != service.StatusCheckedIn || first.UserName != "Ada" {
		t.Fatalf("unexpected result %+v", first)
	}
	second, err := att.CheckIn(ctx, ticket.Payload, ticket.Signature, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != service.StatusAlreadyCheckedIn {
		t.Fatalf("expected already_checked_in, got %s", second.Status)
	}

	reg, _ := e.repos.Registrations.Get(ctx, "ev1", "u1")
	if reg.Status != domain.RegistrationAttended || reg.AttendedAt == nil {
		t.Fatalf("registration not marked attended: %+v", reg)
	}
	if obs.scans["valid"] != 2 || obs.checkIns[service.StatusCheckedIn] != 1 {
		t.Errorf("unexpected observations %v %v", obs.scans, obs.checkIns)
	}
}

func TestAttendance_Rejections(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ev1", "u1", domain.RegistrationRegistered)
	e.register(t, "ev1", "u2", domain.RegistrationCancelled)
	qrs := service.NewQRService(e.repos, e.codec, nil)
	att := service.NewAttendanceService(e.repos, qrs, nil, zap.NewNop())
	ctx := context.Background()

	ticket, _ := qrs.TicketQR(ctx, "ev1", "u1")
	eventCode, _ := qrs.EventQR(ctx, "ev1")
	// A ticket for u2 signed before the registration was cancelled.
	stale, _ := e.codec.BuildTicketQR("u2", "ev1", "Alan", "alan@example.com", "GopherCon", eventStart)

	tampered := []byte(ticket.Signature)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	tests := []struct {
		name      string
		data, sig string
		eventID   string
		want      error
		reason    qr.Reason
	}{
		{"bad signature", ticket.Payload, string(tampered), "", nil, qr.ReasonBadSignature},
		{"missing signature", ticket.Payload, "", "", nil, qr.ReasonMalformed},
		{"event code is not a ticket", eventCode.Payload, eventCode.Signature, "", domain.ErrNotTicket, ""},
		{"wrong event", ticket.Payload, ticket.Signature, "ev2", domain.ErrEventMismatch, ""},
		{"cancelled registration", stale.Payload, stale.Signature, "", domain.ErrRegistrationCancelled, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := att.CheckIn(ctx, tc.data, tc.sig, tc.eventID)
			if tc.reason != "" {
				var se *service.ScanError
				if !errors.As(err, &se) || se.Reason != tc.reason {
					t.Fatalf("expected scan error %s, got %v", tc.reason, err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := qrs.TicketQR(ctx, "ev1", "u2"); !errors.Is(err, domain.ErrRegistrationCancelled) {
		t.Fatalf("cancelled registrations get no ticket, got %v", err)
	}
}
