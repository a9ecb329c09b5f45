package qr_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/signing"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newCodec(t *testing.T) (*qr.Codec, *clock) {
	t.Helper()
	s, err := signing.NewSigner("qr-secret")
	if err != nil {
		t.Fatal(err)
	}
	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	return qr.NewCodec(s, qr.WithClock(c.Now)), c
}

func TestTicket_RoundTrip(t *testing.T) {
	codec, _ := newCodec(t)
	start := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	signed, err := codec.BuildTicketQR("u1", "e1", "Ada", "ada@example.com", "GopherCon", start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := codec.VerifyPayload(signed.Payload, signed.Signature)
	if !res.Valid {
		t.Fatalf("expected valid, got reason %q", res.Error)
	}
	if res.Data.Type != qr.KindTicket || res.Data.UserID != "u1" || res.Data.EventID != "e1" {
		t.Fatalf("unexpected envelope: %+v", res.Data)
	}
	if !res.Data.StartTime.Equal(start) {
		t.Fatalf("expected start %v, got %v", start, res.Data.StartTime)
	}
}

func TestVerifyScanned_RoundTrip(t *testing.T) {
	codec, _ := newCodec(t)
	signed, err := codec.BuildEventQR("e1", "Meetup", time.Now(), "Hall A")
	if err != nil {
		t.Fatal(err)
	}
	content, err := signed.Content()
	if err != nil {
		t.Fatal(err)
	}
	res := codec.VerifyScanned(content)
	if !res.Valid || res.Data.Type != qr.KindEvent {
		t.Fatalf("expected valid event code, got %+v", res)
	}
}

func TestVerify_Rejections(t *testing.T) {
	codec, clk := newCodec(t)
	signed, err := codec.BuildTicketQR("u1", "e1", "Ada", "ada@example.com", "GopherCon", clk.t)
	if err != nil {
		t.Fatal(err)
	}

	tampered := strings.Replace(signed.Payload, `"u1"`, `"u2"`, 1)

	other, _ := signing.NewSigner("other-secret")
	foreign := qr.NewCodec(other, qr.WithClock(clk.Now))
	foreignSigned, _ := foreign.BuildTicketQR("u1", "e1", "Ada", "ada@example.com", "GopherCon", clk.t)

	notJSON := "not json"
	notJSONSig := signing.Sign([]byte(notJSON), []byte("qr-secret"))

	tests := []struct {
		name    string
		payload string
		sig     string
		want    qr.Reason
	}{
		{"tampered payload", tampered, signed.Signature, qr.ReasonBadSignature},
		{"foreign key", foreignSigned.Payload, foreignSigned.Signature, qr.ReasonBadSignature},
		{"garbage signature", signed.Payload, "xyz", qr.ReasonBadSignature},
		{"empty payload", "", signed.Signature, qr.ReasonMalformed},
		{"signed non-json payload", notJSON, notJSONSig, qr.ReasonMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := codec.VerifyPayload(tc.payload, tc.sig)
			if res.Valid {
				t.Fatal("expected invalid result")
			}
			if res.Error != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, res.Error)
			}
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	codec, clk := newCodec(t)
	signed, err := codec.BuildEventQR("e1", "Meetup", clk.t, "Hall A")
	if err != nil {
		t.Fatal(err)
	}

	clk.t = clk.t.Add(24 * time.Hour)
	if res := codec.VerifyPayload(signed.Payload, signed.Signature); !res.Valid {
		t.Fatalf("expected valid at exactly 24h, got %q", res.Error)
	}

	clk.t = clk.t.Add(time.Second)
	res := codec.VerifyPayload(signed.Payload, signed.Signature)
	if res.Valid || res.Error != qr.ReasonExpired {
		t.Fatalf("expected expired, got %+v", res)
	}
}

func TestVerify_FutureTimestampIsMalformed(t *testing.T) {
	codec, clk := newCodec(t)
	signed, err := codec.BuildEventQR("e1", "Meetup", clk.t, "")
	if err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(-2 * time.Minute)
	res := codec.VerifyPayload(signed.Payload, signed.Signature)
	if res.Error != qr.ReasonMalformed {
		t.Fatalf("expected malformed, got %+v", res)
	}
}

func TestVerifyScanned_Malformed(t *testing.T) {
	codec, _ := newCodec(t)
	for _, content := range []string{"", "{", `{"qrData":"x"}`, "plain text"} {
		if res := codec.VerifyScanned(content); res.Valid || res.Error != qr.ReasonMalformed {
			t.Errorf("content %q: expected malformed, got %+v", content, res)
		}
	}
}

func TestBuild_MissingFields(t *testing.T) {
	codec, _ := newCodec(t)
	if _, err := codec.BuildTicketQR("", "e1", "", "", "", time.Now()); !errors.Is(err, qr.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := codec.BuildEventQR("", "", time.Now(), ""); !errors.Is(err, qr.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := codec.BuildCertificateQR("", "", "", time.Now()); !errors.Is(err, qr.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestEncodePNG(t *testing.T) {
	codec, clk := newCodec(t)
	signed, err := codec.BuildCertificateQR("CERT-20260501-ABCDEF12", "Ada", "GopherCon", clk.t)
	if err != nil {
		t.Fatal(err)
	}

	png, err := qr.EncodePNG(signed, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("expected PNG signature")
	}

	url, err := qr.EncodeDataURL(signed, 128)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected data url prefix: %.30s", url)
	}
}

func TestSigned_ContentShape(t *testing.T) {
	s := qr.Signed{Payload: `{"a":1}`, Signature: "ff"}
	content, err := s.Content()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		t.Fatal(err)
	}
	if m["qrData"] != `{"a":1}` || m["signature"] != "ff" {
		t.Fatalf("unexpected content: %v", m)
	}
}
