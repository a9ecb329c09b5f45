// Package qr builds, renders and verifies the signed QR codes used for event
// check-in, attendee tickets and printed certificates.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/notifyhub/eventdesk/internal/signing"
)

// Kind is the discriminator stored in every QR envelope.
type Kind string

const (
	KindEvent       Kind = "event"
	KindTicket      Kind = "ticket"
	KindCertificate Kind = "certificate"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindEvent, KindTicket, KindCertificate:
		return true
	}
	return false
}

// Reason explains why a scanned code was rejected.
type Reason string

const (
	ReasonMalformed    Reason = "malformed"
	ReasonBadSignature Reason = "bad_signature"
	ReasonExpired      Reason = "expired"
)

const (
	DefaultMaxAge    = 24 * time.Hour
	DefaultClockSkew = time.Minute
	DefaultImageSize = 256
)

var ErrMissingField = errors.New("qr: required field is empty")

// Envelope is the JSON document that gets signed. Timestamp is unix milliseconds.
type Envelope struct {
	Type Kind `json:"type"`

	EventID    string     `json:"eventId,omitempty"`
	EventTitle string     `json:"eventTitle,omitempty"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	Venue      string     `json:"venue,omitempty"`

	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`

	CertificateNumber string     `json:"certificateNumber,omitempty"`
	IssuedAt          *time.Time `json:"issuedAt,omitempty"`

	Timestamp int64 `json:"timestamp"`
}

// Signed is a serialized envelope together with its hex signature.
type Signed struct {
	Payload   string `json:"qrData"`
	Signature string `json:"signature"`
}

// Content is the string encoded into the QR image.
func (s Signed) Content() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal qr content: %w", err)
	}
	return string(b), nil
}

// Result is the outcome of verifying a scanned code. Invalid input never
// produces an error, only Valid=false with a Reason.
type Result struct {
	Valid bool      `json:"valid"`
	Data  *Envelope `json:"data,omitempty"`
	Error Reason    `json:"error,omitempty"`
}

func invalid(r Reason) Result { return Result{Valid: false, Error: r} }

// Codec signs and verifies envelopes with a single secret.
type Codec struct {
	signer *signing.Signer
	maxAge time.Duration
	skew   time.Duration
	now    func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithMaxAge(d time.Duration) Option {
	return func(c *Codec) { c.maxAge = d }
}

func NewCodec(signer *signing.Signer, opts ...Option) *Codec {
	c := &Codec{
		signer: signer,
		maxAge: DefaultMaxAge,
		skew:   DefaultClockSkew,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildEventQR signs an event check-in code.
func (c *Codec) BuildEventQR(eventID, title string, startTime time.Time, venue string) (Signed, error) {
	if eventID == "" {
		return Signed{}, fmt.Errorf("%w: eventId", ErrMissingField)
	}
	st := startTime.UTC()
	return c.sign(Envelope{
		Type:       KindEvent,
		EventID:    eventID,
		EventTitle: title,
		StartTime:  &st,
		Venue:      venue,
	})
}

// BuildTicketQR signs an attendee ticket for one event.
func (c *Codec) BuildTicketQR(userID, eventID, userName, userEmail, eventTitle string, eventDate time.Time) (Signed, error) {
	if userID == "" {
		return Signed{}, fmt.Errorf("%w: userId", ErrMissingField)
	}
	if eventID == "" {
		return Signed{}, fmt.Errorf("%w: eventId", ErrMissingField)
	}
	d := eventDate.UTC()
	return c.sign(Envelope{
		Type:       KindTicket,
		EventID:    eventID,
		EventTitle: eventTitle,
		StartTime:  &d,
		UserID:     userID,
		UserName:   userName,
		UserEmail:  userEmail,
	})
}

// BuildCertificateQR signs the verification code printed on a certificate.
func (c *Codec) BuildCertificateQR(number, userName, eventTitle string, issuedAt time.Time) (Signed, error) {
	if number == "" {
		return Signed{}, fmt.Errorf("%w: certificateNumber", ErrMissingField)
	}
	ia := issuedAt.UTC()
	return c.sign(Envelope{
		Type:              KindCertificate,
		CertificateNumber: number,
		UserName:          userName,
		EventTitle:        eventTitle,
		IssuedAt:          &ia,
	})
}

func (c *Codec) sign(env Envelope) (Signed, error) {
	env.Timestamp = c.now().UnixMilli()
	payload, err := json.Marshal(env)
	if err != nil {
		return Signed{}, fmt.Errorf("marshal qr envelope: %w", err)
	}
	return Signed{Payload: string(payload), Signature: c.signer.Sign(payload)}, nil
}

// VerifyScanned verifies the raw string read from a QR image.
func (c *Codec) VerifyScanned(content string) Result {
	var s Signed
	if err := json.Unmarshal([]byte(content), &s); err != nil {
		return invalid(ReasonMalformed)
	}
	return c.VerifyPayload(s.Payload, s.Signature)
}

// VerifyPayload verifies a payload and signature submitted separately.
func (c *Codec) VerifyPayload(qrData, signature string) Result {
	if qrData == "" || signature == "" {
		return invalid(ReasonMalformed)
	}
	if !c.signer.Verify([]byte(qrData), signature) {
		return invalid(ReasonBadSignature)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(qrData), &env); err != nil {
		return invalid(ReasonMalformed)
	}
	if !env.Type.IsValid() || env.Timestamp <= 0 {
		return invalid(ReasonMalformed)
	}

	age := c.now().Sub(time.UnixMilli(env.Timestamp))
	switch {
	case age < -c.skew:
		return invalid(ReasonMalformed)
	case age > c.maxAge:
		return invalid(ReasonExpired)
	}
	return Result{Valid: true, Data: &env}
}

// EncodePNG renders the signed content as a PNG at the highest recovery level.
func EncodePNG(s Signed, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	content, err := s.Content()
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(content, qrcode.Highest, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return png, nil
}

// EncodeDataURL renders the code as a base64 PNG data URL.
func EncodeDataURL(s Signed, size int) (string, error) {
	png, err := EncodePNG(s, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
