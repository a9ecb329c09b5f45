package provider

import (
	"context"
	"errors"
)

// ErrRejected wraps a 4xx answer from a provider: the message itself is
// bad, so sending it again will not help.
var ErrRejected = errors.New("provider rejected message")

// Message is an outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// SendResult maps the provider's accepted response body.
type SendResult struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// Mailer abstracts delivery to an external email service.
// Mocking this interface in tests gives full control over provider behaviour
// without making real HTTP calls.
type Mailer interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// SMSSender abstracts delivery to an external SMS gateway.
type SMSSender interface {
	Send(ctx context.Context, phone, body string) (*SendResult, error)
}
