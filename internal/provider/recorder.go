package provider

import (
	"context"
	"fmt"
	"sync"
)

// Recorder is a hand-written Mailer and SMSSender that keeps every message
// it is given. Set Err to make sends fail.
type Recorder struct {
	mu   sync.Mutex
	Err  error
	Mail []Message
	SMS  []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) (*SendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	r.Mail = append(r.Mail, msg)
	return &SendResult{MessageID: fmt.Sprintf("mail-%d", len(r.Mail)), Status: "queued"}, nil
}

// SMSSender adapts the recorder to the SMSSender interface.
func (r *Recorder) SMSSender() SMSSender { return recorderSMS{r} }

type recorderSMS struct{ r *Recorder }

func (s recorderSMS) Send(_ context.Context, phone, body string) (*SendResult, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if s.r.Err != nil {
		return nil, s.r.Err
	}
	s.r.SMS = append(s.r.SMS, Message{To: phone, Text: body})
	return &SendResult{MessageID: fmt.Sprintf("sms-%d", len(s.r.SMS)), Status: "queued"}, nil
}

// Sent returns copies of the recorded emails and SMS messages.
func (r *Recorder) Sent() (mail, sms []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Mail...), append([]Message(nil), r.SMS...)
}
