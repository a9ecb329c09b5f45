package provider

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogMailer and LogSMSSender stand in for real providers when no API URL
// is configured: messages are logged and reported as accepted.
type LogMailer struct{ logger *zap.Logger }

func NewLogMailer(logger *zap.Logger) *LogMailer { return &LogMailer{logger: logger} }

func (m *LogMailer) Send(_ context.Context, msg Message) (*SendResult, error) {
	id := uuid.NewString()
	m.logger.Info("email not sent, no mail provider configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("message_id", id),
	)
	return &SendResult{MessageID: id, Status: "logged"}, nil
}

type LogSMSSender struct{ logger *zap.Logger }

func NewLogSMSSender(logger *zap.Logger) *LogSMSSender { return &LogSMSSender{logger: logger} }

func (s *LogSMSSender) Send(_ context.Context, phone, body string) (*SendResult, error) {
	id := uuid.NewString()
	s.logger.Info("sms not sent, no sms provider configured",
		zap.String("to", phone),
		zap.Int("length", len(body)),
		zap.String("message_id", id),
	)
	return &SendResult{MessageID: id, Status: "logged"}, nil
}

var (
	_ Mailer    = (*LogMailer)(nil)
	_ SMSSender = (*LogSMSSender)(nil)
)
