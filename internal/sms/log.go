package sms

import (
	"context"
	"log/slog"

	"github.com/mahalle/mahalle-api/internal/phone"
)

// LogSender writes messages to the structured logger instead of a carrier.
type LogSender struct {
	logger *slog.Logger
	reveal bool
}

// NewLogSender constructs a logging sender. Bodies are redacted unless reveal is set.
func NewLogSender(logger *slog.Logger, reveal bool) *LogSender {
	return &LogSender{logger: logger, reveal: reveal}
}

// Send logs the message.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.logger == nil {
		return nil
	}
	if s.reveal {
		s.logger.InfoContext(ctx, "sms", slog.String("phone", msg.Phone), slog.String("body", msg.Body))
		return nil
	}
	s.logger.InfoContext(ctx, "sms", slog.String("phone", phone.Mask(msg.Phone)), slog.Int("body_len", len(msg.Body)))
	return nil
}
