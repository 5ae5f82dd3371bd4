package sms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HTTPSender posts messages to an SMS gateway as JSON.
type HTTPSender struct {
	url     string
	apiKey  string
	from    string
	timeout time.Duration
}

// NewHTTPSender constructs a gateway sender.
func NewHTTPSender(url, apiKey, from string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{url: url, apiKey: apiKey, from: from, timeout: timeout}
}

// Send posts the message and fails on transport errors or a non-2xx reply.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return ctx.Err()
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(s.url)
	agent.JSON(payload{To: msg.Phone, From: s.from, Text: msg.Body})
	if s.apiKey != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+s.apiKey)
	}
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("sms gateway: %w", errors.Join(errs...))
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("sms gateway returned status %d: %s", status, truncate(body, 200))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
