// Package sms delivers one-time codes to phones through a pluggable driver.
package sms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mahalle/mahalle-api/internal/config"
)

// Driver names accepted by New.
const (
	DriverLog   = "log"
	DriverHTTP  = "http"
	DriverKafka = "kafka"
)

// Message is a single outbound text.
type Message struct {
	Phone string
	Body  string
}

// Sender delivers messages to a phone.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// payload is the wire shape shared by the HTTP gateway and the Kafka topic.
type payload struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

// New builds the sender selected by cfg.Driver. reveal controls whether the
// log driver prints message bodies.
func New(cfg config.SMS, reveal bool, logger *slog.Logger) (Sender, error) {
	switch cfg.Driver {
	case DriverLog, "":
		return NewLogSender(logger, reveal), nil
	case DriverHTTP:
		return NewHTTPSender(cfg.GatewayURL, cfg.APIKey, cfg.Sender, cfg.Timeout), nil
	case DriverKafka:
		return NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.Sender, logger), nil
	default:
		return nil, fmt.Errorf("unknown sms driver %q", cfg.Driver)
	}
}
