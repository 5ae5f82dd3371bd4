package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes messages to a topic consumed by an out-of-process delivery worker.
type KafkaSender struct {
	writer messageWriter
	from   string
}

// NewKafkaSender constructs a sender writing to topic on brokers.
func NewKafkaSender(brokers []string, topic, from string, logger *slog.Logger) *KafkaSender {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(format string, args ...interface{}) {
			logger.Error("kafka writer", slog.String("detail", fmt.Sprintf(format, args...)))
		}),
	}
	return &KafkaSender{writer: w, from: from}
}

// Send publishes msg keyed by phone so a phone's messages stay ordered.
func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	value, err := json.Marshal(payload{To: msg.Phone, From: s.from, Text: msg.Body})
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.Phone), Value: value}); err != nil {
		return fmt.Errorf("publish sms: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
