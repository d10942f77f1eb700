package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher delivers attendance change events.
type Publisher interface {
	Publish(ctx context.Context, event AttendanceChanged) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, AttendanceChanged) error { return nil }

// =============================================================================
// KAFKA
// =============================================================================

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultPublishTimeout bounds one Kafka publish, retries included.
const DefaultPublishTimeout = 5 * time.Second

// KafkaPublisher writes one message per event, keyed by employee id so a
// given employee's changes stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 2 * time.Second,
		MaxAttempts:  3,
	}
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writer:  writer,
		logger:  logger.Named("notify.kafka"),
		timeout: DefaultPublishTimeout,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event AttendanceChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventName(), err)
	}
	msg := kafka.Message{
		Key:   []byte(event.EmployeeID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventName())},
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	p.logger.Debug("event published",
		zap.String("event_type", event.EventName()),
		zap.String("employee_id", string(event.EmployeeID)),
		zap.String("record_id", string(event.RecordID)),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Multi publishes to every publisher and joins their errors. One failing
// publisher does not stop the others.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event AttendanceChanged) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
