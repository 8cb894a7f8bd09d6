package events

import (
	"context"
	"fmt"
	"time"

	"recolha/internal/config"

	"github.com/rs/zerolog"
	kafkaGo "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// KafkaForwarder republishes bus events to a Kafka topic, keyed by booking
// token so that all events of one booking land on the same partition.
type KafkaForwarder struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewKafkaWriter builds a synchronous writer for cfg.Topic.
func NewKafkaWriter(cfg config.KafkaConfig) *kafkaGo.Writer {
	return &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkaGo.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafkaGo.RequireOne,
	}
}

func NewKafkaForwarder(writer messageWriter, logger *zerolog.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, timeout: 5 * time.Second, logger: logger}
}

// Attach subscribes the forwarder to every booking event type on bus.
func (f *KafkaForwarder) Attach(bus *EventBus) {
	for _, eventType := range []string{EventBookingCreated, EventBookingStatusChanged} {
		bus.Subscribe(eventType, f.Handle)
	}
}

// Handle writes one event. Failures are logged and returned; they never
// undo the booking change that produced the event.
func (f *KafkaForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := kafkaGo.Message{
		Key:   []byte(event.Key),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafkaGo.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error().Err(err).Str("event", event.Type).Str("key", event.Key).Msg("Failed to forward event to Kafka")
		return fmt.Errorf("forward %s: %w", event.Type, err)
	}

	f.logger.Debug().Str("event", event.Type).Str("key", event.Key).Msg("Event forwarded to Kafka")
	return nil
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
