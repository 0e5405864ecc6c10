package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-booking-core/internal/queue"
)

// Kafka writes all event types to one topic. Messages are keyed by event id
// so every change to one event's tickets lands on the same partition in
// order.
type Kafka struct {
	writer *kafka.Writer
	log    logrus.FieldLogger
}

func NewKafka(brokers []string, topic string, log logrus.FieldLogger) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		log: log.WithField("component", "kafka-publisher"),
	}
}

func (k *Kafka) Publish(ctx context.Context, ev queue.TicketEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(ev.EventID),
		Value:   data,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", ev.Type, err)
	}
	k.log.WithFields(logrus.Fields{"type": ev.Type, "event_id": ev.EventID}).Debug("event published")
	return nil
}

func (k *Kafka) Close() error { return k.writer.Close() }
