package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AuditLog appends ticket events to <dir>/tickets.log, one line per event.
type AuditLog struct {
	dir string
}

func NewAuditLog(dir string) *AuditLog {
	if dir == "" {
		dir = "logs"
	}
	return &AuditLog{dir: dir}
}

// Path is the file the log is written to.
func (a *AuditLog) Path() string { return filepath.Join(a.dir, "tickets.log") }

// Append decodes body as a TicketEvent and writes its line.
func (a *AuditLog) Append(body []byte) error {
	var ev TicketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.EventID == "" {
		return errors.New("event without type or event_id")
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", a.dir, err)
	}
	f, err := os.OpenFile(a.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single human-friendly line.
func FormatLine(ev TicketEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | event_id=%s | holder_id=%s | tickets=[%s] | seats=[%s]",
		ev.OccurredAt, ev.Type, ev.EventID, ev.HolderID,
		strings.Join(ev.TicketIDs, ","), strings.Join(ev.SeatIDs, ","))
	if ev.AmountCents > 0 {
		fmt.Fprintf(&b, " | total=%d %s", ev.AmountCents, ev.Currency)
	}
	if ev.StaffID != "" {
		fmt.Fprintf(&b, " | staff_id=%s", ev.StaffID)
	}
	b.WriteByte('\n')
	return b.String()
}

// StartAuditConsumer connects to RabbitMQ, declares one durable queue per
// event type and appends every delivery to the audit log. It reconnects
// with backoff until ctx is cancelled.
func StartAuditConsumer(ctx context.Context, url string, audit *AuditLog, log logrus.FieldLogger) error {
	log = log.WithField("component", "audit-consumer")
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, audit, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, audit *AuditLog, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("set QoS failed")
	}

	// done stops the forwarders when this loop returns, even if ctx is
	// still live and a reconnect follows.
	done := make(chan struct{})
	defer close(done)
	deliveries := make(chan amqp.Delivery)
	for _, name := range Types {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go forward(ctx, done, msgs, deliveries)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-closed:
			if e == nil {
				return errors.New("connection closed")
			}
			return e
		case d := <-deliveries:
			if err := audit.Append(d.Body); err != nil {
				log.WithError(err).WithField("routing_key", d.RoutingKey).Warn("handle message failed")
				_ = d.Nack(false, false) // do not requeue, avoids a tight redelivery loop
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// forward copies src into dst until src closes, done closes or ctx ends.
func forward(ctx context.Context, done <-chan struct{}, src <-chan amqp.Delivery, dst chan<- amqp.Delivery) {
	for d := range src {
		select {
		case dst <- d:
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
