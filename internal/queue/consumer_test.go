package queue

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogAppendsOneLinePerEvent(t *testing.T) {
	audit := NewAuditLog(t.TempDir())
	ev := TicketEvent{
		Type:        TypeBookingConfirmed,
		EventID:     "ev-1",
		HolderID:    "alice",
		TicketIDs:   []string{"t1", "t2"},
		SeatIDs:     []string{"S001", "S002"},
		AmountCents: 3000,
		Currency:    "EUR",
	}
	ev.Stamp(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, audit.Append(body))
	checkin := TicketEvent{Type: TypeTicketCheckedIn, EventID: "ev-1", HolderID: "alice", TicketIDs: []string{"t1"}, SeatIDs: []string{"S001"}, StaffID: "gate-3"}
	body, err = json.Marshal(checkin)
	require.NoError(t, err)
	require.NoError(t, audit.Append(body))

	raw, err := os.ReadFile(audit.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[2026-03-01T10:00:00Z] booking.confirmed | event_id=ev-1 | holder_id=alice | tickets=[t1,t2] | seats=[S001,S002] | total=3000 EUR", lines[0])
	assert.Contains(t, lines[1], "staff_id=gate-3")
}

func TestAuditLogRejectsMalformedMessages(t *testing.T) {
	audit := NewAuditLog(t.TempDir())
	assert.Error(t, audit.Append([]byte("{not json")))
	assert.Error(t, audit.Append([]byte(`{"type":"booking.confirmed"}`)))
	_, err := os.Stat(audit.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestForwarderStopsWhenLoopEnds(t *testing.T) {
	src := make(chan amqp.Delivery, 1)
	src <- amqp.Delivery{Body: []byte("{}")}
	dst := make(chan amqp.Delivery)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		forward(context.Background(), done, src, dst)
		close(finished)
	}()

	// nobody reads dst any more, as after a dropped connection
	close(done)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder still blocked after the loop ended")
	}
}

func TestForwarderDeliversUntilSourceCloses(t *testing.T) {
	src := make(chan amqp.Delivery, 2)
	src <- amqp.Delivery{RoutingKey: "a"}
	src <- amqp.Delivery{RoutingKey: "b"}
	close(src)
	dst := make(chan amqp.Delivery, 2)

	forward(context.Background(), make(chan struct{}), src, dst)
	require.Len(t, dst, 2)
	assert.Equal(t, "a", (<-dst).RoutingKey)
	assert.Equal(t, "b", (<-dst).RoutingKey)
}
