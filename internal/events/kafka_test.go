package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianbot/guardian/internal/ticket"
	"github.com/guardianbot/guardian/pkg/protocol"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, DefaultTopic, nil)

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ev := ticket.Event{
		Type:     ticket.EventTicketCreated,
		TicketID: "abc",
		Ticket:   protocol.Ticket{TicketID: "abc", Issue: "Printer not working", Status: protocol.TicketOpen},
		At:       at,
	}
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "abc", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "ticket.created", string(msg.Headers[0].Value))

	var decoded ticket.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "Printer not working", decoded.Ticket.Issue)
	assert.Equal(t, protocol.TicketOpen, decoded.Ticket.Status)
}

func TestPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("no brokers")}
	p := newPublisher(w, DefaultTopic, nil)

	err := p.Publish(context.Background(), ticket.Event{Type: ticket.EventTicketCreated, TicketID: "x"})
	assert.ErrorContains(t, err, "no brokers")
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newPublisher(w, DefaultTopic, nil).Close())
	assert.True(t, w.closed)
}

func TestNewKafkaPublisherDefaultTopic(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "", nil)
	assert.Equal(t, DefaultTopic, p.topic)
	kw, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, kw.Topic)
}
