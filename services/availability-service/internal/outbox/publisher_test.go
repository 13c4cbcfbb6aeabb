package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptslots/libs/kafkax"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func newStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertEvent(t *testing.T, s storage.Store, eventType string) storage.OutboxEvent {
	t.Helper()
	b := model.Booking{ID: "b-1", OwnerID: "o-1", Date: "2025-02-10", StartTime: "09:00", EndTime: "10:00",
		ClientName: "Ann", ClientEmail: "ann@example.com", Status: model.StatusPending}
	evt, err := BookingEvent(eventType, b, "", "2025-02-01T10:00:00Z")
	require.NoError(t, err)
	require.NoError(t, s.InTx(context.Background(), func(tx storage.Tx) error {
		return tx.InsertOutbox(context.Background(), evt, time.Now().UTC())
	}))
	return evt
}

func TestBookingEventOmitsClientData(t *testing.T) {
	b := model.Booking{ID: "b-1", OwnerID: "o-1", Date: "2025-02-10", StartTime: "09:00", EndTime: "10:00",
		ClientName: "Ann", ClientEmail: "ann@example.com", Status: model.StatusCancelled}
	evt, err := BookingEvent(EventBookingStatusChanged, b, model.StatusConfirmed, "2025-02-01T10:00:00Z")
	require.NoError(t, err)

	assert.Equal(t, "b-1", evt.AggregateID)
	assert.NotContains(t, string(evt.Payload), "ann@example.com")

	var p BookingPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, "cancelled", p.Status)
	assert.Equal(t, "confirmed", p.PreviousStatus)
}

func TestPublishBatch(t *testing.T) {
	s := newStore(t)
	w := &fakeWriter{}
	p := NewPublisher(s, w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{BatchSize: 10})

	evt := insertEvent(t, s, EventBookingCreated)
	insertEvent(t, s, EventBookingDeleted)

	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, w.msgs, 2)

	msg := w.msgs[0]
	assert.Equal(t, EventBookingCreated, msg.Topic)
	assert.Equal(t, "b-1", string(msg.Key))
	assert.Equal(t, evt.EventID, kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID))
	assert.Equal(t, EventBookingCreated, kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType))

	n, err = p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "published rows are not sent again")
}

func TestPublishBatchKeepsRowsOnWriteFailure(t *testing.T) {
	s := newStore(t)
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(s, w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})

	insertEvent(t, s, EventBookingCreated)
	_, err := p.PublishBatch(context.Background())
	require.Error(t, err)

	w.err = nil
	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
