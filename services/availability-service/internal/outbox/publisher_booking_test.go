package outbox_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/booking"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallingWriter blocks inside WriteMessages until released.
type stallingWriter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *stallingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.once.Do(func() { close(w.entered) })
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type noInvalidation struct{}

func (noInvalidation) Invalidate(context.Context, string, string) {}

func TestSlowBrokerDoesNotBlockBookings(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	bookings := booking.NewService(store, noInvalidation{}, logger, booking.Config{
		StoreTimeout: 2 * time.Second,
		Now:          func() time.Time { return now },
	})
	in := booking.CreateInput{
		OwnerID:     "owner-1",
		Date:        "2026-10-19",
		StartTime:   "09:00",
		EndTime:     "10:00",
		ClientName:  "Ada Lovelace",
		ClientEmail: "ada@example.com",
	}
	_, err = bookings.Create(ctx, in)
	require.NoError(t, err)

	w := &stallingWriter{entered: make(chan struct{}), release: make(chan struct{})}
	pub := outbox.NewPublisher(store, w, logger, outbox.PublisherConfig{BatchSize: 10, WriteTimeout: 30 * time.Second})

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := pub.PublishBatch(ctx)
		done <- result{n, err}
	}()

	select {
	case <-w.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher never reached the writer")
	}

	in.StartTime, in.EndTime = "10:00", "11:00"
	_, err = bookings.Create(ctx, in)
	require.NoError(t, err, "booking must not wait on the broker")

	close(w.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.n)

	n, err := pub.PublishBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "second booking's event goes out on the next batch")
	assert.Len(t, w.msgs, 2)
}

func TestWriteTimeoutLeavesBatchForRetry(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	bookings := booking.NewService(store, noInvalidation{}, logger, booking.Config{Now: func() time.Time { return now }})
	_, err = bookings.Create(ctx, booking.CreateInput{
		OwnerID: "owner-1", Date: "2026-10-19", StartTime: "09:00", EndTime: "10:00",
		ClientName: "Ada Lovelace", ClientEmail: "ada@example.com",
	})
	require.NoError(t, err)

	w := &stallingWriter{entered: make(chan struct{}), release: make(chan struct{})}
	pub := outbox.NewPublisher(store, w, logger, outbox.PublisherConfig{WriteTimeout: 50 * time.Millisecond})
	_, err = pub.PublishBatch(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var pending int
	require.NoError(t, store.InTx(ctx, func(tx storage.Tx) error {
		recs, err := tx.FetchUnpublished(ctx, 10)
		pending = len(recs)
		return err
	}))
	assert.Equal(t, 1, pending)
}
