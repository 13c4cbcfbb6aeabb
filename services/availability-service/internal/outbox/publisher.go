package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptslots/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptslots/libs/otel"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/metrics"
	"github.com/md-rashed-zaman/apptslots/services/availability-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PublisherConfig struct {
	PollEvery    time.Duration
	BatchSize    int
	WriteTimeout time.Duration
}

// Publisher moves committed outbox rows to Kafka. Delivery is at least once: a
// crash or failed mark between write and mark re-sends the batch, and
// concurrent publishers may overlap. Consumers dedupe on event_id.
type Publisher struct {
	store        storage.Store
	writer       MessageWriter
	logger       *slog.Logger
	pollEvery    time.Duration
	batchSize    int
	writeTimeout time.Duration
	now          func() time.Time
}

func NewPublisher(store storage.Store, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Publisher{
		store:        store,
		writer:       writer,
		logger:       logger,
		pollEvery:    cfg.PollEvery,
		batchSize:    cfg.BatchSize,
		writeTimeout: cfg.WriteTimeout,
		now:          time.Now,
	}
}

// NewKafkaWriter returns a writer that hashes on the message key so every event
// of one booking lands on the same partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishBatch sends up to one batch and returns how many events went out.
// The Kafka write happens between two short transactions, never inside one:
// on SQLite a transaction holds the only connection and would stall every
// booking request for as long as the broker takes.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	var records []storage.OutboxRecord
	err := p.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		records, err = tx.FetchUnpublished(ctx, p.batchSize)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}
		msgs = append(msgs, kafka.Message{
			Topic:   r.EventType,
			Key:     []byte(r.AggregateID),
			Value:   r.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
		})
		ids = append(ids, r.ID)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	err = p.writer.WriteMessages(writeCtx, msgs...)
	cancel()
	if err != nil {
		metrics.AddOutboxPublished("error", len(msgs))
		return 0, err
	}

	// A failure here re-sends the batch on the next poll; consumers dedupe on event_id.
	if err := p.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.MarkPublished(ctx, ids, p.now())
	}); err != nil {
		return 0, err
	}
	metrics.AddOutboxPublished("ok", len(msgs))
	p.logger.Debug("outbox batch published", "count", len(msgs))
	return len(msgs), nil
}
