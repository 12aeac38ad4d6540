package outbox

import (
	"context"
	"log/slog"
	"time"

	"ekyc/internal/platform/kafka/producer"
)

const drainTimeout = 10 * time.Second

// Producer publishes one message and waits for the broker acknowledgement.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the outbox and publishes pending entries to Kafka. An entry
// that was published but not marked is published again on the next poll,
// so consumers must tolerate duplicates keyed by entry ID.
type Worker struct {
	store        Store
	producer     Producer
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Worker)

func WithTopic(topic string) Option { return func(w *Worker) { w.topic = topic } }

func WithBatchSize(size int) Option { return func(w *Worker) { w.batchSize = size } }

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

// WithRetention sets how long published entries are kept. Zero keeps them.
func WithRetention(d time.Duration) Option { return func(w *Worker) { w.retention = d } }

func WithMetrics(m *Metrics) Option { return func(w *Worker) { w.metrics = m } }

func WithLogger(logger *slog.Logger) Option { return func(w *Worker) { w.logger = logger } }

func WithClock(now func() time.Time) Option { return func(w *Worker) { w.now = now } }

func NewWorker(store Store, prod Producer, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		producer:     prod,
		topic:        "ekyc.audit.events",
		batchSize:    100,
		pollInterval: time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx ends, then drains what is left with a bounded timeout.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll publishes one batch and reports how many entries were delivered.
func (w *Worker) Poll(ctx context.Context) int {
	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to fetch outbox entries", "error", err)
		w.metrics.incFailure()
		return 0
	}
	if len(entries) > 0 {
		w.metrics.observeBatch(len(entries))
	}

	published := w.publishAll(ctx, entries)

	if count, err := w.store.CountPending(ctx); err == nil {
		w.metrics.setPending(count)
	}
	if w.retention > 0 {
		if _, err := w.store.DeleteProcessedBefore(ctx, w.now().Add(-w.retention)); err != nil {
			w.logger.WarnContext(ctx, "failed to prune published outbox entries", "error", err)
		}
	}
	return published
}

func (w *Worker) publishAll(ctx context.Context, entries []*Entry) int {
	published := 0
	for _, entry := range entries {
		if err := w.publish(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			w.metrics.incFailure()
			continue
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, w.now()); err != nil {
			w.logger.ErrorContext(ctx, "failed to mark outbox entry as processed",
				"id", entry.ID,
				"error", err,
			)
			continue
		}
		w.metrics.incPublished()
		published++
	}
	return published
}

func (w *Worker) publish(ctx context.Context, entry *Entry) error {
	start := time.Now()
	err := w.producer.Produce(ctx, &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.ID.String()),
		Value: entry.Payload,
		Headers: map[string]string{
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
		},
	})
	if err != nil {
		return err
	}
	w.metrics.observePublish(time.Since(start).Seconds())
	return nil
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	w.logger.Info("draining audit outbox")
	for ctx.Err() == nil {
		entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
		if err != nil {
			w.logger.Error("failed to fetch outbox entries during drain", "error", err)
			return
		}
		if len(entries) == 0 || w.publishAll(ctx, entries) == 0 {
			return
		}
	}
}
