package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "timelock/pkg/platform/audit"
	"timelock/pkg/platform/circuit"
)

// OutboxSource yields persisted audit entries awaiting delivery.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Sink delivers encoded entries, e.g. the Kafka publisher.
type Sink interface {
	PublishRaw(ctx context.Context, key, eventType string, payload []byte) error
}

// Worker relays outbox entries to a sink. Entries are marked published only
// after the sink accepted them, so delivery is at-least-once.
type Worker struct {
	source   OutboxSource
	sink     Sink
	interval time.Duration
	batch    int
	logger   *slog.Logger
	breaker  *circuit.Breaker
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		w.interval = d
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		w.batch = n
	}
}

// WithBreaker trips after repeated sink failures. While open, each pass
// sends a single trial entry instead of a full batch.
func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) {
		w.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(source OutboxSource, sink Sink, opts ...Option) *Worker {
	w := &Worker{source: source, sink: sink, interval: time.Second, batch: 100}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RelayOnce(ctx); err != nil && w.logger != nil {
				w.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce delivers one batch and returns how many entries were published.
// It stops at the first sink failure; the remaining entries are retried on
// the next pass.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	limit := w.batch
	if w.breaker != nil && w.breaker.IsOpen() {
		limit = 1
	}
	entries, err := w.source.FetchUnpublished(ctx, limit)
	if err != nil {
		return 0, err
	}
	published := make([]uuid.UUID, 0, len(entries))
	var sendErr error
	for _, e := range entries {
		sendErr = w.sink.PublishRaw(ctx, e.AggregateID, e.EventType, e.Payload)
		w.record(ctx, sendErr)
		if sendErr != nil {
			break
		}
		published = append(published, e.ID)
	}
	if err := w.source.MarkPublished(ctx, published); err != nil {
		return 0, err
	}
	return len(published), sendErr
}

func (w *Worker) record(ctx context.Context, err error) {
	if w.breaker == nil {
		return
	}
	var change circuit.StateChange
	if err != nil {
		_, change = w.breaker.RecordFailure()
	} else {
		_, change = w.breaker.RecordSuccess()
	}
	if w.logger == nil {
		return
	}
	switch {
	case change.Opened:
		w.logger.WarnContext(ctx, "audit relay circuit opened", "breaker", w.breaker.Name(), "error", err)
	case change.Closed:
		w.logger.InfoContext(ctx, "audit relay circuit closed", "breaker", w.breaker.Name())
	}
}
