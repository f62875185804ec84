package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "timelock/pkg/platform/audit"
	"timelock/pkg/platform/circuit"
)

type fakeOutbox struct {
	entries   []audit.OutboxEntry
	published map[uuid.UUID]bool
}

func newFakeOutbox(n int) *fakeOutbox {
	o := &fakeOutbox{published: map[uuid.UUID]bool{}}
	for i := 0; i < n; i++ {
		o.entries = append(o.entries, audit.OutboxEntry{
			ID:          uuid.New(),
			AggregateID: "vaults",
			EventType:   string(audit.EventActionProposed),
			Payload:     []byte(`{}`),
		})
	}
	return o
}

func (o *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	var out []audit.OutboxEntry
	for _, e := range o.entries {
		if !o.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		o.published[id] = true
	}
	return nil
}

type fakeSink struct {
	sent   int
	failAt int
}

func (s *fakeSink) PublishRaw(context.Context, string, string, []byte) error {
	if s.failAt > 0 && s.sent+1 == s.failAt {
		return errors.New("broker unavailable")
	}
	s.sent++
	return nil
}

func TestRelayOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes a batch and marks it", func(t *testing.T) {
		outbox := newFakeOutbox(5)
		sink := &fakeSink{}
		w := NewWorker(outbox, sink, WithBatchSize(3))

		n, err := w.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = w.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = w.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 5, sink.sent)
	})

	t.Run("sink failure keeps the rest for retry", func(t *testing.T) {
		outbox := newFakeOutbox(4)
		sink := &fakeSink{failAt: 3}
		w := NewWorker(outbox, sink)

		n, err := w.RelayOnce(ctx)
		require.Error(t, err)
		assert.Equal(t, 2, n)

		sink.failAt = 0
		n, err = w.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

type flakySink struct {
	down     bool
	attempts int
}

func (s *flakySink) PublishRaw(context.Context, string, string, []byte) error {
	s.attempts++
	if s.down {
		return errors.New("broker unavailable")
	}
	return nil
}

func TestRelayBreaker(t *testing.T) {
	ctx := context.Background()
	outbox := newFakeOutbox(10)
	sink := &flakySink{down: true}
	breaker := circuit.New("audit-relay", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(2))
	w := NewWorker(outbox, sink, WithBatchSize(5), WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := w.RelayOnce(ctx)
		require.Error(t, err)
	}
	require.True(t, breaker.IsOpen())

	sink.down = false
	n, err := w.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "open circuit sends a single trial entry")
	assert.True(t, breaker.IsOpen())

	n, err = w.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, breaker.IsOpen())

	n, err = w.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 7, len(outbox.published))
}
