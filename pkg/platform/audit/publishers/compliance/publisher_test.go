package compliance

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "timelock/pkg/platform/audit"
	"timelock/pkg/platform/audit/store/memory"
)

type failingStore struct {
	audit.Store
}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("disk full")
}

func TestPublisher_Emit(t *testing.T) {
	ctx := context.Background()

	t.Run("fills id timestamp and category", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := New(store)

		require.NoError(t, pub.Emit(ctx, audit.Event{Engine: "vaults", Action: string(audit.EventAuthorityChangeConfirmed)}))

		events, err := store.ListByEngine(ctx, "vaults")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.NotEmpty(t, events[0].ID)
		assert.False(t, events[0].Timestamp.IsZero())
		assert.Equal(t, audit.CategorySecurity, events[0].Category)
	})

	t.Run("consumer events default to compliance", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := New(store)

		require.NoError(t, pub.Emit(ctx, audit.Event{Engine: "vaults", Action: "vault_fee_set"}))

		events, err := store.ListByEngine(ctx, "vaults")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	})

	t.Run("rejects events without engine or action", func(t *testing.T) {
		pub := New(memory.NewInMemoryStore())
		assert.Error(t, pub.Emit(ctx, audit.Event{Action: "x"}))
		assert.Error(t, pub.Emit(ctx, audit.Event{Engine: "x"}))
	})

	t.Run("store failure is returned and counted", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())
		pub := New(failingStore{}, WithMetrics(m))

		err := pub.Emit(ctx, audit.Event{Engine: "vaults", Action: string(audit.EventActionConfirmed)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
	})
}
