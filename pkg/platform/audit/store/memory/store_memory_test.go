package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "timelock/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Append(ctx, audit.Event{Engine: "vaults", Action: string(audit.EventActionProposed)}))
	require.NoError(t, store.Append(ctx, audit.Event{Engine: "debt", Action: string(audit.EventActionProposed)}))
	require.NoError(t, store.Append(ctx, audit.Event{Engine: "vaults", Action: string(audit.EventActionConfirmed)}))

	t.Run("list by engine keeps append order", func(t *testing.T) {
		events, err := store.ListByEngine(ctx, "vaults")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, string(audit.EventActionProposed), events[0].Action)
		assert.Equal(t, string(audit.EventActionConfirmed), events[1].Action)
		assert.NotEmpty(t, events[0].ID)
	})

	t.Run("list recent returns the tail", func(t *testing.T) {
		events, err := store.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "debt", events[0].Engine)

		all, err := store.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("clear empties the store", func(t *testing.T) {
		store.Clear()
		events, err := store.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
