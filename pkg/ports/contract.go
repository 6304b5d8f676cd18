package ports

import (
	"context"
	"testing"
	"time"

	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract verifies that a StateStore implementation adheres to
// the interface contract. Every adapter's test suite runs this.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405.000")

	t.Run("Create and read back", func(t *testing.T) {
		err := store.Create(ctx, sessionID, "stock_exchange", "browse")
		require.NoError(t, err, "Create should not return error")

		workflow, stage, err := store.CurrentStage(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "stock_exchange", workflow)
		assert.Equal(t, "browse", stage)

		global, err := store.GlobalState(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, global)

		local, err := store.StageState(ctx, sessionID, "browse")
		require.NoError(t, err)
		assert.Empty(t, local)
	})

	t.Run("Create duplicate", func(t *testing.T) {
		err := store.Create(ctx, sessionID, "stock_exchange", "browse")
		assert.ErrorIs(t, err, domain.ErrSessionExists)
	})

	t.Run("Unknown session", func(t *testing.T) {
		_, err := store.GlobalState(ctx, "nonexistent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		err = store.MergeGlobal(ctx, "nonexistent-"+sessionID, map[string]any{"a": 1})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("MergeGlobal last write wins", func(t *testing.T) {
		require.NoError(t, store.MergeGlobal(ctx, sessionID, map[string]any{"symbol": "AAPL", "quantity": float64(5)}))
		require.NoError(t, store.MergeGlobal(ctx, sessionID, map[string]any{"quantity": float64(10)}))

		global, err := store.GlobalState(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", global["symbol"])
		assert.EqualValues(t, 10, global["quantity"])
	})

	t.Run("MergeStage and ReplaceStage", func(t *testing.T) {
		require.NoError(t, store.MergeStage(ctx, sessionID, "browse", map[string]any{"last_search": "AAPL"}))
		local, err := store.StageState(ctx, sessionID, "browse")
		require.NoError(t, err)
		assert.Equal(t, "AAPL", local["last_search"])

		require.NoError(t, store.ReplaceStage(ctx, sessionID, "browse", map[string]any{"symbol": "GOOG"}))
		local, err = store.StageState(ctx, sessionID, "browse")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"symbol": "GOOG"}, local)
	})

	t.Run("Unwritten stage reads empty", func(t *testing.T) {
		local, err := store.StageState(ctx, sessionID, "never-written")
		require.NoError(t, err)
		assert.Empty(t, local)
	})

	t.Run("SetCurrentStage", func(t *testing.T) {
		require.NoError(t, store.SetCurrentStage(ctx, sessionID, "transact"))
		_, stage, err := store.CurrentStage(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "transact", stage)
	})

	t.Run("History grows with versions", func(t *testing.T) {
		history, err := store.History(ctx, sessionID)
		require.NoError(t, err)
		require.NotEmpty(t, history, "every mutation should snapshot")

		for i := 1; i < len(history); i++ {
			assert.Greater(t, history[i].Version, history[i-1].Version,
				"versions must be strictly increasing")
		}
		last := history[len(history)-1]
		assert.Equal(t, "transact", last.CurrentStage)
		assert.Equal(t, "AAPL", last.Global["symbol"])
	})

	t.Run("List", func(t *testing.T) {
		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, sessionID)
	})

	t.Run("Delete", func(t *testing.T) {
		deleted, err := store.Delete(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = store.GlobalState(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		deleted, err = store.Delete(ctx, sessionID)
		require.NoError(t, err)
		assert.False(t, deleted, "second delete removes nothing")
	})
}
