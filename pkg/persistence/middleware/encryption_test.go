package middleware

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-sh/concierge/pkg/adapters/memory"
	"github.com/concierge-sh/concierge/pkg/ports"
)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

func newEncryptedStore(t *testing.T, config EncryptionConfig) (ports.StateStore, *memory.Store) {
	t.Helper()
	inner := memory.NewStore()
	return NewEncryptionMiddleware(config)(inner), inner
}

func TestEncryption_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, inner := newEncryptedStore(t, EncryptionConfig{ActiveKey: testKey(1)})

	require.NoError(t, store.Create(ctx, "sess", "wf", "browse"))
	require.NoError(t, store.MergeGlobal(ctx, "sess", map[string]any{
		"symbol":   "AAPL",
		"quantity": float64(10),
	}))
	require.NoError(t, store.MergeStage(ctx, "sess", "browse", map[string]any{"last_search": "AAPL"}))

	global, err := store.GlobalState(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", global["symbol"])
	assert.EqualValues(t, 10, global["quantity"])

	local, err := store.StageState(ctx, "sess", "browse")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", local["last_search"])

	// The backing store must only ever see opaque envelopes.
	raw, err := inner.GlobalState(ctx, "sess")
	require.NoError(t, err)
	for k, v := range raw {
		str, ok := v.(string)
		require.True(t, ok, "field %q should be stored as a string envelope", k)
		assert.True(t, strings.HasPrefix(str, "enc:v1:"), "field %q should be encrypted", k)
		assert.NotContains(t, str, "AAPL")
	}
}

func TestEncryption_HistoryDecrypted(t *testing.T) {
	ctx := context.Background()
	store, _ := newEncryptedStore(t, EncryptionConfig{ActiveKey: testKey(1)})

	require.NoError(t, store.Create(ctx, "sess", "wf", "browse"))
	require.NoError(t, store.MergeGlobal(ctx, "sess", map[string]any{"symbol": "GOOG"}))

	history, err := store.History(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "GOOG", history[1].Global["symbol"])
}

func TestEncryption_KeyRotation(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()

	oldKey := testKey(1)
	newKey := testKey(2)

	oldStore := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: oldKey})(inner)
	require.NoError(t, oldStore.Create(ctx, "sess", "wf", "browse"))
	require.NoError(t, oldStore.MergeGlobal(ctx, "sess", map[string]any{"symbol": "MSFT"}))

	rotated := NewEncryptionMiddleware(EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(inner)

	global, err := rotated.GlobalState(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", global["symbol"])
}

func TestEncryption_WrongKeyFails(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()

	writer := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: testKey(1)})(inner)
	require.NoError(t, writer.Create(ctx, "sess", "wf", "browse"))
	require.NoError(t, writer.MergeGlobal(ctx, "sess", map[string]any{"symbol": "AMZN"}))

	reader := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: testKey(9)})(inner)
	_, err := reader.GlobalState(ctx, "sess")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
}

func TestEncryption_PlaintextPassthrough(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()

	// Data written before encryption was enabled.
	require.NoError(t, inner.Create(ctx, "sess", "wf", "browse"))
	require.NoError(t, inner.MergeGlobal(ctx, "sess", map[string]any{"legacy": "value"}))

	store := NewEncryptionMiddleware(EncryptionConfig{ActiveKey: testKey(1)})(inner)
	global, err := store.GlobalState(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "value", global["legacy"])
}

func TestEncryption_RejectsShortKey(t *testing.T) {
	assert.Panics(t, func() {
		NewEncryptionMiddleware(EncryptionConfig{ActiveKey: []byte("short")})
	})
}

func TestEncryption_Contract(t *testing.T) {
	store, _ := newEncryptedStore(t, EncryptionConfig{ActiveKey: testKey(3)})
	ports.RunStateStoreContract(t, store)
}
