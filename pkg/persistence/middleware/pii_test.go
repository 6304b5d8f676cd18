package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-sh/concierge/pkg/adapters/memory"
)

func TestPII_MasksMatchingKeys(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	store := NewPIIMiddleware([]string{"(?i)password", "ssn"})(inner)

	require.NoError(t, store.Create(ctx, "sess", "wf", "browse"))
	require.NoError(t, store.MergeGlobal(ctx, "sess", map[string]any{
		"username": "alice",
		"Password": "hunter2",
		"profile": map[string]any{
			"ssn":  "123-45-6789",
			"city": "Lisbon",
		},
	}))

	global, err := inner.GlobalState(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "alice", global["username"])
	assert.Equal(t, "***", global["Password"])

	profile, ok := global["profile"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "***", profile["ssn"])
	assert.Equal(t, "Lisbon", profile["city"])
}

func TestPII_DoesNotMutateCallerMap(t *testing.T) {
	ctx := context.Background()
	store := NewPIIMiddleware([]string{"password"})(memory.NewStore())

	require.NoError(t, store.Create(ctx, "sess", "wf", "browse"))

	fields := map[string]any{"password": "hunter2"}
	require.NoError(t, store.MergeStage(ctx, "sess", "browse", fields))
	assert.Equal(t, "hunter2", fields["password"], "engine state must keep the real value")
}

func TestPII_InvalidPatternPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPIIMiddleware([]string{"("})
	})
}

func TestPII_Chain(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	store := Chain(inner,
		NewPIIMiddleware([]string{"password"}),
		NewEncryptionMiddleware(EncryptionConfig{ActiveKey: testKey(4)}),
	)

	require.NoError(t, store.Create(ctx, "sess", "wf", "browse"))
	require.NoError(t, store.MergeGlobal(ctx, "sess", map[string]any{
		"password": "hunter2",
		"symbol":   "AAPL",
	}))

	// Reading back through the chain decrypts; the masked value stays masked.
	global, err := store.GlobalState(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "***", global["password"])
	assert.Equal(t, "AAPL", global["symbol"])
}
