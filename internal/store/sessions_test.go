package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyphr-server/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func newSessionStore(t *testing.T, maxMessages int) (*SessionStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client, time.Hour, maxMessages, logger.NewTestLogger(t)), mr
}

// ==========================
// Session Lifecycle
// ==========================

func TestSessionStore_GetOrCreate(t *testing.T) {
	store, _ := newSessionStore(t, 10)
	ctx := context.Background()

	session, created, err := store.GetOrCreate(ctx, "", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, session.ID)
	assert.Empty(t, session.Messages)

	again, created, err := store.GetOrCreate(ctx, session.ID, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, session.ID, again.ID)
}

func TestSessionStore_GetOrCreateUnknownIDCreates(t *testing.T) {
	store, _ := newSessionStore(t, 10)

	session, created, err := store.GetOrCreate(context.Background(), "client-chosen-id", map[string]interface{}{"source": "extension"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "client-chosen-id", session.ID)
	assert.Equal(t, "extension", session.Metadata["source"])
}

func TestSessionStore_GetNotFound(t *testing.T) {
	store, _ := newSessionStore(t, 10)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_GetRefreshesTTL(t *testing.T) {
	store, mr := newSessionStore(t, 10)
	ctx := context.Background()

	session, _, err := store.GetOrCreate(ctx, "", nil)
	require.NoError(t, err)

	mr.FastForward(30 * time.Minute)
	_, err = store.Get(ctx, session.ID)
	require.NoError(t, err)

	// After the refresh the full TTL applies again.
	mr.FastForward(45 * time.Minute)
	_, err = store.Get(ctx, session.ID)
	assert.NoError(t, err)
}

func TestSessionStore_ExpiresWhenIdle(t *testing.T) {
	store, mr := newSessionStore(t, 10)
	ctx := context.Background()

	session, _, err := store.GetOrCreate(ctx, "", nil)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	store, _ := newSessionStore(t, 10)
	ctx := context.Background()

	session, _, err := store.GetOrCreate(ctx, "", nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, session.ID))
	assert.ErrorIs(t, store.Delete(ctx, session.ID), ErrNotFound)
}

// ==========================
// Message History
// ==========================

func TestSessionStore_AppendMessage(t *testing.T) {
	store, _ := newSessionStore(t, 10)
	ctx := context.Background()

	session, _, err := store.GetOrCreate(ctx, "", nil)
	require.NoError(t, err)

	require.NoError(t, store.AppendMessage(ctx, session.ID, "user", "hello"))
	require.NoError(t, store.AppendMessage(ctx, session.ID, "assistant", "hi there"))

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "user", loaded.Messages[0].Role)
	assert.Equal(t, "hi there", loaded.Messages[1].Content)
}

func TestSessionStore_AppendMessageUnknownSession(t *testing.T) {
	store, _ := newSessionStore(t, 10)
	assert.ErrorIs(t, store.AppendMessage(context.Background(), "nope", "user", "hi"), ErrNotFound)
}

func TestSessionStore_HistoryTrimmedToWindow(t *testing.T) {
	store, _ := newSessionStore(t, 2)
	ctx := context.Background()

	session, _, err := store.GetOrCreate(ctx, "", nil)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, store.AppendMessage(ctx, session.ID, role, string(rune('a'+i))))
	}

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	// Cap is maxMessages*2 so user/assistant pairs trim together.
	require.Len(t, loaded.Messages, 4)
	assert.Equal(t, "c", loaded.Messages[0].Content)
}

func TestSessionStore_PromptContext(t *testing.T) {
	store, _ := newSessionStore(t, 10)
	ctx := context.Background()

	session, _, err := store.GetOrCreate(ctx, "", nil)
	require.NoError(t, err)

	require.NoError(t, store.AppendMessage(ctx, session.ID, "user", "what changed?"))
	require.NoError(t, store.AppendMessage(ctx, session.ID, "assistant", "sales rose 4%"))

	history, err := store.PromptContext(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "User: what changed?\n\nAssistant: sales rose 4%", history)
}

func TestSessionStore_PromptContextLimitsMessages(t *testing.T) {
	store, _ := newSessionStore(t, 2)
	ctx := context.Background()

	session, _, err := store.GetOrCreate(ctx, "", nil)
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, store.AppendMessage(ctx, session.ID, "user", content))
	}

	history, err := store.PromptContext(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "User: two\n\nUser: three", history)
}

func TestSessionStore_PromptContextEmptyForUnknownSession(t *testing.T) {
	store, _ := newSessionStore(t, 10)

	history, err := store.PromptContext(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, history)
}
