package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawsy/sessiond/securestore"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewFromFile(filepath.Join(t.TempDir(), "records.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBackend(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	t.Run("GetMissing", func(t *testing.T) {
		_, err := b.Get(ctx, "missing")
		assert.ErrorIs(t, err, securestore.ErrNotFound)
	})

	t.Run("PutGetDelete", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "session", []byte("payload")))
		got, err := b.Get(ctx, "session")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)

		require.NoError(t, b.Delete(ctx, "session"))
		_, err = b.Get(ctx, "session")
		assert.ErrorIs(t, err, securestore.ErrNotFound)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		assert.ErrorIs(t, b.Delete(ctx, "missing"), securestore.ErrNotFound)
	})

	t.Run("Keys", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "cart", []byte("a")))
		require.NoError(t, b.Put(ctx, "checkout", []byte("b")))
		keys, err := b.Keys(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"cart", "checkout"}, keys)
	})
}

func TestStoreOverBolt(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	store, err := securestore.New(b, "bolt-test-secret")
	require.NoError(t, err)

	type record struct {
		User string `json:"user"`
	}
	require.NoError(t, store.Write(ctx, securestore.KeySession, record{User: "emilys"}))

	var got record
	found, err := store.Read(ctx, securestore.KeySession, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "emilys", got.User)
}
