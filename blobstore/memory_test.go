package blobstore

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_OpenSnapshotsData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "mod.cxm", []byte("first")))

	blob, err := store.Open(ctx, "mod.cxm")
	require.NoError(t, err)
	defer blob.Close()

	// Overwriting must not disturb the open blob
	require.NoError(t, store.Put(ctx, "mod.cxm", []byte("second!")))

	raw, err := blob.(Mappable).Bytes()
	require.NoError(t, err)
	assert.Equal(t, "first", string(raw))
}

func TestMemoryStore_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "release/std.cxm", nil))
	require.NoError(t, store.Put(ctx, "release/core.cxm", nil))
	require.NoError(t, store.Put(ctx, "debug/std.cxm", nil))

	keys, err := store.List(ctx, "release/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"release/core.cxm", "release/std.cxm"}, keys)

	_, err = store.Open(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
