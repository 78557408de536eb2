package blobstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a Store and counts remote opens.
type countingStore struct {
	Store
	opens atomic.Int64
}

func (s *countingStore) Open(ctx context.Context, key string) (Blob, error) {
	s.opens.Add(1)
	return s.Store.Open(ctx, key)
}

func newCountingRemote(t *testing.T, blobs map[string][]byte) *countingStore {
	t.Helper()
	mem := NewMemoryStore()
	for key, data := range blobs {
		require.NoError(t, mem.Put(context.Background(), key, data))
	}
	return &countingStore{Store: mem}
}

func TestCachingStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	remote := newCountingRemote(t, map[string][]byte{
		"std.cxm": []byte("module bytes"),
	})
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := NewCachingStore(remote, local)

	// First open fetches and mirrors
	blob, err := store.Open(ctx, "std.cxm")
	require.NoError(t, err)
	require.Equal(t, int64(len("module bytes")), blob.Size())
	require.NoError(t, blob.Close())
	assert.Equal(t, int64(1), remote.opens.Load())

	// Second open is served locally
	blob, err = store.Open(ctx, "std.cxm")
	require.NoError(t, err)
	require.NoError(t, blob.Close())
	assert.Equal(t, int64(1), remote.opens.Load())

	// Local blobs come back mappable
	blob, err = store.Open(ctx, "std.cxm")
	require.NoError(t, err)
	defer blob.Close()
	m, ok := blob.(Mappable)
	require.True(t, ok)
	raw, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "module bytes", string(raw))
}

func TestCachingStore_MissPropagates(t *testing.T) {
	remote := newCountingRemote(t, nil)
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := NewCachingStore(remote, local)

	_, err = store.Open(context.Background(), "missing.cxm")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCachingStore_Warm(t *testing.T) {
	ctx := context.Background()
	remote := newCountingRemote(t, map[string][]byte{
		"a.cxm": []byte("a"),
		"b.cxm": []byte("b"),
		"c.cxm": []byte("c"),
	})
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := NewCachingStore(remote, local, WithWarmConcurrency(2))

	require.NoError(t, store.Warm(ctx, []string{"a.cxm", "b.cxm", "c.cxm"}))
	assert.Equal(t, int64(3), remote.opens.Load())

	// Everything is mirrored; opens hit the local copy
	for _, key := range []string{"a.cxm", "b.cxm", "c.cxm"} {
		blob, err := store.Open(ctx, key)
		require.NoError(t, err)
		require.NoError(t, blob.Close())
	}
	assert.Equal(t, int64(3), remote.opens.Load())

	// Warming again is a no-op
	require.NoError(t, store.Warm(ctx, []string{"a.cxm", "b.cxm"}))
	assert.Equal(t, int64(3), remote.opens.Load())
}

func TestCachingStore_ConcurrentOpensFetchOnce(t *testing.T) {
	ctx := context.Background()
	remote := newCountingRemote(t, map[string][]byte{
		"shared.cxm": []byte("shared"),
	})
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := NewCachingStore(remote, local)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blob, err := store.Open(ctx, "shared.cxm")
			if err == nil {
				err = blob.Close()
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), remote.opens.Load())
}

func TestCachingStore_PutInvalidatesMirror(t *testing.T) {
	ctx := context.Background()
	remote := newCountingRemote(t, map[string][]byte{
		"mod.cxm": []byte("old"),
	})
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := NewCachingStore(remote, local)

	blob, err := store.Open(ctx, "mod.cxm")
	require.NoError(t, err)
	require.NoError(t, blob.Close())

	require.NoError(t, store.Put(ctx, "mod.cxm", []byte("fresh")))

	blob, err = store.Open(ctx, "mod.cxm")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(len("fresh")), blob.Size())
	assert.Equal(t, int64(2), remote.opens.Load())
}

func TestCachingStore_DeleteRemovesBoth(t *testing.T) {
	ctx := context.Background()
	remote := newCountingRemote(t, map[string][]byte{
		"mod.cxm": []byte("data"),
	})
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := NewCachingStore(remote, local)

	blob, err := store.Open(ctx, "mod.cxm")
	require.NoError(t, err)
	require.NoError(t, blob.Close())

	require.NoError(t, store.Delete(ctx, "mod.cxm"))

	_, err = store.Open(ctx, "mod.cxm")
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := local.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
