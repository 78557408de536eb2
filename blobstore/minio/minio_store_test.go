package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crux-lang/cruxmod/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-cruxmod"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	store := NewStore(client, bucket, "test-prefix/")

	// Put and Open
	data := []byte("hello module artifact")
	err = store.Put(ctx, "mod.cxm", data)
	require.NoError(t, err)

	blob, err := store.Open(ctx, "mod.cxm")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data))
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)

	// Ranged read
	part := make([]byte, 6)
	n, err = blob.ReadAt(ctx, part, 6)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	assert.Equal(t, "module", string(part))
	require.NoError(t, blob.Close())

	// List
	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, keys, "mod.cxm")

	// Delete
	err = store.Delete(ctx, "mod.cxm")
	require.NoError(t, err)

	_, err = store.Open(ctx, "mod.cxm")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	// Deleting again is fine
	require.NoError(t, store.Delete(ctx, "mod.cxm"))
}
