package s3

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crux-lang/cruxmod/blobstore"
)

// fakeDDB implements DDBClient in memory with real conditional-write
// semantics, so commit races can be exercised without AWS.
type fakeDDB struct {
	mu    sync.Mutex
	items map[string]map[uint64]fakeItem // module_key -> revision

	beforePutItem func() // runs once before the next PutItem, under no lock
}

type fakeItem struct {
	artifactKey string
	retracted   bool
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[uint64]fakeItem)}
}

func itemKey(item map[string]types.AttributeValue) (string, uint64, error) {
	module := item["module_key"].(*types.AttributeValueMemberS).Value
	revision, err := strconv.ParseUint(item["revision"].(*types.AttributeValueMemberN).Value, 10, 64)
	return module, revision, err
}

func (f *fakeDDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if hook := f.beforePutItem; hook != nil {
		f.beforePutItem = nil
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	module, revision, err := itemKey(params.Item)
	if err != nil {
		return nil, err
	}
	revs := f.items[module]
	if revs == nil {
		revs = make(map[uint64]fakeItem)
		f.items[module] = revs
	}
	if _, exists := revs[revision]; exists && params.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("revision exists")}
	}
	item := fakeItem{artifactKey: params.Item["artifact_key"].(*types.AttributeValueMemberS).Value}
	if b, ok := params.Item["retracted"].(*types.AttributeValueMemberBOOL); ok {
		item.retracted = b.Value
	}
	revs[revision] = item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	module := params.ExpressionAttributeValues[":key"].(*types.AttributeValueMemberS).Value
	revs := f.items[module]

	var ordered []uint64
	for rev := range revs {
		ordered = append(ordered, rev)
	}
	descending := params.ScanIndexForward != nil && !*params.ScanIndexForward
	sort.Slice(ordered, func(i, j int) bool {
		if descending {
			return ordered[i] > ordered[j]
		}
		return ordered[i] < ordered[j]
	})
	if params.Limit != nil && len(ordered) > int(*params.Limit) {
		ordered = ordered[:*params.Limit]
	}

	out := &dynamodb.QueryOutput{}
	for _, rev := range ordered {
		item := map[string]types.AttributeValue{
			"module_key":   &types.AttributeValueMemberS{Value: module},
			"revision":     &types.AttributeValueMemberN{Value: strconv.FormatUint(rev, 10)},
			"artifact_key": &types.AttributeValueMemberS{Value: revs[rev].artifactKey},
		}
		if revs[rev].retracted {
			item["retracted"] = &types.AttributeValueMemberBOOL{Value: true}
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (f *fakeDDB) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	module, revision, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	delete(f.items[module], revision)
	return &dynamodb.DeleteItemOutput{}, nil
}

func newTestCommitStore() (*CommitStore, *fakeDDB, *blobstore.MemoryStore) {
	objects := blobstore.NewMemoryStore()
	ddb := newFakeDDB()
	return NewCommitStore(objects, ddb, "crux-modules"), ddb, objects
}

func readBlob(t *testing.T, ctx context.Context, store blobstore.Store, key string) string {
	t.Helper()
	blob, err := store.Open(ctx, key)
	require.NoError(t, err)
	defer blob.Close()
	buf := make([]byte, blob.Size())
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	return string(buf)
}

func TestCommitStore_PublishAndOpen(t *testing.T) {
	ctx := context.Background()
	store, _, objects := newTestCommitStore()

	_, err := store.Open(ctx, "std.cxm")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "std.cxm", []byte("first build")))
	assert.Equal(t, "first build", readBlob(t, ctx, store, "std.cxm"))

	// A second publish becomes current without touching the first artifact
	require.NoError(t, store.Put(ctx, "std.cxm", []byte("second build")))
	assert.Equal(t, "second build", readBlob(t, ctx, store, "std.cxm"))

	revision, objKey, err := store.Current(ctx, "std.cxm")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), revision)
	assert.True(t, strings.HasPrefix(objKey, revisionPrefix("std.cxm", 2)))

	// Both revision objects exist
	keys, err := objects.List(ctx, "std.cxm.r")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Equal(t, "second build", readBlob(t, ctx, objects, objKey))
}

func TestCommitStore_ConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	store, ddb, objects := newTestCommitStore()

	require.NoError(t, store.Put(ctx, "std.cxm", []byte("base")))

	// A rival writer over the same bucket and table publishes between our
	// revision query and our conditional write
	ddb.beforePutItem = func() {
		rival := NewCommitStore(objects, ddb, "crux-modules")
		require.NoError(t, rival.Put(ctx, "std.cxm", []byte("rival build")))
	}

	err := store.Put(ctx, "std.cxm", []byte("our build"))
	require.ErrorIs(t, err, ErrConcurrentPublish)

	// The rival's artifact is current; ours was cleaned up
	assert.Equal(t, "rival build", readBlob(t, ctx, store, "std.cxm"))
}

func TestCommitStore_Rollback(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestCommitStore()

	require.ErrorIs(t, store.Rollback(ctx, "std.cxm"), blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "std.cxm", []byte("good")))
	require.NoError(t, store.Put(ctx, "std.cxm", []byte("bad")))

	require.NoError(t, store.Rollback(ctx, "std.cxm"))
	assert.Equal(t, "good", readBlob(t, ctx, store, "std.cxm"))
	revision, _, err := store.Current(ctx, "std.cxm")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), revision)

	// Publishing after a rollback claims a fresh revision; the retracted
	// number is never reissued for different bytes.
	require.NoError(t, store.Put(ctx, "std.cxm", []byte("fixed")))
	assert.Equal(t, "fixed", readBlob(t, ctx, store, "std.cxm"))
	revision, _, err = store.Current(ctx, "std.cxm")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), revision)
}

func TestCommitStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _, objects := newTestCommitStore()

	require.NoError(t, store.Put(ctx, "std.cxm", []byte("one")))
	require.NoError(t, store.Put(ctx, "std.cxm", []byte("two")))

	require.NoError(t, store.Delete(ctx, "std.cxm"))

	_, err := store.Open(ctx, "std.cxm")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	keys, err := objects.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
