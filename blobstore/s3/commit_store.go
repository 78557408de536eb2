package s3

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/crux-lang/cruxmod/blobstore"
)

// ErrConcurrentPublish is returned when two writers race to publish the same
// module. The losing writer's artifact is left unreferenced; retry by
// publishing again.
var ErrConcurrentPublish = errors.New("s3: concurrent publish detected")

// DDBClient is the subset of the DynamoDB API the commit store uses.
// *dynamodb.Client satisfies it.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// CommitStore implements blobstore.Store with atomic publishing on top of an
// object store. Artifacts are immutable: every Put lands the bytes under a
// fresh revision key and a DynamoDB conditional write appends the revision to
// the module's commit log. Open resolves the latest revision, so readers
// always see a complete artifact, never a half-written one.
//
// Table schema:
//   - Partition key: module_key (string) - the artifact key Put was given
//   - Sort key: revision (number) - monotonically increasing revision
//
// Rollback marks a log entry retracted rather than deleting it, so revision
// numbers stay monotonic across retractions.
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name crux-modules \
//	  --attribute-definitions AttributeName=module_key,AttributeType=S AttributeName=revision,AttributeType=N \
//	  --key-schema AttributeName=module_key,KeyType=HASH AttributeName=revision,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	objects blobstore.Store
	ddb     DDBClient
	table   string
}

var _ blobstore.Store = (*CommitStore)(nil)

// NewCommitStore creates a commit store over an object store and a DynamoDB
// table. objects is typically an s3.Store, but any blobstore.Store works.
func NewCommitStore(objects blobstore.Store, ddb DDBClient, table string) *CommitStore {
	return &CommitStore{
		objects: objects,
		ddb:     ddb,
		table:   table,
	}
}

// revisionPrefix is the object key prefix of one published revision.
func revisionPrefix(key string, revision uint64) string {
	return fmt.Sprintf("%s.r%06d", key, revision)
}

// newRevisionKey makes the object key for a revision being published. The
// random suffix keeps two writers racing for the same revision from landing
// bytes under the same object key; only one of them wins the commit log.
func newRevisionKey(key string, revision uint64) string {
	var nonce [6]byte
	_, _ = rand.Read(nonce[:])
	return fmt.Sprintf("%s.%s", revisionPrefix(key, revision), hex.EncodeToString(nonce[:]))
}

// Open opens the latest live revision of the artifact.
func (s *CommitStore) Open(ctx context.Context, key string) (blobstore.Blob, error) {
	_, live, err := s.newest(ctx, key)
	if err != nil {
		return nil, err
	}
	if live.revision == 0 {
		return nil, blobstore.ErrNotFound
	}
	return s.objects.Open(ctx, live.objKey)
}

// Current returns the latest live revision and its object key.
func (s *CommitStore) Current(ctx context.Context, key string) (uint64, string, error) {
	_, live, err := s.newest(ctx, key)
	if err != nil {
		return 0, "", err
	}
	if live.revision == 0 {
		return 0, "", blobstore.ErrNotFound
	}
	return live.revision, live.objKey, nil
}

// Put publishes a new revision of the artifact: the bytes land under an
// immutable revision key, then a conditional write appends the revision to
// the commit log. A racing publish of the same revision loses with
// ErrConcurrentPublish and its object is removed.
func (s *CommitStore) Put(ctx context.Context, key string, data []byte) error {
	// Revision numbers advance past retracted entries too, so a rolled-back
	// number is never reissued for different bytes.
	maxRev, _, err := s.newest(ctx, key)
	if err != nil {
		return err
	}
	next := maxRev + 1
	objKey := newRevisionKey(key, next)

	if err := s.objects.Put(ctx, objKey, data); err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"module_key":   &types.AttributeValueMemberS{Value: key},
			"revision":     &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"artifact_key": &types.AttributeValueMemberS{Value: objKey},
		},
		ConditionExpression: aws.String("attribute_not_exists(revision)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			_ = s.objects.Delete(ctx, objKey)
			return ErrConcurrentPublish
		}
		return fmt.Errorf("s3: commit revision %d of %q: %w", next, key, err)
	}
	return nil
}

// Rollback retracts the latest live revision, making the previous one
// current again. The retracted revision keeps its commit-log entry as a
// tombstone and its artifact object, so a later publish gets a fresh
// revision number.
func (s *CommitStore) Rollback(ctx context.Context, key string) error {
	_, live, err := s.newest(ctx, key)
	if err != nil {
		return err
	}
	if live.revision == 0 {
		return blobstore.ErrNotFound
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"module_key":   &types.AttributeValueMemberS{Value: key},
			"revision":     &types.AttributeValueMemberN{Value: strconv.FormatUint(live.revision, 10)},
			"artifact_key": &types.AttributeValueMemberS{Value: live.objKey},
			"retracted":    &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	return err
}

// Delete retracts every published revision of the artifact and removes the
// underlying objects.
func (s *CommitStore) Delete(ctx context.Context, key string) error {
	revisions, err := s.revisions(ctx, key)
	if err != nil {
		return err
	}
	for _, rev := range revisions {
		_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"module_key": &types.AttributeValueMemberS{Value: key},
				"revision":   &types.AttributeValueMemberN{Value: strconv.FormatUint(rev.revision, 10)},
			},
		})
		if err != nil {
			return err
		}
		if err := s.objects.Delete(ctx, rev.objKey); err != nil {
			return err
		}
	}
	return nil
}

// List lists the object store, which holds one key per published revision.
func (s *CommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.objects.List(ctx, prefix)
}

type revisionItem struct {
	revision  uint64
	objKey    string
	retracted bool
}

// newest walks the commit log newest-first and reports the highest revision
// number ever claimed along with the latest revision that is still live.
// Either is zero when the log has none.
func (s *CommitStore) newest(ctx context.Context, key string) (uint64, revisionItem, error) {
	var maxRev uint64
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("module_key = :key"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":key": &types.AttributeValueMemberS{Value: key},
			},
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, revisionItem{}, fmt.Errorf("s3: query commit log: %w", err)
		}
		for _, raw := range resp.Items {
			item, err := parseRevisionItem(raw)
			if err != nil {
				return 0, revisionItem{}, err
			}
			if maxRev == 0 {
				maxRev = item.revision
			}
			if !item.retracted {
				return maxRev, item, nil
			}
		}
		if resp.LastEvaluatedKey == nil {
			return maxRev, revisionItem{}, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

// revisions returns every published revision of a module, oldest first.
func (s *CommitStore) revisions(ctx context.Context, key string) ([]revisionItem, error) {
	var items []revisionItem
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("module_key = :key"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":key": &types.AttributeValueMemberS{Value: key},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: query commit log: %w", err)
		}
		for _, raw := range resp.Items {
			item, err := parseRevisionItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if resp.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

func parseRevisionItem(item map[string]types.AttributeValue) (revisionItem, error) {
	revAttr, ok := item["revision"].(*types.AttributeValueMemberN)
	if !ok {
		return revisionItem{}, errors.New("s3: commit log item has no revision attribute")
	}
	keyAttr, ok := item["artifact_key"].(*types.AttributeValueMemberS)
	if !ok {
		return revisionItem{}, errors.New("s3: commit log item has no artifact_key attribute")
	}
	revision, err := strconv.ParseUint(revAttr.Value, 10, 64)
	if err != nil {
		return revisionItem{}, fmt.Errorf("s3: parse revision: %w", err)
	}
	parsed := revisionItem{revision: revision, objKey: keyAttr.Value}
	if b, ok := item["retracted"].(*types.AttributeValueMemberBOOL); ok {
		parsed.retracted = b.Value
	}
	return parsed, nil
}
