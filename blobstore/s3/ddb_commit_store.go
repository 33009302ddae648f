package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/walset/blobstore"
)

// CurrentName is the blob name routed through DynamoDB.
const CurrentName = "CURRENT"

// Attribute names of a commit row.
const (
	attrStore   = "store_uri" // partition key (S)
	attrSeq     = "seq"       // sort key (N)
	attrCurrent = "current"   // value written to CURRENT (S)
)

// ErrCommitConflict is returned by Put(CURRENT) when another writer
// committed the same sequence number first.
var ErrCommitConflict = errors.New("s3: CURRENT commit conflict")

// DDBClient is the part of *dynamodb.Client used by DDBCommitStore.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DDBCommitStore keeps checkpoint blobs in S3 and CURRENT in DynamoDB.
//
// Each Put of CURRENT appends row (storeURI, seq+1) with the condition that
// the row does not exist yet, so of two writers that saw the same head only
// one commits. Older rows are kept as an audit trail; Open(CURRENT) reads the
// newest one.
//
//	aws dynamodb create-table \
//	  --table-name walset-commits \
//	  --attribute-definitions AttributeName=store_uri,AttributeType=S AttributeName=seq,AttributeType=N \
//	  --key-schema AttributeName=store_uri,KeyType=HASH AttributeName=seq,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	blobs    *Store
	ddb      DDBClient
	table    string
	storeURI string
}

// NewDDBCommitStore wraps blobs. storeURI (for example "s3://bucket/prefix")
// partitions the table, so several stores can share one table.
func NewDDBCommitStore(blobs *Store, ddb DDBClient, table, storeURI string) *DDBCommitStore {
	return &DDBCommitStore{blobs: blobs, ddb: ddb, table: table, storeURI: storeURI}
}

func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != CurrentName {
		return s.blobs.Open(ctx, name)
	}
	head, ok, err := s.head(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return currentBlob{bytes.NewReader([]byte(head.current))}, nil
}

func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name != CurrentName {
		return s.blobs.Put(ctx, name, data)
	}
	head, _, err := s.head(ctx)
	if err != nil {
		return err
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     commitRow{seq: head.seq + 1, current: string(data)}.item(s.storeURI),
		ConditionExpression:      aws.String("attribute_not_exists(#seq)"),
		ExpressionAttributeNames: map[string]string{"#seq": attrSeq},
	})
	var conflict *types.ConditionalCheckFailedException
	switch {
	case errors.As(err, &conflict):
		return fmt.Errorf("%w at seq %d", ErrCommitConflict, head.seq+1)
	case err != nil:
		return fmt.Errorf("s3: commit %s: %w", CurrentName, err)
	}
	return nil
}

// Delete of CURRENT is a no-op; commit rows are never removed.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if name == CurrentName {
		return nil
	}
	return s.blobs.Delete(ctx, name)
}

// List lists the S3 blobs. CURRENT lives in DynamoDB and is not listed.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.blobs.List(ctx, prefix)
}

type commitRow struct {
	seq     uint64
	current string
}

func (r commitRow) item(storeURI string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrStore:   &types.AttributeValueMemberS{Value: storeURI},
		attrSeq:     &types.AttributeValueMemberN{Value: strconv.FormatUint(r.seq, 10)},
		attrCurrent: &types.AttributeValueMemberS{Value: r.current},
	}
}

// head returns the newest commit row, or ok=false when nothing was committed.
func (s *DDBCommitStore) head(ctx context.Context) (commitRow, bool, error) {
	out, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#store = :store"),
		ExpressionAttributeNames: map[string]string{"#store": attrStore},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":store": &types.AttributeValueMemberS{Value: s.storeURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return commitRow{}, false, fmt.Errorf("s3: query %s: %w", s.table, err)
	}
	if len(out.Items) == 0 {
		return commitRow{}, false, nil
	}
	row, err := decodeRow(out.Items[0])
	if err != nil {
		return commitRow{}, false, fmt.Errorf("s3: table %s: %w", s.table, err)
	}
	return row, true, nil
}

func decodeRow(item map[string]types.AttributeValue) (commitRow, error) {
	seq, ok := item[attrSeq].(*types.AttributeValueMemberN)
	if !ok {
		return commitRow{}, fmt.Errorf("row without numeric %q", attrSeq)
	}
	current, ok := item[attrCurrent].(*types.AttributeValueMemberS)
	if !ok {
		return commitRow{}, fmt.Errorf("row without string %q", attrCurrent)
	}
	n, err := strconv.ParseUint(seq.Value, 10, 64)
	if err != nil {
		return commitRow{}, fmt.Errorf("row %q: %w", attrSeq, err)
	}
	return commitRow{seq: n, current: current.Value}, nil
}

type currentBlob struct{ r *bytes.Reader }

func (b currentBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	return b.r.ReadAt(p, off)
}

func (b currentBlob) Size() int64 { return b.r.Size() }
func (currentBlob) Close() error  { return nil }
