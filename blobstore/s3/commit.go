package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/internal/manifest"
)

// ErrConcurrentModification is returned when another writer published the
// same or a newer commit generation first.
var ErrConcurrentModification = errors.New("s3: concurrent commit")

// DDBClient is the subset of the DynamoDB API used for commit coordination.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

const (
	attrIndex      = "index_uri"
	attrGeneration = "generation"
	attrCommitFile = "commit_file"
)

// DDBCommitStore keeps index files in S3 and the CURRENT commit pointer in
// DynamoDB. Each published commit is one item keyed by (index_uri,
// generation); a conditional put makes publishing a generation exactly-once.
//
// Table schema: partition key index_uri (S), sort key generation (N).
type DDBCommitStore struct {
	*Store
	ddb      DDBClient
	table    string
	indexURI string
}

// NewDDBCommitStore wraps an S3 store. indexURI identifies the index in the
// table, typically "s3://bucket/prefix".
func NewDDBCommitStore(s *Store, ddb DDBClient, table, indexURI string) *DDBCommitStore {
	return &DDBCommitStore{Store: s, ddb: ddb, table: table, indexURI: indexURI}
}

// Open serves CURRENT from the newest table item.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != manifest.CurrentFileName {
		return s.Store.Open(ctx, name)
	}
	_, file, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if file == "" {
		return nil, blobstore.ErrNotFound
	}
	return blobstore.NewBytesBlob([]byte(file)), nil
}

// Put publishes CURRENT through a conditional write; other names go to S3.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name != manifest.CurrentFileName {
		return s.Store.Put(ctx, name, data)
	}
	file := string(data)
	gen, err := manifest.GenerationFromFileName(file)
	if err != nil {
		return err
	}
	latest, _, err := s.latest(ctx)
	if err != nil {
		return err
	}
	if gen <= latest {
		return fmt.Errorf("%w: generation %d, table at %d", ErrConcurrentModification, gen, latest)
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			attrIndex:      &types.AttributeValueMemberS{Value: s.indexURI},
			attrGeneration: &types.AttributeValueMemberN{Value: strconv.FormatInt(gen, 10)},
			attrCommitFile: &types.AttributeValueMemberS{Value: file},
		},
		ConditionExpression: aws.String("attribute_not_exists(#g)"),
		ExpressionAttributeNames: map[string]string{
			"#g": attrGeneration,
		},
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return fmt.Errorf("%w: generation %d", ErrConcurrentModification, gen)
		}
		return fmt.Errorf("s3: publish commit %s: %w", file, err)
	}
	return nil
}

// Delete leaves CURRENT alone; table items are the commit history.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if name == manifest.CurrentFileName {
		return nil
	}
	return s.Store.Delete(ctx, name)
}

func (s *DDBCommitStore) latest(ctx context.Context) (int64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#i = :uri"),
		ExpressionAttributeNames: map[string]string{
			"#i": attrIndex,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.indexURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query commits: %w", err)
	}
	if len(resp.Items) == 0 {
		return -1, "", nil
	}
	item := resp.Items[0]
	genAttr, ok := item[attrGeneration].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", fmt.Errorf("s3: commit item without %s", attrGeneration)
	}
	fileAttr, ok := item[attrCommitFile].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", fmt.Errorf("s3: commit item without %s", attrCommitFile)
	}
	gen, err := strconv.ParseInt(genAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: commit generation %q: %w", genAttr.Value, err)
	}
	return gen, fileAttr.Value, nil
}
