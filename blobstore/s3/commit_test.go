package s3

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func commitItem(gen, file string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrIndex:      &types.AttributeValueMemberS{Value: "s3://bucket/idx"},
		attrGeneration: &types.AttributeValueMemberN{Value: gen},
		attrCommitFile: &types.AttributeValueMemberS{Value: file},
	}
}

func TestDDBCommitStore_OpenCurrent(t *testing.T) {
	ddb := new(mockDDB)
	store := NewDDBCommitStore(NewStore(new(mockClient), "bucket", "idx"), ddb, "commits", "s3://bucket/idx")
	ctx := context.Background()

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()
	_, err := store.Open(ctx, manifest.CurrentFileName)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{commitItem("3", "segments_3")},
	}, nil).Once()
	blob, err := store.Open(ctx, manifest.CurrentFileName)
	require.NoError(t, err)
	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "segments_3", string(data))
}

func TestDDBCommitStore_PutCurrent(t *testing.T) {
	ddb := new(mockDDB)
	store := NewDDBCommitStore(NewStore(new(mockClient), "bucket", "idx"), ddb, "commits", "s3://bucket/idx")
	ctx := context.Background()

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{commitItem("1", "segments_1")},
	}, nil)
	ddb.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		g, ok := in.Item[attrGeneration].(*types.AttributeValueMemberN)
		return ok && g.Value == "2" && aws.ToString(in.ConditionExpression) != ""
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()

	require.NoError(t, store.Put(ctx, manifest.CurrentFileName, []byte("segments_2")))

	// A stale generation is rejected before reaching the table.
	err := store.Put(ctx, manifest.CurrentFileName, []byte("segments_1"))
	assert.ErrorIs(t, err, ErrConcurrentModification)

	ddb.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()
	err = store.Put(ctx, manifest.CurrentFileName, []byte("segments_5"))
	assert.ErrorIs(t, err, ErrConcurrentModification)

	ddb.AssertNumberOfCalls(t, "PutItem", 2)
}
