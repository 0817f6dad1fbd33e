package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/termdex/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStore_Open(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "idx/")
	ctx := context.Background()

	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "idx/_0.frq"
	})).Return(nil, &types.NotFound{}).Once()

	_, err := store.Open(ctx, "_0.frq")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "idx/_0.tis"
	})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(10)}, nil).Once()

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Range) == "bytes=6-9"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("6789"))}, nil).Once()

	blob, err := store.Open(ctx, "_0.tis")
	require.NoError(t, err)
	assert.Equal(t, int64(10), blob.Size())

	buf := make([]byte, 8)
	n, err := blob.ReadAt(ctx, buf, 6)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 4, n)
	assert.Equal(t, "6789", string(buf[:n]))

	n, err = blob.ReadAt(ctx, buf, 10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)

	client.AssertExpectations(t)
}

func TestStore_PutDelete(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "")
	ctx := context.Background()

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "segments_1" &&
			aws.ToInt64(in.ContentLength) == 3 &&
			in.ChecksumAlgorithm == types.ChecksumAlgorithmCrc32c
	})).Return(&s3.PutObjectOutput{}, nil).Once()
	require.NoError(t, store.Put(ctx, "segments_1", []byte("abc")))

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "_3.del"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	require.NoError(t, store.Delete(ctx, "_3.del"))

	client.AssertExpectations(t)
}

func TestStore_List(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "idx")

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Prefix) == "idx/_" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		Contents:              []types.Object{{Key: aws.String("idx/_1.tis")}},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("page2"),
	}, nil).Once()
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "page2"
	})).Return(&s3.ListObjectsV2Output{
		Contents:    []types.Object{{Key: aws.String("idx/_0.tis")}},
		IsTruncated: aws.Bool(false),
	}, nil).Once()

	names, err := store.List(context.Background(), "_")
	require.NoError(t, err)
	assert.Equal(t, []string{"_0.tis", "_1.tis"}, names)
}

func TestStore_CreateAbort(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "bucket", "")

	w, err := store.Create(context.Background(), "_4.prx")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	require.NoError(t, w.(blobstore.Abortable).Abort())
	_, err = w.Write([]byte("more"))
	assert.ErrorIs(t, err, blobstore.ErrClosed)
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)
}
