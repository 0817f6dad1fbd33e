package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/termdex/blobstore"
)

// DefaultPartSize is the multipart chunk size used for streamed segment files.
const DefaultPartSize = 8 << 20

var errUploadAborted = errors.New("s3: upload aborted")

// Store implements blobstore.BlobStore on an S3 bucket. All names are
// resolved below prefix.
type Store struct {
	client      Client
	bucket      string
	prefix      string
	partSize    int64
	concurrency int
	checksum    bool
}

// Option configures a Store.
type Option func(*Store)

// WithPartSize sets the multipart upload part size.
func WithPartSize(n int64) Option {
	return func(s *Store) {
		if n >= manager.MinUploadPartSize {
			s.partSize = n
		}
	}
}

// WithUploadConcurrency sets the number of parts uploaded in parallel.
func WithUploadConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithoutChecksum disables CRC32C object checksums, for S3-compatible
// services that reject them.
func WithoutChecksum() Option {
	return func(s *Store) { s.checksum = false }
}

// NewStore creates a store on bucket below prefix.
func NewStore(client Client, bucket, prefix string, opts ...Option) *Store {
	s := &Store{
		client:      client,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		partSize:    DefaultPartSize,
		concurrency: manager.DefaultUploadConcurrency,
		checksum:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromConfig loads the default AWS configuration (environment,
// shared config, instance role) and creates a store.
func NewStoreFromConfig(ctx context.Context, bucket, prefix string, opts ...Option) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, prefix, opts...), nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *Store) rel(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// Open heads the object and returns a blob serving ranged GETs.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("s3: head %s: %w", key, err)
	}
	return &object{
		client: s.client,
		bucket: s.bucket,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
	}, nil
}

// Create streams a blob through a multipart upload. The object appears when
// the returned blob is closed.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = s.partSize
		u.Concurrency = s.concurrency
	})

	pr, pw := io.Pipe()
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   pr,
	}
	if s.checksum {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}

	w := &upload{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := uploader.Upload(ctx, input)
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Put uploads data with a single PutObject.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if s.checksum {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3: put %s: %w", name, err)
	}
	return nil
}

// Delete removes an object. S3 reports success for missing keys.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3: delete %s: %w", name, err)
	}
	return nil
}

// List pages through the keys below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.prefix
	if full != "" {
		full += "/"
	}
	full += prefix

	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list %s: %w", full, err)
		}
		for _, obj := range page.Contents {
			names = append(names, s.rel(aws.ToString(obj.Key)))
		}
	}
	sort.Strings(names)
	return names, nil
}

type object struct {
	client Client
	bucket string
	key    string
	size   int64
}

func (o *object) Size() int64  { return o.size }
func (o *object) Close() error { return nil }

func (o *object) get(ctx context.Context, off, end int64) (io.ReadCloser, error) {
	resp, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: get %s: %w", o.key, err)
	}
	return resp.Body, nil
}

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off >= o.size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), o.size) - 1
	body, err := o.get(ctx, off, end)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	want := int(end - off + 1)
	n, err := io.ReadFull(body, p[:want])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= o.size || length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return o.get(ctx, off, min(off+length, o.size)-1)
}

type upload struct {
	pw     *io.PipeWriter
	done   chan error
	closed atomic.Bool
	mu     sync.Mutex
	err    error
}

func (u *upload) Write(p []byte) (int, error) {
	if u.closed.Load() {
		return 0, blobstore.ErrClosed
	}
	return u.pw.Write(p)
}

// Sync is a no-op; the object is published by Close.
func (u *upload) Sync() error { return nil }

func (u *upload) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.closed.CompareAndSwap(false, true) {
		return u.err
	}
	_ = u.pw.Close()
	u.err = <-u.done
	return u.err
}

// Abort fails the upload; the uploader aborts the multipart upload.
func (u *upload) Abort() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = u.pw.CloseWithError(errUploadAborted)
	<-u.done
	return nil
}
