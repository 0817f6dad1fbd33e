package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/internal/resource"
)

// Directory is a flat namespace of index files.
type Directory interface {
	// CreateOutput creates a file. It becomes visible when the output is
	// closed.
	CreateOutput(ctx context.Context, name string) (*Output, error)
	// OpenInput opens a file and validates its footer.
	OpenInput(ctx context.Context, name string) (*Input, error)
	// FileExists reports whether a file exists.
	FileExists(ctx context.Context, name string) (bool, error)
	// FileLength returns the length of a file without its footer.
	FileLength(ctx context.Context, name string) (int64, error)
	// DeleteFile removes a file. Removing a missing file is not an error.
	DeleteFile(ctx context.Context, name string) error
	// ListAll returns the sorted names of all files.
	ListAll(ctx context.Context) ([]string, error)
	// PutRaw atomically writes a small file without a footer.
	PutRaw(ctx context.Context, name string, data []byte) error
	// ReadRaw reads a file written by PutRaw.
	ReadRaw(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// DirectoryOption configures a BlobDirectory.
type DirectoryOption func(*BlobDirectory)

// WithResourceController throttles file writes through rc's IO limit.
func WithResourceController(rc *resource.Controller) DirectoryOption {
	return func(d *BlobDirectory) {
		d.rc = rc
	}
}

// WithDirectoryLogger sets the logger for file lifecycle events.
func WithDirectoryLogger(l *slog.Logger) DirectoryOption {
	return func(d *BlobDirectory) {
		if l != nil {
			d.logger = l
		}
	}
}

// BlobDirectory is a Directory over any blob store.
type BlobDirectory struct {
	store  blobstore.BlobStore
	rc     *resource.Controller
	logger *slog.Logger
	closed atomic.Bool
}

// NewBlobDirectory creates a directory over store.
func NewBlobDirectory(store blobstore.BlobStore, opts ...DirectoryOption) *BlobDirectory {
	d := &BlobDirectory{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewRAMDirectory creates a directory held in memory.
func NewRAMDirectory(opts ...DirectoryOption) *BlobDirectory {
	return NewBlobDirectory(blobstore.NewMemoryStore(), opts...)
}

// OpenLocalDirectory creates a directory over a local path.
func OpenLocalDirectory(path string, opts ...DirectoryOption) *BlobDirectory {
	return NewBlobDirectory(blobstore.NewLocalStore(path), opts...)
}

// Store returns the underlying blob store.
func (d *BlobDirectory) Store() blobstore.BlobStore { return d.store }

func (d *BlobDirectory) check() error {
	if d.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (d *BlobDirectory) CreateOutput(ctx context.Context, name string) (*Output, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	blob, err := d.store.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	d.logger.Debug("create output", "file", name)
	return newFileOutput(name, blob, d.rc.LimitWriter(ctx, blob)), nil
}

func (d *BlobDirectory) OpenInput(ctx context.Context, name string) (*Input, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	blob, err := d.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	in, err := newInput(ctx, name, blob)
	if err != nil {
		_ = blob.Close()
		return nil, err
	}
	return in, nil
}

func (d *BlobDirectory) FileExists(ctx context.Context, name string) (bool, error) {
	if err := d.check(); err != nil {
		return false, err
	}
	return blobstore.Exists(ctx, d.store, name)
}

func (d *BlobDirectory) FileLength(ctx context.Context, name string) (int64, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	blob, err := d.store.Open(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}
	defer blob.Close()
	return max(blob.Size()-footerSize, 0), nil
}

func (d *BlobDirectory) DeleteFile(ctx context.Context, name string) error {
	if err := d.check(); err != nil {
		return err
	}
	if err := d.store.Delete(ctx, name); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	d.logger.Debug("delete file", "file", name)
	return nil
}

func (d *BlobDirectory) ListAll(ctx context.Context) ([]string, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return d.store.List(ctx, "")
}

func (d *BlobDirectory) PutRaw(ctx context.Context, name string, data []byte) error {
	if err := d.check(); err != nil {
		return err
	}
	return d.store.Put(ctx, name, data)
}

func (d *BlobDirectory) ReadRaw(ctx context.Context, name string) ([]byte, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return blobstore.ReadAll(ctx, d.store, name)
}

// Close marks the directory closed. The blob store is owned by the caller.
func (d *BlobDirectory) Close() error {
	d.closed.Store(true)
	return nil
}
