package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/termdex/internal/cache"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheBlockSize is the block size used when none is given.
const DefaultCacheBlockSize = 4096

// maxFillConcurrency bounds the backend reads issued for one ReadAt.
const maxFillConcurrency = 16

// CachingStore wraps a BlobStore with a block cache for reads. Remote stores
// benefit most: term dictionary and posting reads are small and repeated.
type CachingStore struct {
	inner     BlobStore
	cache     cache.BlockCache
	blockSize int64
}

// NewCachingStore creates a CachingStore. blockSize defaults to
// DefaultCacheBlockSize if <= 0.
func NewCachingStore(inner BlobStore, c cache.BlockCache, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultCacheBlockSize
	}
	return &CachingStore{
		inner:     inner,
		cache:     c,
		blockSize: blockSize,
	}
}

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{
		inner:     b,
		cache:     s.cache,
		name:      name,
		blockSize: s.blockSize,
	}, nil
}

// Create passes through; the blob is invalidated first since a name can be
// rewritten (commit pointers are).
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.invalidate(name)
	return s.inner.Create(ctx, name)
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) invalidate(name string) {
	s.cache.Invalidate(func(key cache.CacheKey) bool {
		return key.Kind == cache.CacheKindFile && key.Path == name
	})
}

// CachingBlob serves reads through the block cache.
type CachingBlob struct {
	inner     Blob
	cache     cache.BlockCache
	name      string
	blockSize int64
}

func (b *CachingBlob) Close() error {
	return b.inner.Close()
}

func (b *CachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *CachingBlob) key(blk int64) cache.CacheKey {
	return cache.CacheKey{
		Kind:   cache.CacheKindFile,
		Path:   b.name,
		Offset: uint64(blk),
	}
}

func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := p
	if off+int64(len(p)) > size {
		want = p[:size-off]
	}

	startBlock := off / b.blockSize
	endBlock := (off + int64(len(want)) - 1) / b.blockSize
	if err := b.fillCache(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	total := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		data, err := b.block(ctx, blk)
		if err != nil {
			return total, err
		}
		blkStart := blk * b.blockSize
		from := max(blkStart, off) - blkStart
		if from >= int64(len(data)) {
			break
		}
		total += copy(want[total:], data[from:])
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// fillCache loads missing blocks in [startBlock, endBlock], issuing one
// backend read per contiguous run of misses.
func (b *CachingBlob) fillCache(ctx context.Context, startBlock, endBlock int64) error {
	type run struct{ start, count int64 }
	var runs []run
	for blk := startBlock; blk <= endBlock; blk++ {
		if _, ok := b.cache.Get(ctx, b.key(blk)); ok {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].start+runs[n-1].count == blk {
			runs[n-1].count++
		} else {
			runs = append(runs, run{start: blk, count: 1})
		}
	}
	if len(runs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFillConcurrency)

	size := b.Size()
	for _, r := range runs {
		g.Go(func() error {
			byteStart := r.start * b.blockSize
			byteLen := min(r.count*b.blockSize, size-byteStart)
			if byteLen <= 0 {
				return nil
			}

			buf := make([]byte, byteLen)
			n, err := b.inner.ReadAt(gctx, buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]

			for i := int64(0); i < r.count; i++ {
				lo := i * b.blockSize
				if lo >= int64(len(buf)) {
					break
				}
				hi := min(lo+b.blockSize, int64(len(buf)))
				// Copy so the cache does not pin the whole run.
				b.cache.Set(gctx, b.key(r.start+i), append([]byte(nil), buf[lo:hi]...))
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *CachingBlob) block(ctx context.Context, blk int64) ([]byte, error) {
	if data, ok := b.cache.Get(ctx, b.key(blk)); ok {
		return data, nil
	}

	// Not admitted by the cache (or evicted meanwhile); read through.
	buf := make([]byte, b.blockSize)
	n, err := b.inner.ReadAt(ctx, buf, blk*b.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func (b *CachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	return io.NopCloser(&sectionReader{blob: b, ctx: ctx, off: off, limit: off + length}), nil
}

// sectionReader adapts a Blob to io.Reader for a fixed range.
type sectionReader struct {
	blob  Blob
	ctx   context.Context
	off   int64
	limit int64
}

func (r *sectionReader) Read(p []byte) (int, error) {
	if r.off >= r.limit {
		return 0, io.EOF
	}
	if remaining := r.limit - r.off; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.blob.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	if errors.Is(err, io.EOF) && n > 0 {
		err = nil
	}
	return n, err
}
