package cache

import "context"

// CacheKind separates key spaces.
type CacheKind uint8

const (
	CacheKindUnknown CacheKind = iota
	// CacheKindFile is a fixed-size block of a stored file.
	CacheKindFile
)

// CacheKey identifies a cached block. Files are immutable once written, so
// name and block index are stable; rewritten names are invalidated.
type CacheKey struct {
	Kind   CacheKind
	Path   string
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks. Returned slices
// must be treated as read-only.
type BlockCache interface {
	Get(ctx context.Context, key CacheKey) ([]byte, bool)
	Set(ctx context.Context, key CacheKey, b []byte)
	Invalidate(predicate func(key CacheKey) bool)
	Close() error
	Stats() (hits, misses int64)
}
