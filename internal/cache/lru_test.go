package cache

import (
	"context"
	"testing"

	"github.com/hupe1980/termdex/internal/resource"
	"github.com/stretchr/testify/assert"
)

func fileKey(path string, blk uint64) CacheKey {
	return CacheKey{Kind: CacheKindFile, Path: path, Offset: blk}
}

func TestLRUBlockCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(10, nil)

	c.Set(ctx, fileKey("_0.tis", 0), make([]byte, 4))
	c.Set(ctx, fileKey("_0.tis", 1), make([]byte, 4))
	_, ok := c.Get(ctx, fileKey("_0.tis", 0))
	assert.True(t, ok)

	// Evicts block 1, the least recently used.
	c.Set(ctx, fileKey("_0.tis", 2), make([]byte, 4))
	_, ok = c.Get(ctx, fileKey("_0.tis", 1))
	assert.False(t, ok)
	assert.EqualValues(t, 8, c.Size())

	// Larger than capacity: ignored.
	c.Set(ctx, fileKey("_0.frq", 0), make([]byte, 11))
	assert.Equal(t, 2, c.Len())

	hits, misses := c.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestLRUBlockCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRUBlockCache(100, rc)

	c.Set(ctx, fileKey("CURRENT", 0), []byte("abc"))
	c.Set(ctx, fileKey("_0.tis", 0), []byte("defg"))
	assert.EqualValues(t, 7, rc.MemoryUsage())

	c.Invalidate(func(k CacheKey) bool { return k.Path == "CURRENT" })
	_, ok := c.Get(ctx, fileKey("CURRENT", 0))
	assert.False(t, ok)
	assert.EqualValues(t, 4, rc.MemoryUsage())

	// Replacing a key does not double count.
	c.Set(ctx, fileKey("_0.tis", 0), []byte("hi"))
	assert.EqualValues(t, 2, rc.MemoryUsage())

	assert.NoError(t, c.Close())
	assert.EqualValues(t, 0, rc.MemoryUsage())
}

func TestLRUBlockCache_ControllerLimit(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 5})
	c := NewLRUBlockCache(100, rc)

	c.Set(ctx, fileKey("a", 0), make([]byte, 4))
	c.Set(ctx, fileKey("b", 0), make([]byte, 4))
	assert.Equal(t, 1, c.Len())
}
