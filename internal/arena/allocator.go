package arena

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	// ByteBlockShift is the log2 of the byte block size.
	ByteBlockShift = 15
	// ByteBlockSize is the size of a byte block (32 KiB).
	ByteBlockSize = 1 << ByteBlockShift
	// ByteBlockMask masks the in-block part of a global byte offset.
	ByteBlockMask = ByteBlockSize - 1

	// IntBlockShift is the log2 of the int block size.
	IntBlockShift = 13
	// IntBlockSize is the number of int32 slots per block.
	IntBlockSize = 1 << IntBlockShift
	// IntBlockMask masks the in-block part of a global int offset.
	IntBlockMask = IntBlockSize - 1

	// CharBlockShift is the log2 of the char block size.
	CharBlockShift = 14
	// CharBlockSize is the number of UTF-16 code units per block.
	CharBlockSize = 1 << CharBlockShift
	// CharBlockMask masks the in-block part of a global char offset.
	CharBlockMask = CharBlockSize - 1

	// MaxTermLength is the longest term (in code units) that fits a char block
	// together with its terminator.
	MaxTermLength = CharBlockSize - 1
)

// Element is the set of pooled element types.
type Element interface {
	~byte | ~int32 | ~uint16
}

// MemoryAcquirer accounts for memory held by an Allocator.
type MemoryAcquirer interface {
	AcquireMemory(bytes int64) error
	ReleaseMemory(bytes int64)
}

// Stats tracks allocator usage.
type Stats struct {
	BlocksAllocated uint64 // Historical: blocks ever created
	BlocksInUse     int64  // Current: blocks handed out and not recycled
	BlocksFree      int64  // Current: blocks on the free list
	BytesCharged    int64  // Current: bytes accounted with the acquirer
}

// Option configures an Allocator.
type Option func(*allocatorOptions)

type allocatorOptions struct {
	acquirer MemoryAcquirer
}

// WithMemoryAcquirer charges every newly created block to the acquirer.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(o *allocatorOptions) {
		o.acquirer = acquirer
	}
}

// Allocator hands out fixed-size blocks and takes them back for reuse.
// It is safe for concurrent use by many pools.
type Allocator[T Element] struct {
	mu        sync.Mutex
	shift     int
	blockSize int
	blockMem  int64
	free      [][]T
	acquirer  MemoryAcquirer

	charged   int64
	inUse     atomic.Int64
	created   atomic.Uint64
	overLimit atomic.Bool
}

// NewAllocator creates an allocator for blocks of 1<<shift elements.
func NewAllocator[T Element](shift int, opts ...Option) *Allocator[T] {
	var o allocatorOptions
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	size := 1 << shift
	return &Allocator[T]{
		shift:     shift,
		blockSize: size,
		blockMem:  int64(size) * int64(unsafe.Sizeof(zero)),
		acquirer:  o.acquirer,
	}
}

// NewByteAllocator returns an allocator for byte blocks.
func NewByteAllocator(opts ...Option) *Allocator[byte] {
	return NewAllocator[byte](ByteBlockShift, opts...)
}

// NewIntAllocator returns an allocator for int32 blocks.
func NewIntAllocator(opts ...Option) *Allocator[int32] {
	return NewAllocator[int32](IntBlockShift, opts...)
}

// NewCharAllocator returns an allocator for UTF-16 blocks.
func NewCharAllocator(opts ...Option) *Allocator[uint16] {
	return NewAllocator[uint16](CharBlockShift, opts...)
}

// Shift returns the log2 block size.
func (a *Allocator[T]) Shift() int { return a.shift }

// BlockSize returns the number of elements per block.
func (a *Allocator[T]) BlockSize() int { return a.blockSize }

// Get returns a block, reusing a recycled one if available.
// Recycled blocks are returned as they were handed back; pools that need
// zeroed memory clear blocks before recycling them.
func (a *Allocator[T]) Get() []T {
	a.inUse.Add(1)

	a.mu.Lock()
	if n := len(a.free); n > 0 {
		b := a.free[n-1]
		a.free[n-1] = nil
		a.free = a.free[:n-1]
		a.mu.Unlock()
		return b
	}

	// A denied charge does not fail the allocation; it flags the allocator so
	// the writer flushes at the next opportunity.
	if a.acquirer != nil {
		if err := a.acquirer.AcquireMemory(a.blockMem); err != nil {
			a.overLimit.Store(true)
		} else {
			a.charged += a.blockMem
		}
	}
	a.mu.Unlock()

	a.created.Add(1)
	return make([]T, a.blockSize)
}

// Recycle takes blocks back for reuse.
func (a *Allocator[T]) Recycle(blocks ...[]T) {
	if len(blocks) == 0 {
		return
	}
	a.mu.Lock()
	a.free = append(a.free, blocks...)
	a.mu.Unlock()
	a.inUse.Add(-int64(len(blocks)))
}

// Trim drops free blocks until at most keep remain and releases the memory
// that was charged for them.
func (a *Allocator[T]) Trim(keep int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for len(a.free) > keep {
		n := len(a.free)
		a.free[n-1] = nil
		a.free = a.free[:n-1]
		if a.acquirer != nil && a.charged > 0 {
			release := min(a.charged, a.blockMem)
			a.charged -= release
			a.acquirer.ReleaseMemory(release)
		}
	}
	if len(a.free) == 0 {
		a.free = nil
	}
}

// BytesUsed returns the memory held by blocks currently handed out.
func (a *Allocator[T]) BytesUsed() int64 {
	return a.inUse.Load() * a.blockMem
}

// BytesAllocated returns the memory held by blocks handed out or free.
func (a *Allocator[T]) BytesAllocated() int64 {
	a.mu.Lock()
	free := int64(len(a.free))
	a.mu.Unlock()
	return (a.inUse.Load() + free) * a.blockMem
}

// OverLimit reports whether a block was created after the acquirer denied
// its charge.
func (a *Allocator[T]) OverLimit() bool {
	return a.overLimit.Load()
}

// ResetOverLimit clears the over-limit flag.
func (a *Allocator[T]) ResetOverLimit() {
	a.overLimit.Store(false)
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator[T]) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		BlocksAllocated: a.created.Load(),
		BlocksInUse:     a.inUse.Load(),
		BlocksFree:      int64(len(a.free)),
		BytesCharged:    a.charged,
	}
}
