package termshash

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Posting is the per-term handle owned by a Table until the next flush.
//
// TextStart, IntStart and ByteStart are global pool addresses. The remaining
// fields are scratch for the consumer of the table.
type Posting struct {
	TextStart int
	IntStart  int
	ByteStart int

	LastDocID    int
	LastDocCode  int
	TermFreq     int
	LastPosition int
}

// PostingSize is the in-memory size of a handle.
const PostingSize = int64(unsafe.Sizeof(Posting{}))

// PostingPool recycles handles across tables. Handles are only ever
// recycled in bulk, when a table is reset.
type PostingPool struct {
	mu        sync.Mutex
	free      []*Posting
	allocated atomic.Int64
}

// NewPostingPool creates an empty pool.
func NewPostingPool() *PostingPool {
	return &PostingPool{}
}

// Take fills dst with cleared handles.
func (pp *PostingPool) Take(dst []*Posting) {
	pp.mu.Lock()
	n := min(len(pp.free), len(dst))
	start := len(pp.free) - n
	copy(dst, pp.free[start:])
	clear(pp.free[start:])
	pp.free = pp.free[:start]
	pp.mu.Unlock()

	for i := 0; i < n; i++ {
		*dst[i] = Posting{}
	}
	if n == len(dst) {
		return
	}

	fresh := make([]Posting, len(dst)-n)
	for i := range fresh {
		dst[n+i] = &fresh[i]
	}
	pp.allocated.Add(int64(len(fresh)))
}

// Recycle takes handles back.
func (pp *PostingPool) Recycle(ps []*Posting) {
	if len(ps) == 0 {
		return
	}
	pp.mu.Lock()
	pp.free = append(pp.free, ps...)
	pp.mu.Unlock()
}

// Trim drops free handles until at most keep remain.
func (pp *PostingPool) Trim(keep int) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if len(pp.free) <= keep {
		return
	}
	dropped := len(pp.free) - keep
	clear(pp.free[keep:])
	pp.free = pp.free[:keep]
	pp.allocated.Add(-int64(dropped))
}

// Allocated returns the number of live handles, in use or free.
func (pp *PostingPool) Allocated() int64 {
	return pp.allocated.Load()
}

// Free returns the number of handles waiting for reuse.
func (pp *PostingPool) Free() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.free)
}

// BytesUsed returns the memory held by live handles.
func (pp *PostingPool) BytesUsed() int64 {
	return pp.allocated.Load() * PostingSize
}
