package arena

// Pool is an append-only sequence of blocks owned by one thread state.
//
// Buffer is the current block, Upto the next free position in it and Offset
// the global offset of its first element. A fresh pool has no block; the
// first NextBuffer call allocates one.
type Pool[T Element] struct {
	Buffers [][]T
	Buffer  []T
	Upto    int
	Offset  int

	bufferUpto int
	alloc      *Allocator[T]
	zeroFill   bool
}

// NewPool creates a pool drawing blocks from alloc.
func NewPool[T Element](alloc *Allocator[T]) *Pool[T] {
	return &Pool[T]{
		Upto:       alloc.blockSize,
		Offset:     -alloc.blockSize,
		bufferUpto: -1,
		alloc:      alloc,
	}
}

// BlockSize returns the number of elements per block.
func (p *Pool[T]) BlockSize() int { return p.alloc.blockSize }

// NextBuffer makes a new block current.
func (p *Pool[T]) NextBuffer() {
	p.bufferUpto++
	if p.bufferUpto == len(p.Buffers) {
		p.Buffers = append(p.Buffers, nil)
	}
	p.Buffer = p.alloc.Get()
	p.Buffers[p.bufferUpto] = p.Buffer
	p.Upto = 0
	p.Offset += p.alloc.blockSize
}

// Block returns the block containing the global offset.
func (p *Pool[T]) Block(offset int) []T {
	return p.Buffers[offset>>p.alloc.shift]
}

// At returns the element at the global offset.
func (p *Pool[T]) At(offset int) T {
	return p.Buffers[offset>>p.alloc.shift][offset&(p.alloc.blockSize-1)]
}

// Position returns the global offset of the next free element.
func (p *Pool[T]) Position() int {
	return p.Offset + p.Upto
}

// NumBuffers returns the number of blocks in use.
func (p *Pool[T]) NumBuffers() int {
	return p.bufferUpto + 1
}

// Reset recycles every block except the first and rewinds the pool. Pools
// created with zero fill clear the used region first.
func (p *Pool[T]) Reset() {
	if p.bufferUpto == -1 {
		return
	}
	if p.zeroFill {
		for i := 0; i < p.bufferUpto; i++ {
			clear(p.Buffers[i])
		}
		clear(p.Buffers[p.bufferUpto][:p.Upto])
	}
	if p.bufferUpto > 0 {
		p.alloc.Recycle(p.Buffers[1 : p.bufferUpto+1]...)
		clear(p.Buffers[1 : p.bufferUpto+1])
	}

	p.bufferUpto = 0
	p.Upto = 0
	p.Offset = 0
	p.Buffer = p.Buffers[0]
}

// Free recycles every block, including the first.
func (p *Pool[T]) Free() {
	p.Reset()
	if p.bufferUpto == -1 {
		return
	}
	p.alloc.Recycle(p.Buffers[0])
	p.Buffers[0] = nil
	p.Buffers = p.Buffers[:0]
	p.Buffer = nil
	p.bufferUpto = -1
	p.Upto = p.alloc.blockSize
	p.Offset = -p.alloc.blockSize
}
