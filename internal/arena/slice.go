package arena

import (
	"errors"
	"io"
)

// FirstLevelSize is the size of a freshly allocated slice.
const FirstLevelSize = 5

// LevelSizes holds the slice size for each level.
var LevelSizes = [...]int{5, 14, 20, 30, 40, 40, 80, 80, 120, 200}

// NextLevel maps a level to the level of the slice that follows it.
var NextLevel = [...]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 9}

// ErrSliceOverrun is returned when reading past the end of a slice chain.
var ErrSliceOverrun = errors.New("arena: read past end of slice")

// ByteBlockPool is a byte pool that carves growable slices out of its blocks.
type ByteBlockPool struct {
	*Pool[byte]
}

// NewByteBlockPool creates a zero-filling byte pool.
func NewByteBlockPool(alloc *Allocator[byte]) *ByteBlockPool {
	p := NewPool(alloc)
	p.zeroFill = true
	return &ByteBlockPool{Pool: p}
}

// NewSlice reserves a slice of size bytes in the current block and returns its
// start relative to the block. The last byte carries the level-0 end marker.
func (p *ByteBlockPool) NewSlice(size int) int {
	if p.Upto > ByteBlockSize-size {
		p.NextBuffer()
	}
	upto := p.Upto
	p.Upto += size
	p.Buffer[p.Upto-1] = 16
	return upto
}

// NewSliceAddress is NewSlice returning the global address of the slice.
func (p *ByteBlockPool) NewSliceAddress(size int) int {
	upto := p.NewSlice(size)
	return upto + p.Offset
}

// AllocSlice grows the slice whose end marker sits at slice[upto]. The last
// three data bytes move into the new slice and the last four bytes of the old
// slice become the forward address. It returns the next write position
// relative to the (now current) block.
func (p *ByteBlockPool) AllocSlice(slice []byte, upto int) int {
	level := int(slice[upto] & 15)
	newLevel := NextLevel[level]
	newSize := LevelSizes[newLevel]

	if p.Upto > ByteBlockSize-newSize {
		p.NextBuffer()
	}

	newUpto := p.Upto
	offset := newUpto + p.Offset
	p.Upto += newSize

	p.Buffer[newUpto] = slice[upto-3]
	p.Buffer[newUpto+1] = slice[upto-2]
	p.Buffer[newUpto+2] = slice[upto-1]

	slice[upto-3] = byte(offset >> 24)
	slice[upto-2] = byte(offset >> 16)
	slice[upto-1] = byte(offset >> 8)
	slice[upto] = byte(offset)

	p.Buffer[p.Upto-1] = byte(16 | newLevel)

	return newUpto + 3
}

// ByteSliceWriter appends to a slice chain.
type ByteSliceWriter struct {
	pool   *ByteBlockPool
	slice  []byte
	upto   int
	offset int
}

// NewByteSliceWriter creates a writer over pool.
func NewByteSliceWriter(pool *ByteBlockPool) *ByteSliceWriter {
	return &ByteSliceWriter{pool: pool}
}

// Init positions the writer at a global address.
func (w *ByteSliceWriter) Init(address int) {
	w.slice = w.pool.Block(address)
	w.upto = address & ByteBlockMask
	w.offset = address - w.upto
}

// WriteByte appends b, growing the slice when the end marker is reached.
func (w *ByteSliceWriter) WriteByte(b byte) error {
	if w.slice[w.upto] != 0 {
		w.upto = w.pool.AllocSlice(w.slice, w.upto)
		w.slice = w.pool.Buffer
		w.offset = w.pool.Offset
	}
	w.slice[w.upto] = b
	w.upto++
	return nil
}

// Write appends p.
func (w *ByteSliceWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		_ = w.WriteByte(b)
	}
	return len(p), nil
}

// WriteVInt appends v as a variable length integer.
func (w *ByteSliceWriter) WriteVInt(v int) {
	u := uint32(v)
	for u >= 0x80 {
		_ = w.WriteByte(byte(u) | 0x80)
		u >>= 7
	}
	_ = w.WriteByte(byte(u))
}

// Address returns the global address of the next write.
func (w *ByteSliceWriter) Address() int {
	return w.upto + w.offset
}

// ByteSliceReader reads a slice chain from a start address up to, but not
// including, an end address.
type ByteSliceReader struct {
	pool         *ByteBlockPool
	bufferUpto   int
	buffer       []byte
	upto         int
	limit        int
	level        int
	bufferOffset int
	endIndex     int
}

// Init positions the reader over [startIndex, endIndex).
func (r *ByteSliceReader) Init(pool *ByteBlockPool, startIndex, endIndex int) {
	r.pool = pool
	r.endIndex = endIndex
	r.level = 0

	r.bufferUpto = startIndex >> ByteBlockShift
	r.bufferOffset = r.bufferUpto * ByteBlockSize
	r.buffer = pool.Buffers[r.bufferUpto]
	r.upto = startIndex & ByteBlockMask

	if startIndex+FirstLevelSize >= endIndex {
		// Whole stream lives in the first slice.
		r.limit = endIndex & ByteBlockMask
	} else {
		r.limit = r.upto + FirstLevelSize - 4
	}
}

// EOF reports whether all bytes have been read.
func (r *ByteSliceReader) EOF() bool {
	return r.upto+r.bufferOffset == r.endIndex
}

// ReadByte returns the next byte or io.EOF.
func (r *ByteSliceReader) ReadByte() (byte, error) {
	if r.EOF() {
		return 0, io.EOF
	}
	if r.upto == r.limit {
		r.nextSlice()
	}
	b := r.buffer[r.upto]
	r.upto++
	return b, nil
}

// ReadVInt decodes a variable length integer.
func (r *ByteSliceReader) ReadVInt() (int, error) {
	var v uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, ErrSliceOverrun
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return int(int32(v)), nil
		}
	}
	return 0, ErrSliceOverrun
}

// ReadBytes fills p.
func (r *ByteSliceReader) ReadBytes(p []byte) error {
	for len(p) > 0 {
		if r.EOF() {
			return ErrSliceOverrun
		}
		if r.upto == r.limit {
			r.nextSlice()
		}
		n := copy(p, r.buffer[r.upto:r.limit])
		r.upto += n
		p = p[n:]
	}
	return nil
}

func (r *ByteSliceReader) nextSlice() {
	nextIndex := int(r.buffer[r.limit])<<24 |
		int(r.buffer[r.limit+1])<<16 |
		int(r.buffer[r.limit+2])<<8 |
		int(r.buffer[r.limit+3])

	r.level = NextLevel[r.level]
	newSize := LevelSizes[r.level]

	r.bufferUpto = nextIndex >> ByteBlockShift
	r.bufferOffset = r.bufferUpto * ByteBlockSize
	r.buffer = r.pool.Buffers[r.bufferUpto]
	r.upto = nextIndex & ByteBlockMask

	if nextIndex+newSize >= r.endIndex {
		r.limit = r.endIndex - r.bufferOffset
	} else {
		r.limit = r.upto + newSize - 4
	}
}
