package termshash

import (
	"fmt"
	"sort"

	"github.com/hupe1980/termdex/internal/arena"
)

const (
	initialHashSize = 4
	postingBatch    = 64
)

// Consumer receives term events from a Table.
type Consumer interface {
	// StreamCount is the number of byte streams kept per term.
	StreamCount() int
	// NewTerm is called the first time a term is seen since the last reset.
	NewTerm(t *Table, p *Posting)
	// AddTerm is called for every later occurrence.
	AddTerm(t *Table, p *Posting)
	// SkippingLongTerm is called for tokens that cannot be interned.
	SkippingLongTerm(text []uint16)
}

// Pools are the per-thread block pools a Table writes into.
type Pools struct {
	Chars *arena.Pool[uint16]
	Ints  *arena.Pool[int32]
	Bytes *arena.ByteBlockPool
}

// Option configures a Table.
type Option func(*Table)

// WithNext chains a secondary table. Every term added to the primary is
// forwarded to next by its text address.
func WithNext(next *Table) Option {
	return func(t *Table) {
		t.next = next
	}
}

// Table interns terms for one field of one thread and routes their
// occurrences to a Consumer.
type Table struct {
	consumer    Consumer
	next        *Table
	primary     bool
	streamCount int

	pools    Pools
	postings *PostingPool

	hash        []*Posting
	hashSize    int
	hashMask    int32
	hashHalf    int
	numPostings int
	compacted   bool

	intUptos     []int32
	intUptoStart int
	writer       *arena.ByteSliceWriter

	free []*Posting
}

// New creates a primary table. Only primary tables accept token text.
func New(consumer Consumer, pools Pools, postings *PostingPool, opts ...Option) *Table {
	t := newTable(consumer, pools, postings, true)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewSecondary creates a table that is fed by a primary through
// AddByTextStart. Its char pool must be the primary's.
func NewSecondary(consumer Consumer, pools Pools, postings *PostingPool) *Table {
	return newTable(consumer, pools, postings, false)
}

func newTable(consumer Consumer, pools Pools, postings *PostingPool, primary bool) *Table {
	t := &Table{
		consumer:    consumer,
		primary:     primary,
		streamCount: consumer.StreamCount(),
		pools:       pools,
		postings:    postings,
		writer:      arena.NewByteSliceWriter(pools.Bytes),
	}
	t.setHashSize(initialHashSize)
	return t
}

func (t *Table) setHashSize(size int) {
	t.hash = make([]*Posting, size)
	t.hashSize = size
	t.hashMask = int32(size - 1)
	t.hashHalf = size / 2
}

// Next returns the chained secondary table, if any.
func (t *Table) Next() *Table { return t.next }

// Consumer returns the consumer of the table.
func (t *Table) Consumer() Consumer { return t.consumer }

// StreamCount returns the number of streams per term.
func (t *Table) StreamCount() int { return t.streamCount }

// HashSize returns the size of the hash array.
func (t *Table) HashSize() int { return t.hashSize }

// NumPostings returns the number of distinct terms.
func (t *Table) NumPostings() int { return t.numPostings }

// Pools returns the pools the table writes into.
func (t *Table) Pools() Pools { return t.pools }

// Add interns text and dispatches to the consumer. Text is normalized in
// place. A term too long for a char block is reported through
// SkippingLongTerm and dropped.
func (t *Table) Add(text []uint16) {
	if !t.primary {
		panic("termshash: Add called on secondary table")
	}

	code := hashText(text)
	pos := code & t.hashMask
	p := t.hash[pos]
	if p != nil && !t.textEquals(p, text) {
		inc := ((code >> 8) + code) | 1
		for {
			code += inc
			pos = code & t.hashMask
			p = t.hash[pos]
			if p == nil || t.textEquals(p, text) {
				break
			}
		}
	}

	if p == nil {
		chars := t.pools.Chars
		textLen1 := len(text) + 1
		if textLen1+chars.Upto > chars.BlockSize() {
			if textLen1 > chars.BlockSize() {
				t.consumer.SkippingLongTerm(text)
				return
			}
			chars.NextBuffer()
		}

		p = t.takePosting()
		textUpto := chars.Upto
		copy(chars.Buffer[textUpto:], text)
		chars.Buffer[textUpto+len(text)] = Terminator
		p.TextStart = textUpto + chars.Offset
		chars.Upto += textLen1

		t.insert(pos, p)
		t.initStreams(p)
		t.consumer.NewTerm(t, p)
	} else {
		t.selectStreams(p)
		t.consumer.AddTerm(t, p)
	}

	if t.next != nil {
		t.next.AddByTextStart(p.TextStart)
	}
}

// AddByTextStart records an occurrence of the term interned at textStart in
// the shared char pool.
func (t *Table) AddByTextStart(textStart int) {
	code := int32(textStart)
	pos := code & t.hashMask
	p := t.hash[pos]
	if p != nil && p.TextStart != textStart {
		inc := ((code >> 8) + code) | 1
		for {
			code += inc
			pos = code & t.hashMask
			p = t.hash[pos]
			if p == nil || p.TextStart == textStart {
				break
			}
		}
	}

	if p == nil {
		p = t.takePosting()
		p.TextStart = textStart
		t.insert(pos, p)
		t.initStreams(p)
		t.consumer.NewTerm(t, p)
	} else {
		t.selectStreams(p)
		t.consumer.AddTerm(t, p)
	}
}

func (t *Table) insert(pos int32, p *Posting) {
	t.hash[pos] = p
	t.numPostings++
	if t.numPostings == t.hashHalf {
		t.rehash(2 * t.hashSize)
	}
}

func (t *Table) initStreams(p *Posting) {
	ints := t.pools.Ints
	bytes := t.pools.Bytes

	if t.streamCount+ints.Upto > ints.BlockSize() {
		ints.NextBuffer()
	}
	if arena.ByteBlockSize-bytes.Upto < t.streamCount*arena.FirstLevelSize {
		bytes.NextBuffer()
	}

	t.intUptos = ints.Buffer
	t.intUptoStart = ints.Upto
	ints.Upto += t.streamCount
	p.IntStart = t.intUptoStart + ints.Offset

	for i := 0; i < t.streamCount; i++ {
		t.intUptos[t.intUptoStart+i] = int32(bytes.NewSliceAddress(arena.FirstLevelSize))
	}
	p.ByteStart = int(t.intUptos[t.intUptoStart])
}

func (t *Table) selectStreams(p *Posting) {
	t.intUptos = t.pools.Ints.Block(p.IntStart)
	t.intUptoStart = p.IntStart & arena.IntBlockMask
}

func (t *Table) takePosting() *Posting {
	if len(t.free) == 0 {
		t.free = make([]*Posting, postingBatch)
		t.postings.Take(t.free)
	}
	n := len(t.free)
	p := t.free[n-1]
	t.free[n-1] = nil
	t.free = t.free[:n-1]
	return p
}

func (t *Table) textEquals(p *Posting, text []uint16) bool {
	block := t.pools.Chars.Block(p.TextStart)
	pos := p.TextStart & arena.CharBlockMask
	for _, ch := range text {
		if block[pos] != ch {
			return false
		}
		pos++
	}
	return block[pos] == Terminator
}

// TermText returns the interned text of p. The slice aliases the char pool.
func (t *Table) TermText(p *Posting) []uint16 {
	block := t.pools.Chars.Block(p.TextStart)
	start := p.TextStart & arena.CharBlockMask
	end := start
	for block[end] != Terminator {
		end++
	}
	return block[start:end:end]
}

func (t *Table) rehash(newSize int) {
	newMask := int32(newSize - 1)
	newHash := make([]*Posting, newSize)

	for _, p0 := range t.hash {
		if p0 == nil {
			continue
		}
		var code int32
		if t.primary {
			code = hashInterned(t.TermText(p0))
		} else {
			code = int32(p0.TextStart)
		}

		pos := code & newMask
		if newHash[pos] != nil {
			inc := ((code >> 8) + code) | 1
			for {
				code += inc
				pos = code & newMask
				if newHash[pos] == nil {
					break
				}
			}
		}
		newHash[pos] = p0
	}

	t.hash = newHash
	t.hashSize = newSize
	t.hashMask = newMask
	t.hashHalf = newSize / 2
}

// AppendByte appends b to stream of the current term.
func (t *Table) AppendByte(stream int, b byte) {
	w := t.streamWriter(stream)
	_ = w.WriteByte(b)
	t.intUptos[t.intUptoStart+stream] = int32(w.Address())
}

// AppendBytes appends p to stream of the current term.
func (t *Table) AppendBytes(stream int, p []byte) {
	w := t.streamWriter(stream)
	_, _ = w.Write(p)
	t.intUptos[t.intUptoStart+stream] = int32(w.Address())
}

// AppendVInt appends v as a variable length integer.
func (t *Table) AppendVInt(stream int, v int) {
	w := t.streamWriter(stream)
	w.WriteVInt(v)
	t.intUptos[t.intUptoStart+stream] = int32(w.Address())
}

// streamWriter positions the shared slice writer at the end of stream of
// the current term.
func (t *Table) streamWriter(stream int) *arena.ByteSliceWriter {
	t.writer.Init(int(t.intUptos[t.intUptoStart+stream]))
	return t.writer
}

// StreamEnd returns the address just past the last byte written to stream of p.
func (t *Table) StreamEnd(p *Posting, stream int) int {
	return int(t.pools.Ints.At(p.IntStart + stream))
}

// InitReader positions r over stream of p.
func (t *Table) InitReader(r *arena.ByteSliceReader, p *Posting, stream int) {
	start := p.ByteStart + stream*arena.FirstLevelSize
	r.Init(t.pools.Bytes, start, t.StreamEnd(p, stream))
}

func (t *Table) compact() {
	if t.compacted {
		return
	}
	upto := 0
	for i, p := range t.hash {
		if p != nil {
			if upto < i {
				t.hash[upto] = p
				t.hash[i] = nil
			}
			upto++
		}
	}
	if upto != t.numPostings {
		panic(fmt.Sprintf("termshash: compacted %d handles, expected %d", upto, t.numPostings))
	}
	t.compacted = true
}

// SortPostings compacts the hash array and returns the handles sorted by
// text in code point order. The table must not be added to until Reset.
func (t *Table) SortPostings() []*Posting {
	t.compact()
	ps := t.hash[:t.numPostings]
	sort.Slice(ps, func(i, j int) bool {
		return t.compareText(ps[i], ps[j]) < 0
	})
	return ps
}

func (t *Table) compareText(p1, p2 *Posting) int {
	if p1 == p2 {
		return 0
	}
	b1 := t.pools.Chars.Block(p1.TextStart)
	pos1 := p1.TextStart & arena.CharBlockMask
	b2 := t.pools.Chars.Block(p2.TextStart)
	pos2 := p2.TextStart & arena.CharBlockMask
	for {
		c1, c2 := b1[pos1], b2[pos2]
		pos1++
		pos2++
		if c1 != c2 {
			switch {
			case c2 == Terminator:
				return 1
			case c1 == Terminator:
				return -1
			default:
				return compareUnit(c1, c2)
			}
		}
		if c1 == Terminator {
			return 0
		}
	}
}

// Reset recycles every handle and clears the table, including a chained
// secondary.
func (t *Table) Reset() {
	t.compact()
	t.postings.Recycle(t.hash[:t.numPostings])
	clear(t.hash[:t.numPostings])
	t.numPostings = 0
	t.compacted = false
	if t.next != nil {
		t.next.Reset()
	}
}

// Shrink halves the hash array while it is at least 8 and more than four
// times targetSize. The table must be empty.
func (t *Table) Shrink(targetSize int) {
	if t.numPostings != 0 {
		panic("termshash: shrink of non-empty table")
	}
	newSize := t.hashSize
	for newSize >= 8 && newSize/4 > targetSize {
		newSize /= 2
	}
	if newSize != t.hashSize {
		t.setHashSize(newSize)
	}
	if t.next != nil {
		t.next.Shrink(targetSize)
	}
}

// ReleaseFree hands the table's local free handles back to the shared pool.
func (t *Table) ReleaseFree() {
	t.postings.Recycle(t.free)
	t.free = nil
}
