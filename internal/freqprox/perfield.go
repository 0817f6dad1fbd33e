package freqprox

import (
	"fmt"

	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/termshash"
)

const (
	streamFreq = 0
	streamProx = 1
)

// Option configures a PerField.
type Option func(*PerField)

// WithLongTermHandler sets a callback for tokens too long to index.
func WithLongTermHandler(fn func(field string, text []uint16)) Option {
	return func(f *PerField) {
		f.onLongTerm = fn
	}
}

// PerField is the posting consumer of one field in one thread. It is not
// safe for concurrent use.
type PerField struct {
	fis       *fieldinfo.FieldInfos
	fieldInfo *fieldinfo.FieldInfo
	table     *termshash.Table
	streams   int

	// omitTF is the in-memory format, fixed from one reset to the next.
	omitTF      bool
	hasPayloads bool

	docID    int
	position int
	payload  []byte

	skippedLongTerms int
	onLongTerm       func(field string, text []uint16)
}

// NewPerField creates the consumer of field fi, buffering into pools.
func NewPerField(fis *fieldinfo.FieldInfos, fi *fieldinfo.FieldInfo, pools termshash.Pools, postings *termshash.PostingPool, opts ...Option) *PerField {
	f := &PerField{
		fis:       fis,
		fieldInfo: fi,
		docID:     -1,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.omitTF = f.flags().OmitTF
	f.streams = 2
	if f.omitTF {
		f.streams = 1
	}
	f.table = termshash.New(f, pools, postings)
	return f
}

func (f *PerField) flags() fieldinfo.Flags {
	flags, _ := f.fis.FlagsOf(f.fieldInfo.Number)
	return flags
}

// FieldInfo returns the field of the consumer.
func (f *PerField) FieldInfo() *fieldinfo.FieldInfo { return f.fieldInfo }

// Table returns the term table of the consumer.
func (f *PerField) Table() *termshash.Table { return f.table }

// NumPostings returns the number of distinct buffered terms.
func (f *PerField) NumPostings() int { return f.table.NumPostings() }

// HasPayloads reports whether any buffered position carries a payload.
func (f *PerField) HasPayloads() bool { return f.hasPayloads }

// OmitTF reports whether the buffered postings are doc deltas only.
func (f *PerField) OmitTF() bool { return f.omitTF }

// SkippedLongTerms returns the number of tokens dropped for length.
func (f *PerField) SkippedLongTerms() int { return f.skippedLongTerms }

// StartDocument prepares for the tokens of docID. Documents must arrive in
// increasing order.
func (f *PerField) StartDocument(docID int) {
	if docID <= f.docID {
		panic(fmt.Sprintf("freqprox: field %q: document %d after %d", f.fieldInfo.Name, docID, f.docID))
	}
	f.docID = docID
}

// AddToken records an occurrence of text at position. text is normalized
// in place; payload may be nil and is copied.
func (f *PerField) AddToken(text []uint16, position int, payload []byte) {
	f.position = position
	f.payload = payload
	f.table.Add(text)
	f.payload = nil
}

// StreamCount implements termshash.Consumer.
func (f *PerField) StreamCount() int { return f.streams }

// NewTerm implements termshash.Consumer.
func (f *PerField) NewTerm(t *termshash.Table, p *termshash.Posting) {
	p.LastDocID = f.docID
	if f.omitTF {
		p.LastDocCode = f.docID
		return
	}
	p.LastDocCode = f.docID << 1
	p.TermFreq = 1
	f.writeProx(t, p, f.position)
}

// AddTerm implements termshash.Consumer.
func (f *PerField) AddTerm(t *termshash.Table, p *termshash.Posting) {
	if f.docID < p.LastDocID {
		panic(fmt.Sprintf("freqprox: field %q: document %d before %d", f.fieldInfo.Name, f.docID, p.LastDocID))
	}

	if f.omitTF {
		if f.docID != p.LastDocID {
			t.AppendVInt(streamFreq, p.LastDocCode)
			p.LastDocCode = f.docID - p.LastDocID
			p.LastDocID = f.docID
		}
		return
	}

	if f.docID != p.LastDocID {
		// The previous document of the term is complete.
		if p.TermFreq == 1 {
			t.AppendVInt(streamFreq, p.LastDocCode|1)
		} else {
			t.AppendVInt(streamFreq, p.LastDocCode)
			t.AppendVInt(streamFreq, p.TermFreq)
		}
		p.TermFreq = 1
		p.LastDocCode = (f.docID - p.LastDocID) << 1
		p.LastDocID = f.docID
		f.writeProx(t, p, f.position)
		return
	}

	p.TermFreq++
	f.writeProx(t, p, f.position-p.LastPosition)
}

func (f *PerField) writeProx(t *termshash.Table, p *termshash.Posting, proxCode int) {
	if len(f.payload) > 0 {
		t.AppendVInt(streamProx, proxCode<<1|1)
		t.AppendVInt(streamProx, len(f.payload))
		t.AppendBytes(streamProx, f.payload)
		f.hasPayloads = true
	} else {
		t.AppendVInt(streamProx, proxCode<<1)
	}
	p.LastPosition = f.position
}

// SkippingLongTerm implements termshash.Consumer.
func (f *PerField) SkippingLongTerm(text []uint16) {
	f.skippedLongTerms++
	if f.onLongTerm != nil {
		f.onLongTerm(f.fieldInfo.Name, text)
	}
}

// reset clears the table after its postings were flushed and picks up the
// current field flags for the next buffer. Every handle goes back to the
// shared pool.
func (f *PerField) reset() {
	n := f.table.NumPostings()
	f.table.Reset()
	f.table.ReleaseFree()
	f.table.Shrink(n)
	if f.streams == 2 {
		f.omitTF = f.flags().OmitTF
	}
	f.hasPayloads = false
	f.docID = -1
}

// Abort discards the buffered postings.
func (f *PerField) Abort() {
	f.table.Reset()
	f.table.ReleaseFree()
	f.hasPayloads = false
	f.docID = -1
}
