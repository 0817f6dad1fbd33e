package docwriter

import (
	"fmt"
	"unicode/utf16"

	"github.com/hupe1980/termdex/internal/arena"
	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/freqprox"
	"github.com/hupe1980/termdex/internal/norms"
	"github.com/hupe1980/termdex/internal/termshash"
	"github.com/hupe1980/termdex/model"
)

// threadState holds what one AddDocument call writes into. It is used by
// one goroutine at a time.
type threadState struct {
	w      *Writer
	pools  termshash.Pools
	fields map[string]*freqprox.PerField
	norms  map[int]*norms.PerField
	text   []uint16
}

func newThreadState(w *Writer) *threadState {
	return &threadState{
		w: w,
		pools: termshash.Pools{
			Chars: arena.NewPool(w.chars),
			Ints:  arena.NewPool(w.ints),
			Bytes: arena.NewByteBlockPool(w.bytes),
		},
		fields: make(map[string]*freqprox.PerField),
		norms:  make(map[int]*norms.PerField),
	}
}

func (st *threadState) field(fi *fieldinfo.FieldInfo) *freqprox.PerField {
	f, ok := st.fields[fi.Name]
	if !ok {
		f = freqprox.NewPerField(st.w.fis, fi, st.pools, st.w.postings,
			freqprox.WithLongTermHandler(st.w.skippingLongTerm))
		st.fields[fi.Name] = f
	}
	return f
}

func (st *threadState) norm(number int) *norms.PerField {
	n, ok := st.norms[number]
	if !ok {
		n = &norms.PerField{}
		st.norms[number] = n
	}
	return n
}

// tokenText returns the UTF-16 text of tok in a scratch buffer the table
// may normalize in place.
func (st *threadState) tokenText(tok *model.Token) []uint16 {
	st.text = st.text[:0]
	if tok.Raw != nil {
		st.text = append(st.text, tok.Raw...)
		return st.text
	}
	for _, r := range tok.Text {
		st.text = utf16.AppendRune(st.text, r)
	}
	return st.text
}

// processDocument inverts doc as docID. Instances of a field are indexed
// as one token stream; positions continue across them.
func (st *threadState) processDocument(docID int, doc *model.Document) error {
	docBoost := boostOf(doc.Boost)

	for _, name := range doc.FieldNames() {
		flags := fieldinfo.Flags{Indexed: true}
		boost := docBoost
		for i := range doc.Fields {
			f := &doc.Fields[i]
			if f.Name != name {
				continue
			}
			flags.OmitNorms = flags.OmitNorms || f.OmitNorms
			flags.OmitTF = flags.OmitTF || f.OmitTF
			boost *= boostOf(f.Boost)
		}

		fi := st.w.fis.Add(name, flags)
		consumer := st.field(fi)
		consumer.StartDocument(docID)

		position, length := -1, 0
		for i := range doc.Fields {
			f := &doc.Fields[i]
			if f.Name != name {
				continue
			}
			for j := range f.Tokens {
				tok := &f.Tokens[j]
				if tok.PositionIncrement < 0 {
					return fmt.Errorf("%w: field %q: negative position increment %d", ErrInvalidArgument, name, tok.PositionIncrement)
				}
				position = max(position+tok.PositionIncrement, 0)
				consumer.AddToken(st.tokenText(tok), position, tok.Payload)
				length++
			}
		}

		if !flags.OmitNorms {
			st.norm(fi.Number).Add(docID, norms.EncodeNorm(boost*norms.LengthNorm(length)))
		}
	}
	return nil
}

func boostOf(b float32) float32 {
	if b == 0 {
		return 1
	}
	return b
}

func (st *threadState) bytesUsed() int64 {
	var n int64
	for _, p := range st.norms {
		n += p.BytesUsed()
	}
	return n
}

// reset clears the norms and rewinds the pools. The consumers were reset
// by the flush or abort.
func (st *threadState) reset() {
	for _, p := range st.norms {
		p.Reset()
	}
	st.pools.Chars.Reset()
	st.pools.Ints.Reset()
	st.pools.Bytes.Reset()
}
