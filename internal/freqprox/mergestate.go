package freqprox

import (
	"errors"
	"fmt"

	"github.com/hupe1980/termdex/internal/arena"
	"github.com/hupe1980/termdex/internal/termshash"
)

// ErrStreamOverrun is returned when a buffered posting stream ends early.
var ErrStreamOverrun = errors.New("freqprox: posting stream overrun")

// FieldMergeState walks the sorted terms of one PerField and, for each
// term, its documents in increasing order.
type FieldMergeState struct {
	field    *PerField
	postings []*termshash.Posting
	upto     int
	p        *termshash.Posting

	text []uint16
	freq arena.ByteSliceReader
	prox arena.ByteSliceReader

	docID    int
	termFreq int
	err      error
}

// NewFieldMergeState sorts the terms of f. The table must not be written
// to until it is reset.
func NewFieldMergeState(f *PerField) *FieldMergeState {
	return &FieldMergeState{
		field:    f,
		postings: f.table.SortPostings(),
		upto:     -1,
	}
}

// Field returns the consumer being walked.
func (s *FieldMergeState) Field() *PerField { return s.field }

// Text returns the current term.
func (s *FieldMergeState) Text() []uint16 { return s.text }

// DocID returns the current document.
func (s *FieldMergeState) DocID() int { return s.docID }

// TermFreq returns the frequency of the term in the current document.
func (s *FieldMergeState) TermFreq() int { return s.termFreq }

// Prox returns the reader over the positions of the current term.
func (s *FieldMergeState) Prox() *arena.ByteSliceReader { return &s.prox }

// Err returns the first decoding error.
func (s *FieldMergeState) Err() error { return s.err }

// NextTerm advances to the next term and its first document.
func (s *FieldMergeState) NextTerm() bool {
	s.upto++
	if s.upto >= len(s.postings) || s.err != nil {
		return false
	}
	t := s.field.table
	s.p = s.postings[s.upto]
	s.docID = 0
	s.text = t.TermText(s.p)
	t.InitReader(&s.freq, s.p, streamFreq)
	if !s.field.omitTF {
		t.InitReader(&s.prox, s.p, streamProx)
	}

	if !s.NextDoc() {
		if s.err == nil {
			s.err = fmt.Errorf("%w: term %q has no documents", ErrStreamOverrun, termshash.String(s.text))
		}
		return false
	}
	return true
}

// NextDoc advances to the next document of the current term. The last
// document comes from the handle once the stream is exhausted.
func (s *FieldMergeState) NextDoc() bool {
	if s.err != nil {
		return false
	}
	if s.freq.EOF() {
		if s.p.LastDocCode == -1 {
			return false
		}
		s.docID = s.p.LastDocID
		if !s.field.omitTF {
			s.termFreq = s.p.TermFreq
		}
		s.p.LastDocCode = -1
		return true
	}

	code, err := s.freq.ReadVInt()
	if err != nil {
		s.err = err
		return false
	}
	if s.field.omitTF {
		s.docID += code
	} else {
		s.docID += code >> 1
		if code&1 != 0 {
			s.termFreq = 1
		} else if s.termFreq, err = s.freq.ReadVInt(); err != nil {
			s.err = err
			return false
		}
	}
	if s.docID == s.p.LastDocID {
		panic(fmt.Sprintf("freqprox: term %q: document %d buffered twice", termshash.String(s.text), s.docID))
	}
	return true
}
