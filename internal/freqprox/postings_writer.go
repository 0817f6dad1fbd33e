package freqprox

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/skiplist"
	"github.com/hupe1980/termdex/internal/terminfo"
	"github.com/hupe1980/termdex/store"
)

// PostingsWriter encodes sorted postings into the .frq, .prx and term
// dictionary files of a segment. Terms must be added in term order, the
// documents of a term in increasing order and, after each AddDoc, exactly
// freq positions.
type PostingsWriter struct {
	state   FlushState
	freqOut *store.Output
	proxOut *store.Output
	terms   *terminfo.Writer
	skip    *skiplist.Writer

	// current term
	field             *fieldinfo.FieldInfo
	text              []byte
	omitTF            bool
	storePayloads     bool
	df                int
	lastDoc           int
	lastPayloadLength int
	pendingPositions  int
	freqPointer       int64
	proxPointer       int64

	checkpoints int
}

// NewPostingsWriter creates the output files of state.Segment.
func NewPostingsWriter(ctx context.Context, state FlushState) (*PostingsWriter, error) {
	w := &PostingsWriter{state: state}
	var err error
	if w.freqOut, err = state.Dir.CreateOutput(ctx, FreqFileName(state.Segment)); err != nil {
		return nil, err
	}
	if state.FieldInfos.HasProx() {
		if w.proxOut, err = state.Dir.CreateOutput(ctx, ProxFileName(state.Segment)); err != nil {
			w.Abort()
			return nil, err
		}
	}
	if w.terms, err = terminfo.NewWriter(ctx, state.Dir, state.Segment, state.FieldInfos, state.Terms); err != nil {
		w.Abort()
		return nil, err
	}
	w.skip = skiplist.NewWriter(w.terms.SkipInterval(), w.terms.MaxSkipLevels(), state.NumDocs, w.freqOut, w.proxOut)
	return w, nil
}

// StartTerm begins the postings of a term of field. text is UTF-8 and is
// copied.
func (w *PostingsWriter) StartTerm(field *fieldinfo.FieldInfo, text []byte) {
	if w.field != nil {
		panic(fmt.Sprintf("freqprox: term %q started before %q was finished", text, w.text))
	}
	flags, _ := w.state.FieldInfos.FlagsOf(field.Number)
	w.field = field
	w.text = append(w.text[:0], text...)
	w.omitTF = flags.OmitTF
	w.storePayloads = !flags.OmitTF && flags.StorePayloads
	w.df = 0
	w.lastDoc = 0
	w.lastPayloadLength = -1
	w.freqPointer = w.freqOut.FilePointer()
	w.proxPointer = 0
	if w.proxOut != nil {
		w.proxPointer = w.proxOut.FilePointer()
	}
	w.skip.ResetSkip()
}

// AddDoc adds a document of the current term that holds it freq times.
func (w *PostingsWriter) AddDoc(doc, freq int) {
	if w.pendingPositions > 0 {
		panic(fmt.Sprintf("freqprox: term %q: %d positions of document %d missing", w.text, w.pendingPositions, w.lastDoc))
	}
	if doc >= w.state.NumDocs {
		panic(fmt.Sprintf("freqprox: term %q: document %d of %d", w.text, doc, w.state.NumDocs))
	}
	if w.df > 0 && doc <= w.lastDoc {
		panic(fmt.Sprintf("freqprox: term %q: document %d after %d", w.text, doc, w.lastDoc))
	}

	w.df++
	if w.df%w.terms.SkipInterval() == 0 {
		w.skip.SetSkipData(w.lastDoc, w.storePayloads, w.lastPayloadLength)
		w.skip.BufferSkip(w.df)
	}

	delta := doc - w.lastDoc
	switch {
	case w.omitTF:
		w.freqOut.WriteVInt(delta)
	case freq == 1:
		w.freqOut.WriteVInt(delta<<1 | 1)
		w.pendingPositions = 1
	default:
		w.freqOut.WriteVInt(delta << 1)
		w.freqOut.WriteVInt(freq)
		w.pendingPositions = freq
	}
	w.lastDoc = doc
}

// AddPosition adds the next position of the current document as a delta
// to the previous one (to 0 for the first).
func (w *PostingsWriter) AddPosition(delta int, payload []byte) error {
	if w.omitTF {
		return nil
	}
	if w.proxOut == nil {
		return fmt.Errorf("positions without a .prx file")
	}
	if w.pendingPositions == 0 {
		panic(fmt.Sprintf("freqprox: term %q: too many positions in document %d", w.text, w.lastDoc))
	}
	w.pendingPositions--

	if !w.storePayloads {
		w.proxOut.WriteVInt(delta)
		return nil
	}
	if len(payload) != w.lastPayloadLength {
		w.proxOut.WriteVInt(delta<<1 | 1)
		w.proxOut.WriteVInt(len(payload))
		w.lastPayloadLength = len(payload)
	} else {
		w.proxOut.WriteVInt(delta << 1)
	}
	if len(payload) > 0 {
		w.proxOut.WriteBytes(payload)
	}
	return nil
}

// FinishTerm writes the skip data and the dictionary entry of the current
// term. A term without documents is dropped.
func (w *PostingsWriter) FinishTerm() error {
	if w.field == nil {
		return nil
	}
	field := w.field
	w.field = nil
	if w.pendingPositions > 0 {
		panic(fmt.Sprintf("freqprox: term %q: %d positions of document %d missing", w.text, w.pendingPositions, w.lastDoc))
	}
	if w.df == 0 {
		return nil
	}

	skipPointer := w.skip.WriteSkip(w.freqOut)
	w.checkpoints += w.skip.Checkpoints()
	if err := errors.Join(w.freqOut.Err(), w.proxErr()); err != nil {
		return err
	}
	return w.terms.Add(field.Number, w.text, terminfo.TermInfo{
		DocFreq:     w.df,
		FreqPointer: w.freqPointer,
		ProxPointer: w.proxPointer,
		SkipOffset:  int(skipPointer - w.freqPointer),
	})
}

func (w *PostingsWriter) proxErr() error {
	if w.proxOut == nil {
		return nil
	}
	return w.proxOut.Err()
}

// Abort discards everything written.
func (w *PostingsWriter) Abort() {
	if w.freqOut != nil {
		_ = w.freqOut.Abort()
	}
	if w.proxOut != nil {
		_ = w.proxOut.Abort()
	}
	if w.terms != nil {
		w.terms.Abort()
	}
}

// Close finishes the files.
func (w *PostingsWriter) Close() (*FlushResult, error) {
	if err := w.FinishTerm(); err != nil {
		w.Abort()
		return nil, err
	}
	res := &FlushResult{
		Files:       []string{FreqFileName(w.state.Segment)},
		NumTerms:    w.terms.Size(),
		Checkpoints: w.checkpoints,
	}
	errs := []error{w.freqOut.Close()}
	if w.proxOut != nil {
		errs = append(errs, w.proxOut.Close())
		res.Files = append(res.Files, ProxFileName(w.state.Segment))
	}
	errs = append(errs, w.terms.Close())
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	res.Files = append(res.Files, w.terms.Files()...)
	return res, nil
}
