package freqprox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/termshash"
	"github.com/hupe1980/termdex/internal/terminfo"
	"github.com/hupe1980/termdex/store"
)

const (
	// FreqExtension is the extension of the doc/freq file.
	FreqExtension = "frq"
	// ProxExtension is the extension of the position file.
	ProxExtension = "prx"
)

// FreqFileName returns the .frq file of a segment.
func FreqFileName(segment string) string { return segment + "." + FreqExtension }

// ProxFileName returns the .prx file of a segment.
func ProxFileName(segment string) string { return segment + "." + ProxExtension }

// FlushState describes the segment being written.
type FlushState struct {
	Dir        store.Directory
	Segment    string
	NumDocs    int
	FieldInfos *fieldinfo.FieldInfos
	Terms      terminfo.Options
	Logger     *slog.Logger
}

// FlushResult summarizes a flush.
type FlushResult struct {
	Files       []string
	NumTerms    int64
	Checkpoints int
}

// Flush writes the postings buffered in fields, which may belong to any
// number of threads, as the .frq, .prx and dictionary files of a segment.
// Every consumer is reset afterwards, also on error.
func Flush(ctx context.Context, fields []*PerField, state FlushState) (*FlushResult, error) {
	logger := state.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var all []*PerField
	for _, f := range fields {
		if f.NumPostings() > 0 {
			all = append(all, f)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].fieldInfo.Name < all[j].fieldInfo.Name
	})
	defer func() {
		for _, f := range fields {
			f.reset()
		}
	}()

	pw, err := NewPostingsWriter(ctx, state)
	if err != nil {
		return nil, err
	}
	w := &segmentWriter{PostingsWriter: pw}

	for start := 0; start < len(all); {
		fi := all[start].fieldInfo
		end := start + 1
		for end < len(all) && all[end].fieldInfo.Name == fi.Name {
			end++
		}
		group := all[start:end]
		for _, f := range group {
			if f.hasPayloads {
				state.FieldInfos.SetStorePayloads(fi.Number)
			}
		}
		if err := w.appendPostings(group); err != nil {
			w.Abort()
			return nil, fmt.Errorf("flush field %q of %s: %w", fi.Name, state.Segment, err)
		}
		start = end
	}

	res, err := w.Close()
	if err != nil {
		return nil, err
	}
	logger.Debug("postings flushed",
		"segment", state.Segment,
		"docs", state.NumDocs,
		"terms", res.NumTerms,
		"fields", len(all),
	)
	return res, nil
}

type segmentWriter struct {
	*PostingsWriter
	utf8    []byte
	payload []byte
}

// appendPostings merges the tables of one field across threads. Terms are
// picked by linear scan, as the number of threads is small; documents of a
// term are interleaved by doc ID.
func (w *segmentWriter) appendPostings(fields []*PerField) error {
	fi := fields[0].fieldInfo
	mergeStates := make([]*FieldMergeState, 0, len(fields))
	for _, f := range fields {
		s := NewFieldMergeState(f)
		if !s.NextTerm() {
			return fmt.Errorf("empty table: %w", s.Err())
		}
		mergeStates = append(mergeStates, s)
	}
	termStates := make([]*FieldMergeState, len(fields))

	for len(mergeStates) > 0 {
		termStates[0] = mergeStates[0]
		numToMerge := 1
		for _, s := range mergeStates[1:] {
			switch c := termshash.CompareText(s.text, termStates[0].text); {
			case c < 0:
				termStates[0] = s
				numToMerge = 1
			case c == 0:
				termStates[numToMerge] = s
				numToMerge++
			}
		}

		w.utf8 = termshash.AppendUTF8(w.utf8[:0], termStates[0].text)
		w.StartTerm(fi, w.utf8)

		for numToMerge > 0 {
			minState := termStates[0]
			for _, s := range termStates[1:numToMerge] {
				if s.docID < minState.docID {
					minState = s
				}
			}

			w.AddDoc(minState.docID, minState.termFreq)
			if !w.omitTF {
				if err := w.copyPositions(minState); err != nil {
					return err
				}
			}

			if minState.NextDoc() {
				continue
			}
			if err := minState.Err(); err != nil {
				return err
			}
			termStates = removeState(termStates[:numToMerge], minState)
			termStates = termStates[:cap(termStates)]
			numToMerge--

			if !minState.NextTerm() {
				if err := minState.Err(); err != nil {
					return err
				}
				mergeStates = removeState(mergeStates, minState)
			}
		}

		if err := w.FinishTerm(); err != nil {
			return err
		}
	}
	return nil
}

// copyPositions moves the in-memory positions of the current document of
// s to the writer.
func (w *segmentWriter) copyPositions(s *FieldMergeState) error {
	prox := s.Prox()
	for j := 0; j < s.termFreq; j++ {
		code, err := prox.ReadVInt()
		if err != nil {
			return err
		}
		var payload []byte
		if code&1 != 0 {
			n, err := prox.ReadVInt()
			if err != nil {
				return err
			}
			if cap(w.payload) < n {
				w.payload = make([]byte, n)
			}
			payload = w.payload[:n]
			if err := prox.ReadBytes(payload); err != nil {
				return err
			}
		}
		if err := w.AddPosition(code>>1, payload); err != nil {
			return err
		}
	}
	return nil
}

func removeState(states []*FieldMergeState, s *FieldMergeState) []*FieldMergeState {
	upto := 0
	for _, st := range states {
		if st != s {
			states[upto] = st
			upto++
		}
	}
	if upto != len(states)-1 {
		panic("freqprox: merge state not found")
	}
	states[upto] = nil
	return states[:upto]
}
