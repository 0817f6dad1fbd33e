package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/freqprox"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/internal/norms"
	"github.com/hupe1980/termdex/internal/terminfo"
	"github.com/hupe1980/termdex/store"
)

// MergeConfig configures MergeSegments.
type MergeConfig struct {
	Terms           terminfo.Options
	UseCompoundFile bool
	Logger          *slog.Logger
}

// MergeResult describes a merged segment.
type MergeResult struct {
	// Info is nil when every document of the sources was deleted.
	Info *manifest.SegmentInfo
	// DocMaps maps the documents of each source to their position among
	// the live documents of that source, -1 for deleted ones. Nil for
	// sources without deletions.
	DocMaps [][]int
	// DelCounts holds the deletions of each source that were dropped.
	DelCounts []int
}

// mergeSource is one input segment with its deletions frozen.
type mergeSource struct {
	sr      *SegmentReader
	deleted *roaring.Bitmap
	docMap  []int
	base    int
}

// MergeSegments writes the live documents of subs, in order, as segment.
// The sources are only read.
func MergeSegments(ctx context.Context, dir store.Directory, segment string, subs []*SegmentReader, cfg MergeConfig) (_ *MergeResult, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	res := &MergeResult{
		DocMaps:   make([][]int, len(subs)),
		DelCounts: make([]int, len(subs)),
	}
	fis := fieldinfo.New()
	sources := make([]*mergeSource, len(subs))
	numDocs := 0
	for i, sr := range subs {
		for _, fi := range sr.core.fieldInfos.All() {
			fis.Add(fi.Name, fi.Flags)
		}
		src := &mergeSource{sr: sr, deleted: sr.deletedSnapshot(), base: numDocs}
		live := sr.MaxDoc()
		if src.deleted != nil && !src.deleted.IsEmpty() {
			src.docMap = make([]int, sr.MaxDoc())
			live = 0
			for doc := range src.docMap {
				if src.deleted.Contains(uint32(doc)) {
					src.docMap[doc] = -1
					res.DelCounts[i]++
					continue
				}
				src.docMap[doc] = live
				live++
			}
		}
		numDocs += live
		res.DocMaps[i] = src.docMap
		sources[i] = src
	}
	if numDocs == 0 {
		return res, nil
	}

	var written []string
	defer func() {
		if err != nil {
			for _, f := range written {
				_ = dir.DeleteFile(ctx, f)
			}
		}
	}()

	pw, err := freqprox.NewPostingsWriter(ctx, freqprox.FlushState{
		Dir:        dir,
		Segment:    segment,
		NumDocs:    numDocs,
		FieldInfos: fis,
		Terms:      cfg.Terms,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if err := mergeTerms(pw, fis, sources); err != nil {
		pw.Abort()
		return nil, fmt.Errorf("merge %s: %w", segment, err)
	}
	flushed, err := pw.Close()
	if err != nil {
		return nil, err
	}
	written = append(written, flushed.Files...)

	if fis.HasNorms() {
		if err := mergeNorms(ctx, dir, segment, fis, numDocs, sources); err != nil {
			return nil, err
		}
		written = append(written, norms.FileName(segment, 0))
	}

	if err := fis.Write(ctx, dir, segment); err != nil {
		return nil, err
	}
	written = append(written, fieldinfo.FileName(segment))

	if cfg.UseCompoundFile {
		cfs, err := store.PackCompound(ctx, dir, segment, written)
		if err != nil {
			return nil, err
		}
		written = []string{cfs}
	}

	info := &manifest.SegmentInfo{
		Name:            segment,
		DocCount:        numDocs,
		UseCompoundFile: cfg.UseCompoundFile,
		HasProx:         fis.HasProx(),
		CoreFiles:       written,
	}
	info.Stats.NumTerms = flushed.NumTerms
	for _, f := range written {
		n, err := dir.FileLength(ctx, f)
		if err != nil {
			return nil, err
		}
		info.Stats.SizeBytes += n
	}
	res.Info = info

	logger.Info("segments merged",
		"segment", segment,
		"sources", len(subs),
		"docs", numDocs,
		"terms", flushed.NumTerms,
	)
	return res, nil
}

// mergeTerms walks the union of the source dictionaries and rewrites the
// postings of every term with remapped doc IDs.
func mergeTerms(pw *freqprox.PostingsWriter, fis *fieldinfo.FieldInfos, sources []*mergeSource) error {
	dicts := make([]*terminfo.Enum, len(sources))
	enums := make([]TermEnum, len(sources))
	for i, src := range sources {
		dicts[i] = src.sr.core.terms.Terms()
		enums[i] = dicts[i]
	}
	terms := newMultiTermEnum(enums)
	defer terms.Close()

	var payload []byte
	for terms.Next() {
		t := terms.Term()
		fi, ok := fis.ByName(t.Field)
		if !ok {
			return fmt.Errorf("term %s of unknown field", t)
		}
		pw.StartTerm(fi, []byte(t.Text))

		for _, s := range terms.matching {
			src := sources[s.index]
			srcField, _ := src.sr.core.fieldInfos.ByName(t.Field)
			stp := &segmentTermPositions{sr: src.sr, deleted: src.deleted, positions: true}
			stp.seek(srcField, dicts[s.index].TermInfo())

			for stp.Next() {
				doc := stp.Doc()
				if src.docMap != nil {
					doc = src.docMap[doc]
				}
				doc += src.base
				freq := stp.Freq()
				pw.AddDoc(doc, freq)
				if !srcField.HasProx() || !fi.HasProx() {
					continue
				}
				last := 0
				for j := 0; j < freq; j++ {
					pos := stp.NextPosition()
					var p []byte
					if stp.IsPayloadAvailable() {
						var err error
						if payload, err = stp.Payload(payload[:0]); err != nil {
							_ = stp.Close()
							return err
						}
						p = payload
					}
					if err := pw.AddPosition(pos-last, p); err != nil {
						_ = stp.Close()
						return err
					}
					last = pos
				}
			}
			if err := errors.Join(stp.Err(), stp.Close()); err != nil {
				return err
			}
		}

		if err := pw.FinishTerm(); err != nil {
			return err
		}
	}
	return terms.Err()
}

func mergeNorms(ctx context.Context, dir store.Directory, segment string, fis *fieldinfo.FieldInfos, numDocs int, sources []*mergeSource) error {
	var loadErr error
	err := norms.Write(ctx, dir, norms.FileName(segment, 0), fis, numDocs, func(field int) []byte {
		name := fis.Name(field)
		merged := make([]byte, 0, numDocs)
		for _, src := range sources {
			b := make([]byte, src.sr.MaxDoc())
			if err := src.sr.NormsInto(name, b); err != nil {
				loadErr = errors.Join(loadErr, err)
				return nil
			}
			if src.docMap == nil {
				merged = append(merged, b...)
				continue
			}
			for doc, v := range b {
				if src.docMap[doc] >= 0 {
					merged = append(merged, v)
				}
			}
		}
		return merged
	})
	return errors.Join(loadErr, err)
}
