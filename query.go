package termdex

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/termdex/index"
)

// DocMatcher selects the documents a delete-by-query removes. Matchers
// with equal keys are treated as the same query.
type DocMatcher interface {
	Key() string
	// Match calls fn for every live document of sr that matches, in
	// increasing order.
	Match(ctx context.Context, sr *index.SegmentReader, fn func(doc int)) error
}

type allTermsMatcher struct {
	terms []Term
	key   string
}

// MatchAllTerms matches the documents that contain every one of terms.
func MatchAllTerms(terms ...Term) DocMatcher {
	sorted := slices.Clone(terms)
	slices.SortFunc(sorted, Term.Compare)
	sorted = slices.Compact(sorted)

	keys := make([]string, len(sorted))
	for i, t := range sorted {
		keys[i] = t.String()
	}
	return &allTermsMatcher{
		terms: sorted,
		key:   "all(" + strings.Join(keys, ",") + ")",
	}
}

func (m *allTermsMatcher) Key() string { return m.key }

func (m *allTermsMatcher) Match(ctx context.Context, sr *index.SegmentReader, fn func(doc int)) error {
	if len(m.terms) == 0 {
		return nil
	}
	var acc *roaring.Bitmap
	for _, t := range m.terms {
		if err := ctx.Err(); err != nil {
			return err
		}
		docs, err := termDocSet(sr, t)
		if err != nil {
			return err
		}
		if acc == nil {
			acc = docs
		} else {
			acc.And(docs)
		}
		if acc.IsEmpty() {
			return nil
		}
	}
	it := acc.Iterator()
	for it.HasNext() {
		fn(int(it.Next()))
	}
	return nil
}

func termDocSet(sr *index.SegmentReader, t Term) (*roaring.Bitmap, error) {
	td, err := sr.TermDocs(t)
	if err != nil {
		return nil, err
	}
	docs := roaring.New()
	for td.Next() {
		docs.Add(uint32(td.Doc()))
	}
	return docs, errors.Join(td.Err(), td.Close())
}
