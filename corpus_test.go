package termdex_test

import (
	"context"
	"testing"

	"github.com/hupe1980/termdex"
	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/index"
	"github.com/hupe1980/termdex/testutil"
	"github.com/stretchr/testify/require"
)

func readPostings(t *testing.T, r *index.DirectoryReader, field, text string) []testutil.Posting {
	t.Helper()
	tp, err := r.TermPositions(termdex.NewTerm(field, text))
	require.NoError(t, err)
	var out []testutil.Posting
	for tp.Next() {
		p := testutil.Posting{Doc: tp.Doc()}
		for range tp.Freq() {
			p.Positions = append(p.Positions, tp.NextPosition())
		}
		out = append(out, p)
	}
	require.NoError(t, tp.Err())
	require.NoError(t, tp.Close())
	return out
}

func requireCorpus(t *testing.T, r *index.DirectoryReader, c *testutil.Corpus, deleted map[int]bool) {
	t.Helper()
	want := c.Postings(func(doc int) bool { return !deleted[doc] })
	require.Equal(t, len(c.Docs), r.MaxDoc())
	require.Equal(t, len(c.Docs)-len(deleted), r.NumDocs())
	for _, word := range c.Words() {
		require.Equal(t, want[word], readPostings(t, r, "body", word), "term %s", word)
	}
}

func TestWriter_RandomCorpus(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(4711)
	vocab := testutil.Vocabulary(300)
	corpus := rng.Corpus(600, vocab, 1, 40, 1.1)

	w := openWriter(t, blobstore.NewMemoryStore(),
		termdex.WithSkipInterval(4),
		termdex.WithMaxSkipLevels(3),
		termdex.WithTermIndexInterval(8),
	)
	for i := range corpus.Docs {
		require.NoError(t, w.AddDocument(ctx, textDoc("body", corpus.Text(i))))
		if i%150 == 149 {
			require.NoError(t, w.Flush(ctx))
		}
	}

	deleted := make(map[int]bool)
	for _, word := range []string{vocab[7], vocab[123], vocab[250]} {
		require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", word)))
		for i := range corpus.Docs {
			if corpus.Contains(i, word) {
				deleted[i] = true
			}
		}
	}
	require.NoError(t, w.Commit(ctx))
	require.Equal(t, 4, w.NumSegments())

	r := openReader(t, w)
	requireCorpus(t, r, corpus, deleted)

	require.NoError(t, w.ForceMerge(ctx))
	require.NoError(t, w.Commit(ctx))
	require.Equal(t, 1, w.NumSegments())

	merged := openReader(t, w)
	compact := &testutil.Corpus{}
	compactDeleted := make(map[int]bool)
	for i, words := range corpus.Docs {
		if !deleted[i] {
			compact.Docs = append(compact.Docs, words)
		}
	}
	requireCorpus(t, merged, compact, compactDeleted)
}
