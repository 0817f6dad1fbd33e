package termdex_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hupe1980/termdex"
	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/index"
	"github.com/hupe1980/termdex/internal/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func textDoc(fields ...string) *termdex.Document {
	doc := termdex.NewDocument()
	for i := 0; i+1 < len(fields); i += 2 {
		doc.AddText(fields[i], fields[i+1])
	}
	return doc
}

func openWriter(t *testing.T, bs blobstore.BlobStore, opts ...termdex.Option) *termdex.Writer {
	t.Helper()
	w, err := termdex.Open(context.Background(), bs, opts...)
	require.NoError(t, err)
	return w
}

func openReader(t *testing.T, w *termdex.Writer) *index.DirectoryReader {
	t.Helper()
	r, err := w.OpenReader(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func termDocs(t *testing.T, r *index.DirectoryReader, field, text string) []int {
	t.Helper()
	td, err := r.TermDocs(termdex.NewTerm(field, text))
	require.NoError(t, err)
	var docs []int
	for td.Next() {
		docs = append(docs, td.Doc())
	}
	require.NoError(t, td.Err())
	require.NoError(t, td.Close())
	return docs
}

func TestWriter_AddCommitRead(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "apple banana", "title", "fruit")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "banana cherry banana")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "cherry")))
	assert.Equal(t, 3, w.NumRAMDocs())
	assert.Equal(t, 3, w.MaxDoc())

	// Not visible before the commit.
	r := openReader(t, w)
	assert.Equal(t, 0, r.MaxDoc())

	require.NoError(t, w.Commit(ctx))
	assert.Equal(t, 0, w.NumRAMDocs())
	assert.Equal(t, 1, w.NumSegments())

	r = openReader(t, w)
	assert.Equal(t, 3, r.NumDocs())
	assert.Equal(t, []int{0, 1}, termDocs(t, r, "body", "banana"))
	assert.Equal(t, []int{1, 2}, termDocs(t, r, "body", "cherry"))
	assert.Equal(t, []int{0}, termDocs(t, r, "title", "fruit"))
	assert.Empty(t, termDocs(t, r, "body", "fruit"))

	td, err := r.TermDocs(termdex.NewTerm("body", "banana"))
	require.NoError(t, err)
	require.True(t, td.SkipTo(1))
	assert.Equal(t, 2, td.Freq())
	require.NoError(t, td.Close())

	require.NoError(t, w.Close(ctx))
}

func TestWriter_DeleteDocumentsWatermark(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x one")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "y two")))
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "x")))
	// Added after the delete: survives.
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x three")))
	require.NoError(t, w.Commit(ctx))

	r := openReader(t, w)
	assert.Equal(t, 3, r.MaxDoc())
	assert.Equal(t, 2, r.NumDocs())
	assert.True(t, r.IsDeleted(0))
	assert.Equal(t, []int{2}, termDocs(t, r, "body", "x"))

	// Deleting a term no document holds is a no-op.
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "absent")))
	require.NoError(t, w.Commit(ctx))
	r = openReader(t, w)
	assert.Equal(t, 2, r.NumDocs())
}

func TestWriter_DeleteAcrossFlushes(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore(), termdex.WithCompoundFile(false))

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x a")))
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x b")))
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "x")))
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x c")))
	require.NoError(t, w.Commit(ctx))
	assert.Equal(t, 3, w.NumSegments())

	r := openReader(t, w)
	assert.Equal(t, 1, r.NumDocs())
	assert.Equal(t, []int{2}, termDocs(t, r, "body", "x"))
}

func TestWriter_UpdateDocument(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())

	require.NoError(t, w.AddDocument(ctx, textDoc("id", "a", "body", "first version")))
	require.NoError(t, w.AddDocument(ctx, textDoc("id", "b", "body", "other")))
	require.NoError(t, w.UpdateDocument(ctx, termdex.NewTerm("id", "a"), textDoc("id", "a", "body", "second version")))
	require.NoError(t, w.Commit(ctx))

	r := openReader(t, w)
	assert.Equal(t, 2, r.NumDocs())
	assert.Equal(t, []int{2}, termDocs(t, r, "id", "a"))
	assert.Empty(t, termDocs(t, r, "body", "first"))
	assert.Equal(t, []int{2}, termDocs(t, r, "body", "version"))
}

func TestWriter_DeleteByQuery(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "apple banana")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "apple")))
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "banana apple cherry")))
	require.NoError(t, w.DeleteByQuery(ctx, termdex.MatchAllTerms(
		termdex.NewTerm("body", "banana"),
		termdex.NewTerm("body", "apple"),
	)))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "apple banana")))
	require.NoError(t, w.Commit(ctx))

	r := openReader(t, w)
	assert.Equal(t, 2, r.NumDocs())
	assert.Equal(t, []int{1, 3}, termDocs(t, r, "body", "apple"))
}

func TestMatchAllTerms_Key(t *testing.T) {
	a := termdex.MatchAllTerms(termdex.NewTerm("f", "x"), termdex.NewTerm("f", "y"))
	b := termdex.MatchAllTerms(termdex.NewTerm("f", "y"), termdex.NewTerm("f", "x"), termdex.NewTerm("f", "y"))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "all(f:x,f:y)", a.Key())
}

func TestWriter_FailedDocumentIsDeleted(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "good")))
	bad := termdex.NewDocument()
	bad.AddTokens("body",
		termdex.Token{Text: "bad", PositionIncrement: 1},
		termdex.Token{Text: "worse", PositionIncrement: -1},
	)
	err := w.AddDocument(ctx, bad)
	require.ErrorIs(t, err, termdex.ErrInvalidArgument)
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "good again")))
	assert.Equal(t, 3, w.MaxDoc())

	require.NoError(t, w.Commit(ctx))
	r := openReader(t, w)
	assert.Equal(t, 3, r.MaxDoc())
	assert.Equal(t, 2, r.NumDocs())
	assert.True(t, r.IsDeleted(1))
	assert.Equal(t, []int{0, 2}, termDocs(t, r, "body", "good"))
}

func TestWriter_ForceMergeRemapsBufferedDeletes(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	w := openWriter(t, bs)

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "a x")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "b")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "c x")))
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "b")))
	require.NoError(t, w.Commit(ctx))

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "d")))
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "x")))
	assert.Equal(t, 2, w.NumSegments())

	require.NoError(t, w.ForceMerge(ctx))
	assert.Equal(t, 1, w.NumSegments())
	assert.Equal(t, 4, w.MaxDoc())

	// Added after the delete: survives it.
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x")))
	require.NoError(t, w.Commit(ctx))

	r := openReader(t, w)
	assert.Equal(t, 5, r.MaxDoc())
	assert.Equal(t, 2, r.NumDocs())
	assert.Equal(t, []int{4}, termDocs(t, r, "body", "x"))
	assert.Equal(t, []int{3}, termDocs(t, r, "body", "d"))
	assert.Empty(t, termDocs(t, r, "body", "b"))

	// Files of the merged segments are gone.
	files, err := w.Directory().ListAll(ctx)
	require.NoError(t, err)
	for _, f := range files {
		assert.False(t, strings.HasPrefix(f, "_0"), f)
		assert.False(t, strings.HasPrefix(f, "_1"), f)
	}
}

func TestWriter_ForceMergeAllDeleted(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "x y")))
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "x")))
	require.NoError(t, w.Commit(ctx))

	require.NoError(t, w.ForceMerge(ctx))
	assert.Equal(t, 0, w.NumSegments())
	assert.Equal(t, 0, w.MaxDoc())
	require.NoError(t, w.Commit(ctx))

	r := openReader(t, w)
	assert.Equal(t, 0, r.MaxDoc())
}

func TestWriter_AutoFlush(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore(), termdex.WithRAMBufferSize(1))

	for i := range 3 {
		require.NoError(t, w.AddDocument(ctx, textDoc("body", fmt.Sprintf("doc %d", i))))
		assert.Equal(t, 0, w.NumRAMDocs())
	}
	assert.Equal(t, 3, w.NumSegments())

	require.NoError(t, w.Commit(ctx))
	r := openReader(t, w)
	assert.Equal(t, []int{0, 1, 2}, termDocs(t, r, "body", "doc"))
}

func TestWriter_Concurrent(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore(), termdex.WithMaxThreadStates(3))

	const workers, perWorker = 8, 25
	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error {
			for j := range perWorker {
				doc := textDoc("body", "shared", "id", fmt.Sprintf("w%d-%d", i, j))
				if err := w.AddDocument(gctx, doc); err != nil {
					return err
				}
				if j == perWorker/2 && i%2 == 0 {
					if err := w.Flush(gctx); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, w.Commit(ctx))

	r := openReader(t, w)
	assert.Equal(t, workers*perWorker, r.NumDocs())
	assert.Len(t, termDocs(t, r, "body", "shared"), workers*perWorker)
	assert.Len(t, termDocs(t, r, "id", "w3-7"), 1)
}

func TestWriter_ReopenReader(t *testing.T) {
	ctx := context.Background()
	metrics := &termdex.BasicMetricsCollector{}
	w := openWriter(t, blobstore.NewMemoryStore(), termdex.WithMetricsCollector(metrics))

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "a")))
	require.NoError(t, w.Commit(ctx))
	r, err := w.OpenReader(ctx)
	require.NoError(t, err)

	same, err := w.ReopenReader(ctx, r)
	require.NoError(t, err)
	assert.Same(t, r, same)

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "a")))
	require.NoError(t, w.Commit(ctx))
	nr, err := w.ReopenReader(ctx, r)
	require.NoError(t, err)
	require.NotSame(t, r, nr)
	assert.Equal(t, 2, nr.NumDocs())
	assert.Equal(t, 1, r.NumDocs())

	require.NoError(t, r.Close())
	require.NoError(t, nr.Close())
	assert.Equal(t, int64(2), metrics.GetStats().ReopenCount)
}

func TestWriter_CloseCommitsAndReopens(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	w := openWriter(t, bs)

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "persisted")))
	require.NoError(t, w.Close(ctx))
	require.NoError(t, w.Close(ctx))

	require.ErrorIs(t, w.AddDocument(ctx, textDoc("body", "late")), termdex.ErrClosed)
	require.ErrorIs(t, w.Commit(ctx), termdex.ErrClosed)
	_, err := w.OpenReader(ctx)
	require.ErrorIs(t, err, termdex.ErrClosed)

	w = openWriter(t, bs)
	assert.Equal(t, 1, w.MaxDoc())
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "persisted too")))
	require.NoError(t, w.Close(ctx))

	w = openWriter(t, bs)
	r := openReader(t, w)
	assert.Equal(t, []int{0, 1}, termDocs(t, r, "body", "persisted"))
	require.NoError(t, w.Close(ctx))
}

func TestWriter_Abort(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())

	require.NoError(t, w.AddDocument(ctx, textDoc("body", "kept")))
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "dropped")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "dropped")))
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "kept")))

	assert.Equal(t, 2, w.Abort(ctx))
	assert.Equal(t, 0, w.NumRAMDocs())
	require.NoError(t, w.Commit(ctx))

	r := openReader(t, w)
	assert.Equal(t, 1, r.NumDocs())
	assert.Empty(t, termDocs(t, r, "body", "dropped"))
}

func TestWriter_LocalCompound(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w, err := termdex.OpenPath(ctx, dir,
		termdex.WithCompoundFile(true),
		termdex.WithSkipInterval(4),
		termdex.WithTermIndexInterval(8),
		termdex.WithBloomFalsePositiveRate(0.01),
		termdex.WithVerifyChecksums(2),
	)
	require.NoError(t, err)

	for i := range 50 {
		require.NoError(t, w.AddDocument(ctx, textDoc("body", fmt.Sprintf("common t%d", i%7))))
	}
	require.NoError(t, w.Commit(ctx))

	files, err := blobstore.NewLocalStore(dir).List(ctx, "_")
	require.NoError(t, err)
	assert.Equal(t, []string{"_0.cfs"}, files)

	r := openReader(t, w)
	td, err := r.TermDocs(termdex.NewTerm("body", "common"))
	require.NoError(t, err)
	require.True(t, td.SkipTo(37))
	assert.Equal(t, 37, td.Doc())
	require.NoError(t, td.Close())
	assert.Equal(t, []int{3, 10, 17, 24, 31, 38, 45}, termDocs(t, r, "body", "t3"))
	require.NoError(t, w.Close(ctx))
}

func TestWriter_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := &termdex.BasicMetricsCollector{}
	w := openWriter(t, blobstore.NewMemoryStore(),
		termdex.WithMetricsCollector(metrics),
		termdex.WithLogger(termdex.NoopLogger()),
	)

	long := termdex.NewDocument()
	long.AddTokens("body",
		termdex.Token{Text: strings.Repeat("z", arena.CharBlockSize), PositionIncrement: 1},
		termdex.Token{Text: "short", PositionIncrement: 1},
	)
	require.NoError(t, w.AddDocument(ctx, long))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "short")))
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "short")))
	require.NoError(t, w.DeleteByQuery(ctx, termdex.MatchAllTerms(termdex.NewTerm("body", "short"))))
	require.NoError(t, w.Commit(ctx))

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.AddCount)
	assert.Equal(t, int64(1), stats.SkippedTerms)
	assert.Equal(t, int64(1), stats.FlushCount)
	assert.Equal(t, int64(2), stats.FlushedDocs)
	assert.Positive(t, stats.FlushedBytes)
	assert.Equal(t, int64(1), stats.DeleteTerms)
	assert.Equal(t, int64(1), stats.DeleteQueries)
	assert.Equal(t, int64(1), stats.CommitCount)
	assert.Equal(t, int64(2), stats.DeletedDocs)
}

func TestOpen_InvalidOptions(t *testing.T) {
	_, err := termdex.Open(context.Background(), blobstore.NewMemoryStore(), termdex.WithSkipInterval(1))
	require.ErrorIs(t, err, termdex.ErrInvalidArgument)
}
