package index

import (
	"context"
	"testing"

	"github.com/hupe1980/termdex/internal/docwriter"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/internal/terminfo"
	"github.com/hupe1980/termdex/model"
	"github.com/hupe1980/termdex/store"
	"github.com/stretchr/testify/require"
)

// testIndex builds segments and commits them the way the writer does.
type testIndex struct {
	t        *testing.T
	dir      store.Directory
	infos    *manifest.SegmentInfos
	commits  *manifest.Store
	compound bool
}

func newTestIndex(t *testing.T) *testIndex {
	dir := store.NewRAMDirectory()
	return &testIndex{t: t, dir: dir, infos: manifest.New(), commits: manifest.NewStore(dir)}
}

// addSegment flushes one segment with a "body" field per text.
func (ti *testIndex) addSegment(texts ...string) *manifest.SegmentInfo {
	docs := make([]*model.Document, len(texts))
	for i, text := range texts {
		docs[i] = model.NewDocument()
		docs[i].AddText("body", text)
	}
	return ti.addDocs(docs...)
}

func (ti *testIndex) addDocs(docs ...*model.Document) *manifest.SegmentInfo {
	ti.t.Helper()
	w := docwriter.New(docwriter.Config{
		Dir:             ti.dir,
		UseCompoundFile: ti.compound,
		Terms:           terminfo.Options{SkipInterval: 4, IndexInterval: 8},
	})
	for _, doc := range docs {
		_, err := w.AddDocument(doc)
		require.NoError(ti.t, err)
	}
	info, err := w.Flush(context.Background(), ti.infos.NewSegmentName())
	require.NoError(ti.t, err)
	ti.infos.Segments = append(ti.infos.Segments, info)
	return info
}

func (ti *testIndex) commit() {
	ti.t.Helper()
	require.NoError(ti.t, ti.commits.Commit(context.Background(), ti.infos))
}

// load replaces the local segment list by the latest commit.
func (ti *testIndex) load() {
	ti.t.Helper()
	infos, err := ti.commits.Load(context.Background())
	require.NoError(ti.t, err)
	ti.infos = infos
}

func (ti *testIndex) open(opts ...Option) *DirectoryReader {
	ti.t.Helper()
	r, err := Open(context.Background(), ti.dir, opts...)
	require.NoError(ti.t, err)
	return r
}

func docs(t *testing.T, td TermDocs) []int {
	t.Helper()
	defer td.Close()
	var out []int
	for td.Next() {
		out = append(out, td.Doc())
	}
	require.NoError(t, td.Err())
	return out
}

func termDocs(t *testing.T, r interface {
	TermDocs(model.Term) (TermDocs, error)
}, field, text string) []int {
	t.Helper()
	td, err := r.TermDocs(model.NewTerm(field, text))
	require.NoError(t, err)
	return docs(t, td)
}
