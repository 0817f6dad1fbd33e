package index

import (
	"context"
	"testing"

	"github.com/hupe1980/termdex/internal/deletes"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/internal/norms"
	"github.com/hupe1980/termdex/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSegments(t *testing.T) {
	ctx := context.Background()
	ti := threeSegments(t)
	r := ti.open()
	defer r.Close()

	// "banana cherry" and "date"
	require.NoError(t, r.Delete(1))
	require.NoError(t, r.Delete(6))

	subs := r.SegmentReaders()
	res, err := MergeSegments(ctx, ti.dir, "_m", subs, MergeConfig{})
	require.NoError(t, err)
	require.NotNil(t, res.Info)

	assert.Equal(t, 7, res.Info.DocCount)
	assert.Equal(t, []int{1, 0, 1}, res.DelCounts)
	assert.Equal(t, [][]int{{0, -1, 1}, nil, {0, -1, 1, 2}}, res.DocMaps)
	assert.True(t, res.Info.HasProx)
	assert.Equal(t, int64(4), res.Info.Stats.NumTerms)

	merged, err := OpenSegment(ctx, ti.dir, res.Info)
	require.NoError(t, err)
	defer merged.Close()

	assert.Equal(t, []int{0, 1, 3, 5}, termDocs(t, merged, "body", "apple"))
	assert.Equal(t, []int{0, 4}, termDocs(t, merged, "body", "banana"))
	assert.Equal(t, []int{2, 3, 6}, termDocs(t, merged, "body", "cherry"))
	assert.Equal(t, []int{5}, termDocs(t, merged, "body", "date"))

	df, err := merged.DocFreq(model.NewTerm("body", "banana"))
	require.NoError(t, err)
	assert.Equal(t, 2, df)

	b, err := merged.Norms("body")
	require.NoError(t, err)
	one, two := norms.EncodeNorm(norms.LengthNorm(1)), norms.EncodeNorm(norms.LengthNorm(2))
	assert.Equal(t, []byte{two, one, one, two, one, two, one}, b)
}

func TestMergeSegments_PayloadsAndSkips(t *testing.T) {
	ctx := context.Background()
	ti := newTestIndex(t)

	build := func(n int) []*model.Document {
		docs := make([]*model.Document, n)
		for i := range docs {
			docs[i] = model.NewDocument()
			docs[i].AddTokens("f",
				model.Token{Text: "x", PositionIncrement: 1, Payload: []byte{byte(i)}},
				model.Token{Text: "x", PositionIncrement: 2},
			)
		}
		return docs
	}
	ti.addDocs(build(30)...)
	ti.addDocs(build(25)...)
	ti.commit()

	r := ti.open()
	defer r.Close()
	res, err := MergeSegments(ctx, ti.dir, "_m", r.SegmentReaders(), MergeConfig{UseCompoundFile: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"_m.cfs"}, res.Info.CoreFiles)

	merged, err := OpenSegment(ctx, ti.dir, res.Info)
	require.NoError(t, err)
	defer merged.Close()

	tp, err := merged.TermPositions(model.NewTerm("f", "x"))
	require.NoError(t, err)
	defer tp.Close()

	for _, target := range []int{3, 17, 29, 30, 41, 54} {
		require.True(t, tp.SkipTo(target))
		require.Equal(t, target, tp.Doc())
		require.Equal(t, 2, tp.Freq())
		assert.Equal(t, 0, tp.NextPosition())
		p, err := tp.Payload(nil)
		require.NoError(t, err)
		local := target
		if target >= 30 {
			local -= 30
		}
		assert.Equal(t, []byte{byte(local)}, p)
		assert.Equal(t, 2, tp.NextPosition())
		assert.False(t, tp.IsPayloadAvailable())
	}
	assert.False(t, tp.Next())
}

func TestMergeSegments_AllDeleted(t *testing.T) {
	ti := newTestIndex(t)
	ti.addSegment("gone")
	ti.commit()
	r := ti.open()
	defer r.Close()
	require.NoError(t, r.Delete(0))

	res, err := MergeSegments(context.Background(), ti.dir, "_m", r.SegmentReaders(), MergeConfig{})
	require.NoError(t, err)
	assert.Nil(t, res.Info)
	assert.Equal(t, []int{1}, res.DelCounts)
}

func TestMergeSegments_RemapsBufferedDeletes(t *testing.T) {
	ctx := context.Background()
	ti := threeSegments(t)
	ti.addSegment("tail", "end")
	ti.commit()
	r := ti.open()
	defer r.Close()
	require.NoError(t, r.Delete(3))

	subs := r.SegmentReaders()
	res, err := MergeSegments(ctx, ti.dir, "_m", subs[1:3], MergeConfig{})
	require.NoError(t, err)

	docCounts := make([]int, len(subs))
	for i, sub := range subs {
		docCounts[i] = sub.MaxDoc()
	}
	remapper, err := deletes.NewMergeDocIDRemapper(docCounts, 1, res.DocMaps, res.DelCounts, res.Info.DocCount)
	require.NoError(t, err)

	// doc 10 ("end") was buffered for deletion before the merge.
	buffered := deletes.New()
	buffered.AddDocID(2)
	buffered.AddDocID(10)
	buffered.Remap(remapper)
	assert.Equal(t, []int{2, 9}, buffered.DocIDs())

	infos := &manifest.SegmentInfos{Segments: []*manifest.SegmentInfo{subs[0].Info(), res.Info, subs[3].Info()}}
	nr, err := OpenSegments(ctx, ti.dir, infos)
	require.NoError(t, err)
	defer nr.Close()
	assert.Equal(t, []int{9}, termDocs(t, nr, "body", "end"))
}

func TestMergeSegments_RemapsIntoLaterSource(t *testing.T) {
	ctx := context.Background()
	ti := threeSegments(t)
	r := ti.open()
	defer r.Close()
	require.NoError(t, r.Delete(1))
	require.NoError(t, r.Delete(6))

	subs := r.SegmentReaders()
	res, err := MergeSegments(ctx, ti.dir, "_m", subs, MergeConfig{})
	require.NoError(t, err)

	remapper, err := deletes.NewMergeDocIDRemapper([]int{3, 2, 4}, 0, res.DocMaps, res.DelCounts, res.Info.DocCount)
	require.NoError(t, err)

	buffered := deletes.New()
	buffered.AddDocID(7)
	buffered.AddDocID(6)
	buffered.AddTerm(model.NewTerm("body", "cherry"), 8)
	buffered.Remap(remapper)
	assert.Equal(t, []int{5}, buffered.DocIDs())
	assert.Equal(t, 6, buffered.Terms()[0].DocIDUpto)

	merged, err := OpenSegment(ctx, ti.dir, res.Info)
	require.NoError(t, err)
	defer merged.Close()

	// Doc 7 ("apple date") is now doc 5 and doc 8 ("cherry") doc 6.
	assert.Equal(t, []int{5}, termDocs(t, merged, "body", "date"))
	assert.Equal(t, []int{2, 3, 6}, termDocs(t, merged, "body", "cherry"))
}
