package skiplist

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/hupe1980/termdex/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postings struct {
	docs        []int
	freqStarts  []int64
	proxStarts  []int64
	payloadLens []int
	skipPointer int64
	freq        []byte
	checkpoints int
}

// writePostings encodes docs the way the flush writer does: one doc delta
// per posting in the frequency stream, a checkpoint before every interval-th
// posting, and one VInt per posting in the position stream.
func writePostings(t *testing.T, docs []int, interval, maxLevels, docCount int, payloads bool) postings {
	t.Helper()
	freqOut := store.NewRAMOutput()
	proxOut := store.NewRAMOutput()
	w := NewWriter(interval, maxLevels, docCount, freqOut, proxOut)
	w.ResetSkip()

	p := postings{docs: docs}
	lastDoc, lastPayloadLen := 0, 0
	for i, doc := range docs {
		df := i + 1
		if df%interval == 0 {
			w.SetSkipData(lastDoc, payloads, lastPayloadLen)
			w.BufferSkip(df)
		}
		p.freqStarts = append(p.freqStarts, freqOut.FilePointer())
		p.proxStarts = append(p.proxStarts, proxOut.FilePointer())
		p.payloadLens = append(p.payloadLens, lastPayloadLen)
		freqOut.WriteVInt(doc - lastDoc)
		proxOut.WriteVInt(doc)
		if payloads && doc%7 == 0 {
			lastPayloadLen = doc % 5
		}
		lastDoc = doc
	}
	p.checkpoints = w.Checkpoints()
	p.skipPointer = w.WriteSkip(freqOut)
	require.NoError(t, freqOut.Err())
	p.freq = append([]byte(nil), freqOut.Bytes()...)
	return p
}

func ascendingDocs(r *rand.Rand, n int) []int {
	docs := make([]int, n)
	doc := 0
	for i := range docs {
		doc += 1 + r.Intn(5)
		docs[i] = doc
	}
	return docs
}

func TestNumLevels(t *testing.T) {
	tests := []struct{ n, interval, want int }{
		{0, 16, 0},
		{15, 16, 0},
		{16, 16, 1},
		{255, 16, 1},
		{256, 16, 2},
		{4096, 16, 3},
		{9, 3, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NumLevels(tt.n, tt.interval), "n=%d interval=%d", tt.n, tt.interval)
	}
}

func TestWriter_CheckpointCount(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, df := range []int{1, 15, 16, 17, 160, 1000, 4096} {
		for _, interval := range []int{4, 16} {
			p := writePostings(t, ascendingDocs(r, df), interval, 10, 100000, false)
			assert.Equal(t, df/interval, p.checkpoints, "df=%d interval=%d", df, interval)
			if df < interval {
				assert.Equal(t, int64(len(p.freq)), p.skipPointer, "no skip data below one interval")
			}
		}
	}
}

func TestReader_SkipTo(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, tc := range []struct {
		df, interval, maxLevels int
		payloads                bool
	}{
		{100, 4, 10, false},
		{1000, 3, 10, true},
		{5000, 16, 10, false},
		{5000, 4, 2, true},
		{64, 4, 1, false},
	} {
		t.Run(fmt.Sprintf("df=%d/k=%d/levels=%d", tc.df, tc.interval, tc.maxLevels), func(t *testing.T) {
			p := writePostings(t, ascendingDocs(r, tc.df), tc.interval, tc.maxLevels, 1<<20, tc.payloads)
			in := store.NewBytesInput("frq", p.freq)
			last := p.docs[len(p.docs)-1]

			targets := []int{0, 1, p.docs[0], p.docs[tc.interval], last, last + 10}
			for i := 0; i < 50; i++ {
				targets = append(targets, r.Intn(last+2))
			}

			for _, target := range targets {
				sr := NewReader(in, tc.maxLevels, tc.interval)
				sr.Init(p.skipPointer, 0, 0, tc.df, tc.payloads)
				n, err := sr.SkipTo(target)
				require.NoError(t, err)
				if n == 0 {
					continue
				}
				// Lands at or before the first posting >= target.
				require.Less(t, p.docs[n-1], target, "target %d", target)
				assert.Equal(t, p.docs[n-1], sr.Doc())
				assert.Equal(t, p.freqStarts[n], sr.FreqPointer())
				assert.Equal(t, p.proxStarts[n], sr.ProxPointer())
				if tc.payloads {
					assert.Equal(t, p.payloadLens[n], sr.PayloadLength())
				}

				// No checkpoint that still precedes target is left unused.
				next := n + tc.interval
				if next < len(p.docs) {
					assert.GreaterOrEqual(t, p.docs[next-1], target)
				}
			}
		})
	}
}

func TestReader_IncrementalSkips(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	p := writePostings(t, ascendingDocs(r, 3000), 4, 10, 1<<20, false)
	sr := NewReader(store.NewBytesInput("frq", p.freq), 10, 4)
	sr.Init(p.skipPointer, 0, 0, len(p.docs), false)

	prev := 0
	for target := 1; target < p.docs[len(p.docs)-1]; target += 97 {
		n, err := sr.SkipTo(target)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, prev)
		if n > 0 {
			require.Less(t, p.docs[n-1], target)
			require.Equal(t, p.freqStarts[n], sr.FreqPointer())
		}
		prev = n
	}
}
