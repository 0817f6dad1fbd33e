package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intLess(a, b int) bool { return a < b }

func TestPriorityQueue_Order(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pq := New(4, intLess)

	want := make([]int, 200)
	for i := range want {
		want[i] = rng.Intn(50)
		pq.Push(want[i])
	}
	sort.Ints(want)
	require.Equal(t, len(want), pq.Len())

	got := make([]int, 0, len(want))
	for pq.Len() > 0 {
		v, ok := pq.Pop()
		require.True(t, ok)
		got = append(got, v)
	}
	assert.Equal(t, want, got)

	_, ok := pq.Pop()
	assert.False(t, ok)
	_, ok = pq.Top()
	assert.False(t, ok)
}

func TestPriorityQueue_TiesAndReset(t *testing.T) {
	type cursor struct{ key, index int }
	pq := New(3, func(a, b *cursor) bool {
		if a.key != b.key {
			return a.key < b.key
		}
		return a.index < b.index
	})
	a, b, c := &cursor{2, 0}, &cursor{1, 1}, &cursor{1, 2}
	pq.Push(a)
	pq.Push(c)
	pq.Push(b)

	top, ok := pq.Top()
	require.True(t, ok)
	assert.Same(t, b, top)

	// A popped cursor that advanced goes back in.
	got, _ := pq.Pop()
	assert.Same(t, b, got)
	b.key = 3
	pq.Push(b)

	var order []*cursor
	for pq.Len() > 0 {
		v, _ := pq.Pop()
		order = append(order, v)
	}
	assert.Equal(t, []*cursor{c, a, b}, order)

	pq.Push(a)
	pq.Reset()
	assert.Equal(t, 0, pq.Len())
	_, ok = pq.Top()
	assert.False(t, ok)
}
