// Package queue provides a typed binary heap ordered by a caller supplied
// less function.
package queue

import "container/heap"

// Compile time check to ensure items satisfies the heap interface.
var _ heap.Interface = (*items[int])(nil)

// items implements heap.Interface for PriorityQueue.
type items[T any] struct {
	less func(a, b T) bool
	list []T
}

func (h *items[T]) Len() int { return len(h.list) }

func (h *items[T]) Less(i, j int) bool { return h.less(h.list[i], h.list[j]) }

func (h *items[T]) Swap(i, j int) { h.list[i], h.list[j] = h.list[j], h.list[i] }

func (h *items[T]) Push(x any) {
	item, _ := x.(T)
	h.list = append(h.list, item)
}

func (h *items[T]) Pop() any {
	var zero T
	old := h.list
	n := len(old)
	item := old[n-1]
	old[n-1] = zero
	h.list = old[:n-1]
	return item
}

// PriorityQueue keeps the smallest item, as defined by less, on top.
type PriorityQueue[T any] struct {
	h items[T]
}

// New returns an empty queue with room for capacity items.
func New[T any](capacity int, less func(a, b T) bool) *PriorityQueue[T] {
	return &PriorityQueue[T]{
		h: items[T]{less: less, list: make([]T, 0, capacity)},
	}
}

// Len returns the number of queued items.
func (pq *PriorityQueue[T]) Len() int { return pq.h.Len() }

// Top returns the smallest item without removing it.
func (pq *PriorityQueue[T]) Top() (T, bool) {
	if pq.h.Len() == 0 {
		var zero T
		return zero, false
	}
	return pq.h.list[0], true
}

// Push inserts an item.
func (pq *PriorityQueue[T]) Push(item T) {
	heap.Push(&pq.h, item)
}

// Pop removes and returns the smallest item.
func (pq *PriorityQueue[T]) Pop() (T, bool) {
	if pq.h.Len() == 0 {
		var zero T
		return zero, false
	}
	item, _ := heap.Pop(&pq.h).(T)
	return item, true
}

// Reset clears the queue for reuse.
func (pq *PriorityQueue[T]) Reset() {
	clear(pq.h.list)
	pq.h.list = pq.h.list[:0]
}
