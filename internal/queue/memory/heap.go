package memory

import (
	"container/heap"

	"pmengine/internal/domain"
)

// entry pairs a message with the sequence number it was first inserted with.
// The sequence breaks exact ties so equal messages leave in arrival order.
type entry struct {
	msg *domain.Message
	seq uint64
}

// messageHeap implements heap.Interface over entries using an ordering policy.
type messageHeap struct {
	entries  []entry
	ordering domain.Ordering
}

func (h *messageHeap) Len() int {
	return len(h.entries)
}

func (h *messageHeap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if c := h.ordering.Compare(a.msg, b.msg); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

func (h *messageHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *messageHeap) Push(x any) {
	h.entries = append(h.entries, x.(entry))
}

func (h *messageHeap) Pop() any {
	n := len(h.entries)
	result := h.entries[n-1]
	h.entries[n-1] = entry{} // avoid memory leak
	h.entries = h.entries[:n-1]
	return result
}

func (h *messageHeap) pushEntry(e entry) {
	heap.Push(h, e)
}

func (h *messageHeap) popEntry() (entry, bool) {
	if h.Len() == 0 {
		return entry{}, false
	}
	return heap.Pop(h).(entry), true
}

// unload empties the heap and returns its entries in no particular order.
func (h *messageHeap) unload() []entry {
	result := h.entries
	h.entries = nil
	return result
}
