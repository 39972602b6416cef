// Package minheap implements an indexed min-heap keyed by a due time, used
// by internal/probe's scheduler to find the next probe to run. It is
// "indexed" in the sense that each item carries its own heap position so the
// owner can remove or re-prioritize an arbitrary item in O(log n) without a
// linear search.
package minheap

import "container/heap"

// Item is anything that can sit in the heap. Index is maintained by the
// heap implementation; callers should treat it as read-only and use it only
// to call Heap.Fix/Remove on a previously-inserted item.
type Item interface {
	Due() (due int64, ok bool) // ok=false sorts last; used for "no due time"
	SetIndex(i int)
	Index() int
}

// Heap is a min-heap over Item ordered by Due(). NIL index (-1) marks an
// item not currently in the heap — the convention internal/probe relies on
// to assert "state=SCHEDULED iff heap_idx != NIL".
type Heap struct {
	items []Item
}

// NIL is the sentinel index for "not in the heap".
const NIL = -1

func New() *Heap { return &Heap{items: make([]Item, 0)} }

func (h *Heap) Len() int { return len(h.items) }

func (h *Heap) Less(i, j int) bool {
	di, oki := h.items[i].Due()
	dj, okj := h.items[j].Due()
	if !oki && !okj {
		return false
	}
	if !oki {
		return false
	}
	if !okj {
		return true
	}
	return di < dj
}

func (h *Heap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].SetIndex(i)
	h.items[j].SetIndex(j)
}

func (h *Heap) Push(x any) {
	it := x.(Item)
	it.SetIndex(len(h.items))
	h.items = append(h.items, it)
}

func (h *Heap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.SetIndex(NIL)
	h.items = old[:n-1]
	return it
}

// Insert adds an item to the heap.
func (h *Heap) Insert(it Item) { heap.Push(h, it) }

// Remove removes an item, by its current index, from the heap.
func (h *Heap) Remove(it Item) {
	i := it.Index()
	if i < 0 || i >= len(h.items) {
		return
	}
	heap.Remove(h, i)
}

// Fix re-establishes heap order for an item whose Due() changed in place.
func (h *Heap) Fix(it Item) {
	i := it.Index()
	if i < 0 || i >= len(h.items) {
		return
	}
	heap.Fix(h, i)
}

// Peek returns the root item (earliest due) without removing it.
func (h *Heap) Peek() (Item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// PopRoot removes and returns the root item.
func (h *Heap) PopRoot() (Item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return heap.Pop(h).(Item), true
}
