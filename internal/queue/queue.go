// Package queue provides value-based priority queues for graph traversal.
//
// Items carry a discovery sequence number. Equal distances are ordered by
// sequence so that searches are fully deterministic: the earlier-discovered
// candidate always wins a tie.
package queue

// Item represents an item in the priority queue.
type Item struct {
	// Node is the graph node identifier.
	Node uint64

	// Distance is the priority of the item (smaller is closer).
	Distance float32

	// Seq is the discovery sequence number, used to break distance ties.
	Seq uint64
}

// PriorityQueue is a binary heap over Items.
// Value-based storage avoids pointer indirection and allocation churn.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin creates a min-heap: the closest item surfaces at the top.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{isMaxHeap: false, items: make([]Item, 0, max(capacity, 16))}
}

// NewMax creates a max-heap: the worst item surfaces at the top, which makes
// it suitable for bounded result sets (evict the worst when full).
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{isMaxHeap: true, items: make([]Item, 0, max(capacity, 16))}
}

// Len returns the number of elements in the heap.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// less reports whether items[i] sorts before items[j].
//
// Tie-break: in a min-heap the earlier-discovered item sorts first; in a
// max-heap the later-discovered item sorts first, so bounded eviction always
// drops the later discovery and keeps the earlier one.
func (pq *PriorityQueue) less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	if a.Distance != b.Distance {
		if pq.isMaxHeap {
			return a.Distance > b.Distance
		}
		return a.Distance < b.Distance
	}
	if pq.isMaxHeap {
		return a.Seq > b.Seq
	}
	return a.Seq < b.Seq
}

func (pq *PriorityQueue) swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

// TopItem returns the top element of the heap without removing it.
func (pq *PriorityQueue) TopItem() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// MinItem returns the item with the minimum distance in the queue.
// O(N) for a max-heap, but N is bounded by the search complexity.
func (pq *PriorityQueue) MinItem() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	best := pq.items[0]
	for _, item := range pq.items[1:] {
		if item.Distance < best.Distance || (item.Distance == best.Distance && item.Seq < best.Seq) {
			best = item
		}
	}
	return best, true
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PushItemBounded inserts into a heap bounded at capacity.
// When full, the new item replaces the top only if it sorts after it
// (i.e. it is a better candidate than the current worst).
func (pq *PriorityQueue) PushItemBounded(item Item, capacity int) {
	if len(pq.items) < capacity {
		pq.PushItem(item)
		return
	}

	top, _ := pq.TopItem()
	better := item.Distance < top.Distance ||
		(item.Distance == top.Distance && item.Seq < top.Seq)
	if !pq.isMaxHeap {
		better = item.Distance > top.Distance ||
			(item.Distance == top.Distance && item.Seq > top.Seq)
	}
	if better {
		pq.items[0] = item
		pq.siftDown(0)
	}
}

// PopItem removes and returns the top element from the heap.
func (pq *PriorityQueue) PopItem() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}

	item := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]

	if len(pq.items) > 0 {
		pq.siftDown(0)
	}

	return item, true
}

// Reset clears the priority queue without releasing memory.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.less(i, parent) {
			break
		}
		pq.swap(i, parent)
		i = parent
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && pq.less(right, left) {
			child = right
		}
		if !pq.less(child, i) {
			break
		}
		pq.swap(i, child)
		i = child
	}
}
