package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinHeapOrdering(t *testing.T) {
	pq := NewMin(4)
	pq.PushItem(Item{Node: 1, Distance: 3.0, Seq: 0})
	pq.PushItem(Item{Node: 2, Distance: 1.0, Seq: 1})
	pq.PushItem(Item{Node: 3, Distance: 2.0, Seq: 2})

	var order []uint64
	for pq.Len() > 0 {
		item, ok := pq.PopItem()
		require.True(t, ok)
		order = append(order, item.Node)
	}
	assert.Equal(t, []uint64{2, 3, 1}, order)
}

func TestMaxHeapTop(t *testing.T) {
	pq := NewMax(4)
	pq.PushItem(Item{Node: 1, Distance: 3.0})
	pq.PushItem(Item{Node: 2, Distance: 1.0})

	top, ok := pq.TopItem()
	require.True(t, ok)
	assert.Equal(t, uint64(1), top.Node)

	best, ok := pq.MinItem()
	require.True(t, ok)
	assert.Equal(t, uint64(2), best.Node)
}

func TestTieBreakBySequence(t *testing.T) {
	// Two items at the same distance: the earlier discovery must win.
	pq := NewMin(4)
	pq.PushItem(Item{Node: 7, Distance: 1.0, Seq: 2})
	pq.PushItem(Item{Node: 5, Distance: 1.0, Seq: 1})

	item, ok := pq.PopItem()
	require.True(t, ok)
	assert.Equal(t, uint64(5), item.Node)
}

func TestBoundedEvictsLaterDiscoveryOnTie(t *testing.T) {
	pq := NewMax(2)
	pq.PushItemBounded(Item{Node: 1, Distance: 1.0, Seq: 1}, 2)
	pq.PushItemBounded(Item{Node: 2, Distance: 1.0, Seq: 2}, 2)
	// Same distance as the current worst but later discovery: rejected.
	pq.PushItemBounded(Item{Node: 3, Distance: 1.0, Seq: 3}, 2)

	require.Equal(t, 2, pq.Len())
	nodes := map[uint64]bool{}
	for pq.Len() > 0 {
		item, _ := pq.PopItem()
		nodes[item.Node] = true
	}
	assert.True(t, nodes[1])
	assert.True(t, nodes[2])
	assert.False(t, nodes[3])
}

func TestBoundedReplacesWorst(t *testing.T) {
	pq := NewMax(2)
	pq.PushItemBounded(Item{Node: 1, Distance: 5.0}, 2)
	pq.PushItemBounded(Item{Node: 2, Distance: 4.0}, 2)
	pq.PushItemBounded(Item{Node: 3, Distance: 1.0}, 2)

	require.Equal(t, 2, pq.Len())
	worst, _ := pq.PopItem()
	assert.Equal(t, uint64(2), worst.Node)
	best, _ := pq.PopItem()
	assert.Equal(t, uint64(3), best.Node)
}

func TestReset(t *testing.T) {
	pq := NewMin(2)
	pq.PushItem(Item{Node: 1, Distance: 1.0})
	pq.Reset()
	assert.Equal(t, 0, pq.Len())
	_, ok := pq.PopItem()
	assert.False(t, ok)
}
