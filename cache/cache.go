// Package cache implements the query-time recompute cache.
//
// An index stores no vectors, so every node visited during search needs
// its embedding recomputed from stored text. The cache bounds that cost
// two ways: an LRU over recently computed vectors, and single-flight
// deduplication so concurrent searches visiting the same node trigger
// one provider call, not one per search.
package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the embedding vector for a node ordinal,
// typically by loading its text and calling the embedding provider.
type ComputeFunc func(ctx context.Context, id uint64) ([]float32, error)

// Outcome reports how a vector was obtained.
type Outcome int

const (
	// OutcomeHit means the vector was served from the cache.
	OutcomeHit Outcome = iota

	// OutcomeComputed means the vector was recomputed for this call.
	OutcomeComputed

	// OutcomeUnavailable means no vector could be produced, either
	// because recomputation was disallowed or because it failed.
	OutcomeUnavailable
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeComputed:
		return "computed"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Computed    int64
	Unavailable int64
	Entries     int
}

type cacheEntry struct {
	id     uint64
	vector []float32
}

// RecomputeCache is a bounded LRU of recomputed vectors with
// single-flight deduplication of concurrent recomputes.
//
// Returned vectors are shared and must not be mutated by callers.
type RecomputeCache struct {
	compute    ComputeFunc
	maxEntries int

	mu        sync.Mutex
	items     map[uint64]*list.Element
	evictList *list.List

	group singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	computed    atomic.Int64
	unavailable atomic.Int64
}

// New creates a cache holding at most maxEntries vectors.
func New(compute ComputeFunc, maxEntries int) *RecomputeCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &RecomputeCache{
		compute:    compute,
		maxEntries: maxEntries,
		items:      make(map[uint64]*list.Element),
		evictList:  list.New(),
	}
}

// Get returns the vector for the given node ordinal.
//
// On a cache miss with allowCompute set, the vector is recomputed and
// cached; concurrent misses for the same ordinal share one computation.
// With allowCompute unset a miss returns OutcomeUnavailable and no
// error, letting the caller degrade instead of fail.
func (c *RecomputeCache) Get(ctx context.Context, id uint64, allowCompute bool) ([]float32, Outcome, error) {
	if v, ok := c.lookup(id); ok {
		c.hits.Add(1)
		return v, OutcomeHit, nil
	}
	c.misses.Add(1)

	if !allowCompute {
		c.unavailable.Add(1)
		return nil, OutcomeUnavailable, nil
	}

	ch := c.group.DoChan(strconv.FormatUint(id, 10), func() (any, error) {
		v, err := c.compute(ctx, id)
		if err != nil {
			return nil, err
		}
		c.add(id, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		c.unavailable.Add(1)
		return nil, OutcomeUnavailable, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.unavailable.Add(1)
			return nil, OutcomeUnavailable, res.Err
		}
		c.computed.Add(1)
		return res.Val.([]float32), OutcomeComputed, nil
	}
}

// Put seeds the cache, for example with the query vector's neighbors
// after a search warmed them up elsewhere.
func (c *RecomputeCache) Put(id uint64, vector []float32) {
	c.add(id, vector)
}

// Stats returns a snapshot of the cache counters.
func (c *RecomputeCache) Stats() Stats {
	c.mu.Lock()
	entries := c.evictList.Len()
	c.mu.Unlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Computed:    c.computed.Load(),
		Unavailable: c.unavailable.Load(),
		Entries:     entries,
	}
}

// Purge drops all cached vectors. Counters are kept.
func (c *RecomputeCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[uint64]*list.Element)
	c.evictList.Init()
}

func (c *RecomputeCache) lookup(id uint64) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[id]; ok {
		c.evictList.MoveToFront(e)
		return e.Value.(*cacheEntry).vector, true
	}
	return nil, false
}

func (c *RecomputeCache) add(id uint64, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[id]; ok {
		c.evictList.MoveToFront(e)
		e.Value.(*cacheEntry).vector = vector
		return
	}

	e := c.evictList.PushFront(&cacheEntry{id: id, vector: vector})
	c.items[id] = e

	for c.evictList.Len() > c.maxEntries {
		oldest := c.evictList.Back()
		if oldest == nil {
			break
		}
		c.evictList.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).id)
	}
}
