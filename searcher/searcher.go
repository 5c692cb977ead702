// Package searcher implements beam search over a proximity graph whose
// vectors live elsewhere.
//
// The searcher never holds vectors of its own. Every visited node's
// embedding is requested from a Source, which in practice is the
// recompute cache. A Source is allowed to answer "not available", and
// the searcher then skips that node instead of failing, which is how
// cached-only search degrades gracefully.
package searcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/graph"
	"github.com/hupe1980/leanvec/internal/queue"
)

// ErrEntryUnavailable is returned when the entry point's vector cannot
// be obtained, leaving the search nowhere to start.
var ErrEntryUnavailable = errors.New("searcher: entry point vector unavailable")

// DefaultComplexity is the minimum beam width.
const DefaultComplexity = 16

// Source provides vectors for graph nodes on demand.
//
// ok reports whether a vector could be produced; a false ok with a nil
// error means the node should be skipped, not that the search failed.
type Source interface {
	Vector(ctx context.Context, id uint64) (vec []float32, ok bool, err error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, id uint64) ([]float32, bool, error)

// Vector implements Source.
func (f SourceFunc) Vector(ctx context.Context, id uint64) ([]float32, bool, error) {
	return f(ctx, id)
}

// Options configures a single search.
type Options struct {
	// Complexity is the beam width. It is clamped up to at least k and
	// DefaultComplexity.
	Complexity int

	// MaxVisits bounds the number of nodes whose vectors are fetched.
	// Zero means no budget.
	MaxVisits int
}

// Result is one search hit. Distance is the internal metric value,
// smaller is closer.
type Result struct {
	Node     uint64
	Distance float32
}

// Stats reports traversal effort for one search.
type Stats struct {
	// Visited is the number of nodes whose vectors were requested.
	Visited int

	// Skipped is the number of nodes dropped because no vector was
	// available.
	Skipped int

	// BudgetHit reports whether the MaxVisits budget stopped the
	// traversal early.
	BudgetHit bool
}

// Searcher runs queries against one graph.
type Searcher struct {
	g      graph.Graph
	distFn distance.Func
}

// New creates a searcher for the given graph.
func New(g graph.Graph) (*Searcher, error) {
	distFn, err := distance.Provider(g.Metric())
	if err != nil {
		return nil, err
	}
	return &Searcher{g: g, distFn: distFn}, nil
}

// Search returns up to k nodes nearest the query vector, closest
// first. Ties are broken by discovery order, so results are
// deterministic for a fixed graph and source.
func (s *Searcher) Search(ctx context.Context, source Source, query []float32, k int, optFns ...func(o *Options)) ([]Result, Stats, error) {
	opts := Options{Complexity: DefaultComplexity}
	for _, fn := range optFns {
		fn(&opts)
	}

	var stats Stats
	if k <= 0 {
		return nil, stats, nil
	}
	if len(query) != s.g.Dimension() {
		return nil, stats, fmt.Errorf("searcher: query dimension %d, index dimension %d", len(query), s.g.Dimension())
	}

	entry, maxLevel, ok := s.g.EntryPoint()
	if !ok {
		return nil, stats, nil
	}

	ef := max(opts.Complexity, k, DefaultComplexity)

	entryVec, ok, err := s.fetch(ctx, source, entry, &stats, opts.MaxVisits)
	if err != nil {
		return nil, stats, err
	}
	if !ok {
		return nil, stats, ErrEntryUnavailable
	}

	currID := entry
	currDist := s.distFn(query, entryVec)

	// Greedy descent through the upper layers. Single-layer backends
	// have maxLevel 0 and skip this entirely.
	for level := maxLevel; level > 0; level-- {
		currID, currDist, err = s.greedyStep(ctx, source, query, currID, currDist, level, &stats, opts.MaxVisits)
		if err != nil {
			return nil, stats, err
		}
	}

	results, err := s.searchLayerZero(ctx, source, query, currID, currDist, ef, &stats, opts.MaxVisits)
	if err != nil {
		return nil, stats, err
	}

	// Drain the max-heap into a closest-first slice.
	if results.Len() > k {
		for results.Len() > k {
			results.PopItem()
		}
	}
	out := make([]Result, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item, _ := results.PopItem()
		out[i] = Result{Node: item.Node, Distance: item.Distance}
	}
	return out, stats, nil
}

func (s *Searcher) greedyStep(ctx context.Context, source Source, query []float32, currID uint64, currDist float32, level int, stats *Stats, budget int) (uint64, float32, error) {
	for changed := true; changed; {
		changed = false
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		neighbors, err := s.g.Neighbors(currID, level)
		if err != nil {
			return 0, 0, err
		}
		for _, next := range neighbors {
			vec, ok, err := s.fetch(ctx, source, next, stats, budget)
			if err != nil {
				return 0, 0, err
			}
			if !ok {
				continue
			}
			if d := s.distFn(query, vec); d < currDist {
				currID = next
				currDist = d
				changed = true
			}
		}
		if stats.BudgetHit {
			break
		}
	}
	return currID, currDist, nil
}

func (s *Searcher) searchLayerZero(ctx context.Context, source Source, query []float32, epID uint64, epDist float32, ef int, stats *Stats, budget int) (*queue.PriorityQueue, error) {
	visited := roaring64.New()
	visited.Add(epID)

	var seq uint64
	candidates := queue.NewMin(ef)
	results := queue.NewMax(ef)
	candidates.PushItem(queue.Item{Node: epID, Distance: epDist, Seq: seq})
	results.PushItem(queue.Item{Node: epID, Distance: epDist, Seq: seq})

	for candidates.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stats.BudgetHit {
			break
		}

		curr, _ := candidates.PopItem()
		if worst, ok := results.TopItem(); ok && results.Len() >= ef && curr.Distance > worst.Distance {
			break
		}

		neighbors, err := s.g.Neighbors(curr.Node, 0)
		if err != nil {
			return nil, err
		}
		for _, next := range neighbors {
			if visited.Contains(next) {
				continue
			}
			visited.Add(next)

			vec, ok, err := s.fetch(ctx, source, next, stats, budget)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			nextDist := s.distFn(query, vec)
			if worst, ok := results.TopItem(); ok && results.Len() >= ef && nextDist > worst.Distance {
				continue
			}

			seq++
			candidates.PushItem(queue.Item{Node: next, Distance: nextDist, Seq: seq})
			results.PushItemBounded(queue.Item{Node: next, Distance: nextDist, Seq: seq}, ef)

			if stats.BudgetHit {
				break
			}
		}
	}

	return results, nil
}

// fetch asks the source for a vector, tracking traversal stats and the
// visit budget.
func (s *Searcher) fetch(ctx context.Context, source Source, id uint64, stats *Stats, budget int) ([]float32, bool, error) {
	if budget > 0 && stats.Visited >= budget {
		stats.BudgetHit = true
		return nil, false, nil
	}
	stats.Visited++

	vec, ok, err := source.Vector(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		stats.Skipped++
		return nil, false, nil
	}
	return vec, true, nil
}
