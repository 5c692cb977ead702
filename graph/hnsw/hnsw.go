// Package hnsw implements the in-memory multi-layer graph backend.
//
// The build phase works over a dense in-RAM vector matrix and produces
// a hierarchical navigable small world graph. Only adjacency survives
// into the artifact; the vectors are discarded after the build.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/graph"
	"github.com/hupe1980/leanvec/internal/queue"
)

const (
	// DefaultM is the default max connections per node per layer.
	DefaultM = 16

	// DefaultEFConstruction is the default beam width during build.
	DefaultEFConstruction = 200

	// maxLevelCap bounds the exponential level assignment.
	maxLevelCap = 64
)

// Options configures an HNSW build.
type Options struct {
	// M is the max connections per node on layers above 0.
	// Layer 0 allows 2*M.
	M int

	// EFConstruction is the candidate beam width during insertion.
	EFConstruction int

	// Seed seeds the level assignment RNG. Builds with the same seed,
	// vectors and options produce identical graphs.
	Seed int64
}

// DefaultOptions are the build defaults.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	Seed:           1,
}

type node struct {
	level int
	conns [][]uint64
}

// Graph is a built HNSW graph. It satisfies graph.Graph and is
// read-only after Build or Load.
type Graph struct {
	metric   distance.Metric
	dim      int
	nodes    []node
	entry    uint64
	maxLevel int
}

var _ graph.Graph = (*Graph)(nil)

// Neighbors implements graph.Graph.
func (g *Graph) Neighbors(id uint64, level int) ([]uint64, error) {
	if id >= uint64(len(g.nodes)) {
		return nil, fmt.Errorf("hnsw: node %d out of range", id)
	}
	n := g.nodes[id]
	if level < 0 || level > n.level {
		return nil, nil
	}
	return n.conns[level], nil
}

// EntryPoint implements graph.Graph.
func (g *Graph) EntryPoint() (uint64, int, bool) {
	if len(g.nodes) == 0 {
		return 0, 0, false
	}
	return g.entry, g.maxLevel, true
}

// MaxLevel implements graph.Graph.
func (g *Graph) MaxLevel() int { return g.maxLevel }

// Metric implements graph.Graph.
func (g *Graph) Metric() distance.Metric { return g.metric }

// Dimension implements graph.Graph.
func (g *Graph) Dimension() int { return g.dim }

// Count implements graph.Graph.
func (g *Graph) Count() int { return len(g.nodes) }

// Close implements graph.Graph. The in-memory backend holds no
// external resources.
func (g *Graph) Close() error { return nil }

type builder struct {
	g       *Graph
	vectors [][]float32
	distFn  distance.Func

	m         int
	m0        int
	ef        int
	layerMult float64
	rng       *rand.Rand
}

// Build constructs an HNSW graph over the vector matrix. Node ordinals
// are the matrix row indices; insertion happens in row order.
func Build(vectors [][]float32, metric distance.Metric, optFns ...func(o *Options)) (*Graph, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.M < 2 {
		return nil, fmt.Errorf("hnsw: M must be at least 2, got %d", opts.M)
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("hnsw: no vectors to index")
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("hnsw: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	distFn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	b := &builder{
		g: &Graph{
			metric: metric,
			dim:    dim,
			nodes:  make([]node, 0, len(vectors)),
		},
		vectors:   vectors,
		distFn:    distFn,
		m:         opts.M,
		m0:        2 * opts.M,
		ef:        opts.EFConstruction,
		layerMult: 1 / math.Log(float64(opts.M)),
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}

	for i := range vectors {
		b.insert(uint64(i))
	}
	return b.g, nil
}

func (b *builder) randomLevel() int {
	u := b.rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	level := int(math.Floor(-math.Log(u) * b.layerMult))
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

func (b *builder) insert(id uint64) {
	level := b.randomLevel()
	conns := make([][]uint64, level+1)
	b.g.nodes = append(b.g.nodes, node{level: level, conns: conns})

	if len(b.g.nodes) == 1 {
		b.g.entry = id
		b.g.maxLevel = level
		return
	}

	vec := b.vectors[id]
	currID := b.g.entry
	currDist := b.distFn(vec, b.vectors[currID])

	// Greedy descent through the layers above the new node's level.
	for l := b.g.maxLevel; l > level; l-- {
		currID, currDist = b.greedyStep(vec, currID, currDist, l)
	}

	// Search and link from the node's level down to layer 0.
	for l := min(level, b.g.maxLevel); l >= 0; l-- {
		results := b.searchLayer(vec, currID, currDist, l, b.ef)
		if best, ok := results.MinItem(); ok {
			currID = best.Node
			currDist = best.Distance
		}

		maxConns := b.m
		if l == 0 {
			maxConns = b.m0
		}

		neighbors := b.selectNeighborsHeuristic(results, maxConns)
		b.g.nodes[id].conns[l] = neighbors
		for _, neighborID := range neighbors {
			b.addConnection(neighborID, id, l)
		}
	}

	if level > b.g.maxLevel {
		b.g.maxLevel = level
		b.g.entry = id
	}
}

func (b *builder) greedyStep(vec []float32, currID uint64, currDist float32, level int) (uint64, float32) {
	for changed := true; changed; {
		changed = false
		for _, nextID := range b.connsAt(currID, level) {
			nextDist := b.distFn(vec, b.vectors[nextID])
			if nextDist < currDist {
				currID = nextID
				currDist = nextDist
				changed = true
			}
		}
	}
	return currID, currDist
}

func (b *builder) connsAt(id uint64, level int) []uint64 {
	n := b.g.nodes[id]
	if level > n.level {
		return nil
	}
	return n.conns[level]
}

// searchLayer runs a beam search over one layer and returns a max-heap
// of up to ef results, worst on top.
func (b *builder) searchLayer(query []float32, epID uint64, epDist float32, level, ef int) *queue.PriorityQueue {
	visited := roaring64.New()
	visited.Add(epID)

	var seq uint64
	candidates := queue.NewMin(ef)
	results := queue.NewMax(ef)
	candidates.PushItem(queue.Item{Node: epID, Distance: epDist, Seq: seq})
	results.PushItem(queue.Item{Node: epID, Distance: epDist, Seq: seq})

	for candidates.Len() > 0 {
		curr, _ := candidates.PopItem()

		if worst, ok := results.TopItem(); ok && curr.Distance > worst.Distance && results.Len() >= ef {
			break
		}

		for _, nextID := range b.connsAt(curr.Node, level) {
			if visited.Contains(nextID) {
				continue
			}
			visited.Add(nextID)

			nextDist := b.distFn(query, b.vectors[nextID])
			if worst, ok := results.TopItem(); ok && results.Len() >= ef && nextDist > worst.Distance {
				continue
			}

			seq++
			candidates.PushItem(queue.Item{Node: nextID, Distance: nextDist, Seq: seq})
			results.PushItemBounded(queue.Item{Node: nextID, Distance: nextDist, Seq: seq}, ef)
		}
	}

	return results
}

// selectNeighborsHeuristic keeps candidates that are closer to the new
// node than to any already selected neighbor. This preserves edges in
// sparse directions instead of clustering all edges on the nearest
// neighbors.
func (b *builder) selectNeighborsHeuristic(candidates *queue.PriorityQueue, m int) []uint64 {
	ordered := drainAscending(candidates)
	if len(ordered) <= m {
		out := make([]uint64, len(ordered))
		for i, it := range ordered {
			out[i] = it.Node
		}
		return out
	}

	result := make([]uint64, 0, m)
	for _, cand := range ordered {
		if len(result) >= m {
			break
		}

		good := true
		for _, selected := range result {
			if b.distFn(b.vectors[cand.Node], b.vectors[selected]) < cand.Distance {
				good = false
				break
			}
		}
		if good {
			result = append(result, cand.Node)
		}
	}

	// Top up with pruned candidates so low-degree nodes stay reachable.
	for _, cand := range ordered {
		if len(result) >= m {
			break
		}
		if !contains(result, cand.Node) {
			result = append(result, cand.Node)
		}
	}
	return result
}

func (b *builder) addConnection(sourceID, targetID uint64, level int) {
	conns := b.connsAt(sourceID, level)
	for _, c := range conns {
		if c == targetID {
			return
		}
	}

	maxConns := b.m
	if level == 0 {
		maxConns = b.m0
	}

	if len(conns) < maxConns {
		b.g.nodes[sourceID].conns[level] = append(conns, targetID)
		return
	}

	// Overflow: rerun neighbor selection over existing plus new.
	source := b.vectors[sourceID]
	candidates := queue.NewMax(len(conns) + 1)
	for i, c := range conns {
		candidates.PushItem(queue.Item{Node: c, Distance: b.distFn(source, b.vectors[c]), Seq: uint64(i)})
	}
	candidates.PushItem(queue.Item{Node: targetID, Distance: b.distFn(source, b.vectors[targetID]), Seq: uint64(len(conns))})

	b.g.nodes[sourceID].conns[level] = b.selectNeighborsHeuristic(candidates, maxConns)
}

// drainAscending empties a max-heap into a nearest-first slice.
func drainAscending(pq *queue.PriorityQueue) []queue.Item {
	out := make([]queue.Item, pq.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i], _ = pq.PopItem()
	}
	return out
}

func contains(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
