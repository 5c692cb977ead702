// Package vamana implements the disk-resident single-layer graph
// backend.
//
// The build phase constructs a Vamana graph over an in-RAM vector
// matrix: random initial edges, repeated greedy search plus
// alpha-pruning, and a medoid entry point. The artifact uses
// fixed-size node records so that query-time adjacency lookups are a
// single offset computation into a memory map, with no index structure
// loaded into RAM.
package vamana

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/internal/atomicio"
	"github.com/hupe1980/leanvec/internal/queue"
)

const (
	// DefaultR is the default max edges per node.
	DefaultR = 32

	// DefaultL is the default candidate list size during build.
	DefaultL = 100

	// DefaultAlpha is the default pruning factor.
	DefaultAlpha = 1.2
)

// Options configures a Vamana build.
type Options struct {
	// R is the max edges per node.
	R int

	// L is the candidate list size during graph construction.
	L int

	// Alpha is the pruning factor, at least 1.0. Larger values keep
	// more diverse edges.
	Alpha float32

	// Seed seeds the random edge initialization.
	Seed int64
}

// DefaultOptions are the build defaults.
var DefaultOptions = Options{
	R:     DefaultR,
	L:     DefaultL,
	Alpha: DefaultAlpha,
	Seed:  1,
}

// Built is a freshly constructed graph awaiting serialization.
type Built struct {
	metric distance.Metric
	dim    int
	r      int
	alpha  float32
	entry  uint32
	adj    [][]uint32
}

type vamanaBuilder struct {
	vectors [][]float32
	distFn  distance.Func
	adj     [][]uint32
	entry   uint32
	r       int
	l       int
	alpha   float32
}

// Build constructs a Vamana graph over the vector matrix. Node
// ordinals are the matrix row indices.
func Build(vectors [][]float32, metric distance.Metric, optFns ...func(o *Options)) (*Built, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.R <= 0 || opts.L <= 0 || opts.Alpha < 1.0 {
		return nil, fmt.Errorf("vamana: invalid graph parameters R=%d L=%d alpha=%g", opts.R, opts.L, opts.Alpha)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("vamana: no vectors to index")
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vamana: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	distFn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	b := &vamanaBuilder{
		vectors: vectors,
		distFn:  distFn,
		adj:     make([][]uint32, len(vectors)),
		r:       opts.R,
		l:       opts.L,
		alpha:   opts.Alpha,
	}
	b.initRandomEdges(opts.Seed)
	b.entry = b.selectEntryPoint()

	for i := range vectors {
		candidates := b.greedySearch(uint32(i))
		b.adj[i] = b.robustPrune(uint32(i), candidates)
		for _, neighbor := range b.adj[i] {
			b.addEdge(neighbor, uint32(i))
		}
	}

	return &Built{
		metric: metric,
		dim:    dim,
		r:      opts.R,
		alpha:  opts.Alpha,
		entry:  b.entry,
		adj:    b.adj,
	}, nil
}

func (b *vamanaBuilder) initRandomEdges(seed int64) {
	n := len(b.vectors)
	rng := rand.New(rand.NewSource(seed))
	for i := range b.adj {
		want := min(b.r/2, n-1)
		edges := make(map[uint32]struct{}, want)
		for len(edges) < want {
			j := uint32(rng.Intn(n))
			if j != uint32(i) {
				edges[j] = struct{}{}
			}
		}

		b.adj[i] = make([]uint32, 0, len(edges))
		for j := range edges {
			b.adj[i] = append(b.adj[i], j)
		}
		// Map iteration order is random; sort for deterministic builds.
		sort.Slice(b.adj[i], func(x, y int) bool { return b.adj[i][x] < b.adj[i][y] })
	}
}

// selectEntryPoint returns the medoid, the node nearest the centroid.
func (b *vamanaBuilder) selectEntryPoint() uint32 {
	dim := len(b.vectors[0])
	centroid := make([]float32, dim)
	for _, vec := range b.vectors {
		for j, v := range vec {
			centroid[j] += v
		}
	}
	for j := range centroid {
		centroid[j] /= float32(len(b.vectors))
	}

	entry := uint32(0)
	minDist := float32(math.MaxFloat32)
	for i, vec := range b.vectors {
		if d := b.distFn(centroid, vec); d < minDist {
			minDist = d
			entry = uint32(i)
		}
	}
	return entry
}

// greedySearch walks from the entry point toward the target and
// returns the visited candidate set, nearest first.
func (b *vamanaBuilder) greedySearch(target uint32) []uint32 {
	targetVec := b.vectors[target]

	visited := roaring64.New()
	visited.Add(uint64(b.entry))

	var seq uint64
	candidates := queue.NewMin(b.l)
	results := queue.NewMax(b.l)

	entryDist := b.distFn(b.vectors[b.entry], targetVec)
	candidates.PushItem(queue.Item{Node: uint64(b.entry), Distance: entryDist, Seq: seq})
	results.PushItem(queue.Item{Node: uint64(b.entry), Distance: entryDist, Seq: seq})

	for candidates.Len() > 0 {
		curr, _ := candidates.PopItem()
		if worst, ok := results.TopItem(); ok && results.Len() >= b.l && curr.Distance > worst.Distance {
			break
		}

		for _, neighbor := range b.adj[curr.Node] {
			if visited.Contains(uint64(neighbor)) {
				continue
			}
			visited.Add(uint64(neighbor))

			d := b.distFn(b.vectors[neighbor], targetVec)
			seq++
			candidates.PushItem(queue.Item{Node: uint64(neighbor), Distance: d, Seq: seq})
			results.PushItemBounded(queue.Item{Node: uint64(neighbor), Distance: d, Seq: seq}, b.l)
		}
	}

	out := make([]uint32, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item, _ := results.PopItem()
		out[i] = uint32(item.Node)
	}
	return out
}

// robustPrune selects up to R diverse neighbors: a candidate is kept
// only if no already selected neighbor is alpha-times closer to it
// than the candidate is to the node itself.
func (b *vamanaBuilder) robustPrune(node uint32, candidates []uint32) []uint32 {
	nodeVec := b.vectors[node]

	type scored struct {
		id   uint32
		dist float32
	}
	cands := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if c == node {
			continue
		}
		cands = append(cands, scored{id: c, dist: b.distFn(b.vectors[c], nodeVec)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})

	selected := make([]uint32, 0, b.r)
	for _, c := range cands {
		if len(selected) >= b.r {
			break
		}

		diverse := true
		for _, s := range selected {
			if b.alpha*b.distFn(b.vectors[c.id], b.vectors[s]) < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, c.id)
		}
	}
	return selected
}

func (b *vamanaBuilder) addEdge(src, dst uint32) {
	for _, n := range b.adj[src] {
		if n == dst {
			return
		}
	}

	b.adj[src] = append(b.adj[src], dst)
	if len(b.adj[src]) > b.r {
		b.adj[src] = b.robustPrune(src, b.adj[src])
	}
}

// WriteTo serializes the graph in the fixed-record format.
func (bt *Built) WriteTo(w io.Writer) (int64, error) {
	header := fileHeader{
		Magic:   formatMagic,
		Version: formatVersion,
		Metric:  uint32(bt.metric),
		Dim:     uint32(bt.dim),
		Count:   uint64(len(bt.adj)),
		Entry:   uint64(bt.entry),
		R:       uint32(bt.r),
		Alpha:   uint32(bt.alpha * 1000),
	}

	var written int64
	n, err := w.Write(header.marshal())
	written += int64(n)
	if err != nil {
		return written, err
	}

	for _, neighbors := range bt.adj {
		if err := writeRecord(w, neighbors, bt.r); err != nil {
			return written, err
		}
		written += int64(4 + bt.r*4)
	}
	return written, nil
}

// Save writes the graph to path atomically.
func (bt *Built) Save(path string) error {
	return atomicio.SaveToFile(path, func(w io.Writer) error {
		_, err := bt.WriteTo(w)
		return err
	})
}

// Entry returns the medoid entry point.
func (bt *Built) Entry() uint64 { return uint64(bt.entry) }
