package leanvec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hupe1980/leanvec/cache"
	"github.com/hupe1980/leanvec/chunk"
	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/embedding"
	"github.com/hupe1980/leanvec/graph"
	"github.com/hupe1980/leanvec/graph/hnsw"
	"github.com/hupe1980/leanvec/graph/vamana"
	"github.com/hupe1980/leanvec/manifest"
	"github.com/hupe1980/leanvec/searcher"
)

// Index is an opened, immutable search index.
//
// All methods are safe for concurrent use.
type Index struct {
	dir      string
	man      *manifest.Manifest
	metric   distance.Metric
	store    *chunk.Store
	graph    graph.Graph
	cache    *cache.RecomputeCache
	provider embedding.Provider
	searcher *searcher.Searcher

	logger  *Logger
	metrics MetricsCollector
	closed  atomic.Bool
}

// Open opens the index directory at dir.
//
// The provider must match the one the index was built with, by model
// name and dimension; a mismatched provider would silently degrade
// every search, so it is rejected here.
func Open(ctx context.Context, dir string, provider embedding.Provider, optFns ...Option) (*Index, error) {
	opts := applyOptions(optFns)

	idx, err := open(ctx, dir, provider, &opts)
	if err != nil {
		opts.logger.LogOpen(ctx, dir, 0, err)
		return nil, err
	}
	opts.logger.LogOpen(ctx, dir, idx.man.ChunkCount, nil)
	return idx, nil
}

func open(ctx context.Context, dir string, provider embedding.Provider, opts *options) (*Index, error) {
	man, err := manifest.Load(dir)
	if err != nil {
		return nil, &IntegrityError{Dir: dir, cause: err}
	}
	if !opts.skipChecksums {
		if err := man.VerifyChecksums(dir); err != nil {
			return nil, &IntegrityError{Dir: dir, cause: err}
		}
	}

	metric, err := man.ParseMetric()
	if err != nil {
		return nil, &IntegrityError{Dir: dir, cause: err}
	}

	if provider.Model() != man.EmbeddingModel {
		return nil, &ProviderMismatchError{IndexModel: man.EmbeddingModel, ProviderModel: provider.Model()}
	}
	if provider.Dimension() != man.Dimension {
		return nil, &DimensionMismatchError{Expected: man.Dimension, Actual: provider.Dimension()}
	}

	g, err := openGraph(dir, man.Backend)
	if err != nil {
		return nil, &IntegrityError{Dir: dir, cause: err}
	}
	if g.Metric() != metric || g.Dimension() != man.Dimension || g.Count() != man.ChunkCount {
		g.Close()
		return nil, &IntegrityError{Dir: dir, cause: fmt.Errorf("graph artifact disagrees with manifest")}
	}

	store, err := chunk.Open(filepath.Join(dir, manifest.ChunksFilename))
	if err != nil {
		g.Close()
		return nil, &IntegrityError{Dir: dir, cause: err}
	}
	if count, err := store.Count(); err != nil || count != man.ChunkCount {
		store.Close()
		g.Close()
		if err == nil {
			err = fmt.Errorf("chunk store has %d chunks, manifest says %d", count, man.ChunkCount)
		}
		return nil, &IntegrityError{Dir: dir, cause: err}
	}

	s, err := searcher.New(g)
	if err != nil {
		store.Close()
		g.Close()
		return nil, err
	}

	idx := &Index{
		dir:      dir,
		man:      man,
		metric:   metric,
		store:    store,
		graph:    g,
		provider: provider,
		searcher: s,
		logger:   opts.logger,
		metrics:  opts.metricsCollector,
	}
	idx.cache = cache.New(idx.recompute, opts.cacheEntries)
	return idx, nil
}

func openGraph(dir string, backend graph.Kind) (graph.Graph, error) {
	path := filepath.Join(dir, manifest.GraphFilename)
	switch backend {
	case graph.KindHNSW:
		return hnsw.Load(path)
	case graph.KindVamana:
		return vamana.Open(path)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// recompute produces the embedding for one node ordinal from its
// stored text. This is the compute function behind the cache.
func (idx *Index) recompute(ctx context.Context, ordinal uint64) ([]float32, error) {
	text, err := idx.store.Text(ordinal)
	if err != nil {
		return nil, err
	}

	vectors, err := idx.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) != idx.man.Dimension {
		return nil, fmt.Errorf("leanvec: provider returned malformed embedding for node %d", ordinal)
	}

	v := vectors[0]
	if idx.metric.NeedsNormalization() {
		if !distance.NormalizeL2InPlace(v) {
			return nil, fmt.Errorf("leanvec: node %d recomputed to a zero vector", ordinal)
		}
	}
	return v, nil
}

// SearchOptions configures a single search.
type SearchOptions struct {
	// Complexity is the traversal beam width. Larger values trade
	// latency for recall. Clamped up to at least k.
	Complexity int

	// MaxVisits bounds how many node embeddings one search may fetch.
	// Zero means no budget.
	MaxVisits int

	// CachedOnly restricts the search to vectors already in the
	// recompute cache. Nodes without a cached vector are skipped and
	// the search degrades instead of calling the provider.
	CachedOnly bool
}

// SearchResult is one search hit.
type SearchResult struct {
	// Chunk is the matched chunk, including its text.
	Chunk chunk.Chunk

	// Score is metric-appropriate: cosine or dot similarity (higher is
	// better) or Euclidean distance (lower is better).
	Score float32
}

// Search embeds the query text and returns the k nearest chunks.
func (idx *Index) Search(ctx context.Context, query string, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}

	vectors, err := idx.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("leanvec: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("leanvec: provider returned %d embeddings for one query", len(vectors))
	}
	return idx.SearchVector(ctx, vectors[0], k, optFns...)
}

// SearchVector returns the k nearest chunks to a caller-supplied query
// vector, closest first. Results are deterministic for a fixed index.
func (idx *Index) SearchVector(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}

	opts := SearchOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	computedBefore := idx.cache.Stats().Computed
	results, stats, err := idx.searchVector(ctx, query, k, &opts)

	recomputed := int(idx.cache.Stats().Computed - computedBefore)
	idx.metrics.RecordSearch(k, stats.Visited, recomputed, time.Since(start), err)
	idx.logger.LogSearch(ctx, k, len(results), stats.Visited, err)
	return results, err
}

func (idx *Index) searchVector(ctx context.Context, query []float32, k int, opts *SearchOptions) ([]SearchResult, searcher.Stats, error) {
	if len(query) != idx.man.Dimension {
		return nil, searcher.Stats{}, &DimensionMismatchError{Expected: idx.man.Dimension, Actual: len(query)}
	}
	if k <= 0 || idx.graph.Count() == 0 {
		return nil, searcher.Stats{}, nil
	}

	q := query
	if idx.metric.NeedsNormalization() {
		normalized, ok := distance.NormalizeL2Copy(query)
		if !ok {
			return nil, searcher.Stats{}, fmt.Errorf("leanvec: query is a zero vector")
		}
		q = normalized
	}

	source := searcher.SourceFunc(func(ctx context.Context, id uint64) ([]float32, bool, error) {
		vec, outcome, err := idx.cache.Get(ctx, id, !opts.CachedOnly)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, false, cerr
			}
			// A single node failing to recompute degrades the search, it
			// does not abort it.
			idx.logger.LogRecomputeSkip(ctx, id, err)
			return nil, false, nil
		}
		return vec, outcome != cache.OutcomeUnavailable, nil
	})

	hits, stats, err := idx.searcher.Search(ctx, source, q, k, func(o *searcher.Options) {
		o.Complexity = opts.Complexity
		o.MaxVisits = opts.MaxVisits
	})
	if err != nil {
		// A cold cache in cached-only mode has nowhere to start; that
		// is an empty answer, not a failure.
		if opts.CachedOnly && errors.Is(err, searcher.ErrEntryUnavailable) {
			return nil, stats, nil
		}
		return nil, stats, err
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		c, err := idx.store.Get(h.Node)
		if err != nil {
			return nil, stats, err
		}
		results[i] = SearchResult{Chunk: c, Score: idx.score(h.Distance)}
	}
	return results, stats, nil
}

// score converts the internal smaller-is-closer distance into the
// public metric-appropriate score.
func (idx *Index) score(dist float32) float32 {
	switch idx.metric {
	case distance.MetricL2:
		return float32(math.Sqrt(float64(dist)))
	default:
		// Cosine and dot similarities were negated internally.
		return -dist
	}
}

// Get returns the chunk with the given caller-assigned id.
func (idx *Index) Get(ctx context.Context, id uint64) (chunk.Chunk, error) {
	if idx.closed.Load() {
		return chunk.Chunk{}, ErrClosed
	}

	ordinal, found, err := idx.store.Ordinal(id)
	if err != nil {
		return chunk.Chunk{}, err
	}
	if !found {
		return chunk.Chunk{}, fmt.Errorf("%w: chunk %d", ErrNotFound, id)
	}
	return idx.store.Get(ordinal)
}

// IndexStats describes an opened index.
type IndexStats struct {
	Dir            string
	Backend        graph.Kind
	Metric         string
	Dimension      int
	ChunkCount     int
	EmbeddingModel string
	Cache          cache.Stats
}

// Stats returns a snapshot of the index and its recompute cache.
func (idx *Index) Stats() IndexStats {
	return IndexStats{
		Dir:            idx.dir,
		Backend:        idx.man.Backend,
		Metric:         idx.man.Metric,
		Dimension:      idx.man.Dimension,
		ChunkCount:     idx.man.ChunkCount,
		EmbeddingModel: idx.man.EmbeddingModel,
		Cache:          idx.cache.Stats(),
	}
}

// WarmCache recomputes and caches the vectors for the given node
// ordinals, typically the entry point region before a latency-critical
// period.
func (idx *Index) WarmCache(ctx context.Context, ordinals []uint64) error {
	if idx.closed.Load() {
		return ErrClosed
	}
	for _, ordinal := range ordinals {
		if _, _, err := idx.cache.Get(ctx, ordinal, true); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the graph and chunk store. Further calls are no-ops.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := idx.graph.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := idx.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
