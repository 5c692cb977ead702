package leanvec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/leanvec/chunk"
	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/embedding"
	"github.com/hupe1980/leanvec/graph"
	"github.com/hupe1980/leanvec/manifest"
	"github.com/hupe1980/leanvec/testutil"
)

var backends = []graph.Kind{graph.KindHNSW, graph.KindVamana}

// planeProvider places three chunks at known 2D coordinates.
func planeProvider() *testutil.StaticProvider {
	return &testutil.StaticProvider{
		Dim: 2,
		Vectors: map[string][]float32{
			"alpha": {0, 0},
			"beta":  {1, 0},
			"gamma": {10, 10},
			"query": {0.1, 0},
		},
	}
}

func planeChunks() []chunk.Chunk {
	return []chunk.Chunk{
		{ID: 1, Text: "alpha", Source: chunk.SourceRef{Document: "d", Start: 0, End: 5}},
		{ID: 2, Text: "beta", Source: chunk.SourceRef{Document: "d", Start: 5, End: 9}},
		{ID: 3, Text: "gamma", Source: chunk.SourceRef{Document: "d", Start: 9, End: 14}},
	}
}

func buildPlane(t *testing.T, backend graph.Kind) (string, *testutil.StaticProvider) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "idx")
	provider := planeProvider()
	err := Build(context.Background(), dir, provider, planeChunks(), func(o *BuildOptions) {
		o.Backend = backend
		o.Metric = distance.MetricL2
	})
	require.NoError(t, err)
	return dir, provider
}

func openPlane(t *testing.T, backend graph.Kind) *Index {
	t.Helper()
	dir, provider := buildPlane(t, backend)
	idx, err := Open(context.Background(), dir, provider)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBuildOpenSearch(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			idx := openPlane(t, backend)

			results, err := idx.Search(context.Background(), "query", 2)
			require.NoError(t, err)
			require.Len(t, results, 2)

			assert.Equal(t, uint64(1), results[0].Chunk.ID)
			assert.Equal(t, "alpha", results[0].Chunk.Text)
			assert.Equal(t, uint64(2), results[1].Chunk.ID)

			// L2 scores are Euclidean distances.
			assert.InDelta(t, 0.1, results[0].Score, 1e-5)
			assert.InDelta(t, 0.9, results[1].Score, 1e-5)
		})
	}
}

func TestSearchKEdgeCases(t *testing.T) {
	idx := openPlane(t, graph.KindHNSW)

	results, err := idx.Search(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), "query", 100)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestBuildEmptyCorpus(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	err := Build(context.Background(), dir, planeProvider(), nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "no directory may be left behind")
}

func TestBuildRefusesExistingIndex(t *testing.T) {
	dir, provider := buildPlane(t, graph.KindHNSW)

	err := Build(context.Background(), dir, provider, planeChunks(), func(o *BuildOptions) {
		o.Metric = distance.MetricL2
	})
	assert.ErrorIs(t, err, ErrIndexExists)
}

func TestBuildDuplicateChunkIDs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	chunks := []chunk.Chunk{
		{ID: 1, Text: "alpha"},
		{ID: 1, Text: "beta"},
	}
	err := Build(context.Background(), dir, planeProvider(), chunks, func(o *BuildOptions) {
		o.Metric = distance.MetricL2
	})
	require.Error(t, err)

	var be *BuildError
	assert.ErrorAs(t, err, &be)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildFailedEmbedLeavesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	provider := &testutil.FailingProvider{Dim: 2, ModelID: "static-test"}

	err := Build(context.Background(), dir, provider, planeChunks())
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrUnavailable)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "failed build must not publish")
}

func TestOpenRequiresManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.GraphFilename), []byte("junk"), 0o644))

	_, err := Open(context.Background(), dir, planeProvider())
	require.Error(t, err)

	var ie *IntegrityError
	assert.ErrorAs(t, err, &ie)
}

func TestOpenDetectsCorruptArtifact(t *testing.T) {
	dir, provider := buildPlane(t, graph.KindHNSW)

	path := filepath.Join(dir, manifest.GraphFilename)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(context.Background(), dir, provider)
	require.Error(t, err)

	var ie *IntegrityError
	assert.ErrorAs(t, err, &ie)
}

func TestOpenRejectsMismatchedProvider(t *testing.T) {
	dir, _ := buildPlane(t, graph.KindHNSW)

	// Wrong model name.
	_, err := Open(context.Background(), dir, embedding.NewHashProvider(2))
	var pm *ProviderMismatchError
	assert.ErrorAs(t, err, &pm)

	// Right model name, wrong dimension.
	wrongDim := &testutil.StaticProvider{Dim: 3, Vectors: map[string][]float32{}}
	_, err = Open(context.Background(), dir, wrongDim)
	var dm *DimensionMismatchError
	assert.ErrorAs(t, err, &dm)
}

func TestSearchDeterministic(t *testing.T) {
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "idx")
			provider := embedding.NewHashProvider(32)
			chunks := testutil.Corpus(200)

			require.NoError(t, Build(context.Background(), dir, provider, chunks, func(o *BuildOptions) {
				o.Backend = backend
			}))

			idx, err := Open(context.Background(), dir, provider)
			require.NoError(t, err)
			defer idx.Close()

			first, err := idx.Search(context.Background(), "topic 3 subject 5", 10)
			require.NoError(t, err)
			require.NotEmpty(t, first)

			for i := 0; i < 5; i++ {
				again, err := idx.Search(context.Background(), "topic 3 subject 5", 10)
				require.NoError(t, err)
				require.Equal(t, first, again)
			}
		})
	}
}

func TestCacheIsTransparent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	provider := embedding.NewHashProvider(32)
	require.NoError(t, Build(context.Background(), dir, provider, testutil.Corpus(100)))

	idx, err := Open(context.Background(), dir, provider)
	require.NoError(t, err)
	defer idx.Close()

	cold, err := idx.Search(context.Background(), "topic 2", 5)
	require.NoError(t, err)

	statsAfterCold := idx.Stats().Cache
	assert.Greater(t, statsAfterCold.Computed, int64(0))

	warm, err := idx.Search(context.Background(), "topic 2", 5)
	require.NoError(t, err)
	assert.Equal(t, cold, warm, "cache state must not change results")

	statsAfterWarm := idx.Stats().Cache
	assert.Greater(t, statsAfterWarm.Hits, statsAfterCold.Hits)
}

func TestNoDuplicateRecomputation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	base := embedding.NewHashProvider(32)
	require.NoError(t, Build(context.Background(), dir, base, testutil.Corpus(100)))

	counting := &testutil.CountingProvider{Provider: base}
	idx, err := Open(context.Background(), dir, counting)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Search(context.Background(), "topic 1", 5)
	require.NoError(t, err)

	// One call per visited node plus one for the query text.
	stats := idx.Stats().Cache
	assert.Equal(t, stats.Computed+1, counting.Calls.Load())

	// A repeat query embeds the query text again but recomputes no
	// node the cache already holds.
	callsBefore := counting.Calls.Load()
	computedBefore := idx.Stats().Cache.Computed

	_, err = idx.Search(context.Background(), "topic 1", 5)
	require.NoError(t, err)

	newComputes := idx.Stats().Cache.Computed - computedBefore
	assert.Equal(t, newComputes+1, counting.Calls.Load()-callsBefore)
	assert.Zero(t, newComputes)
}

func TestCachedOnlySearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	provider := embedding.NewHashProvider(32)
	require.NoError(t, Build(context.Background(), dir, provider, testutil.Corpus(100)))

	idx, err := Open(context.Background(), dir, provider)
	require.NoError(t, err)
	defer idx.Close()

	cachedOnly := func(o *SearchOptions) { o.CachedOnly = true }

	// Cold cache: nothing to traverse, empty answer, no error.
	results, err := idx.Search(context.Background(), "topic 4", 5, cachedOnly)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Warm the cache with a normal search, then cached-only finds hits.
	_, err = idx.Search(context.Background(), "topic 4", 5)
	require.NoError(t, err)

	computedBefore := idx.Stats().Cache.Computed
	results, err = idx.Search(context.Background(), "topic 4", 5, cachedOnly)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, computedBefore, idx.Stats().Cache.Computed, "cached-only must not recompute")
}

func TestSearchVectorDimensionMismatch(t *testing.T) {
	idx := openPlane(t, graph.KindHNSW)

	_, err := idx.SearchVector(context.Background(), []float32{1, 2, 3}, 1)
	var dm *DimensionMismatchError
	assert.ErrorAs(t, err, &dm)
}

func TestSearchVisitBudget(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	provider := embedding.NewHashProvider(32)
	require.NoError(t, Build(context.Background(), dir, provider, testutil.Corpus(200)))

	idx, err := Open(context.Background(), dir, provider)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Search(context.Background(), "topic 0", 5, func(o *SearchOptions) {
		o.MaxVisits = 10
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, idx.Stats().Cache.Computed, int64(10))
}

func TestGet(t *testing.T) {
	idx := openPlane(t, graph.KindHNSW)

	c, err := idx.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "beta", c.Text)

	_, err = idx.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWarmCache(t *testing.T) {
	idx := openPlane(t, graph.KindHNSW)

	require.NoError(t, idx.WarmCache(context.Background(), []uint64{0, 1, 2}))
	assert.Equal(t, int64(3), idx.Stats().Cache.Computed)

	results, err := idx.Search(context.Background(), "query", 2, func(o *SearchOptions) {
		o.CachedOnly = true
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestStats(t *testing.T) {
	idx := openPlane(t, graph.KindVamana)

	stats := idx.Stats()
	assert.Equal(t, graph.KindVamana, stats.Backend)
	assert.Equal(t, "L2", stats.Metric)
	assert.Equal(t, 2, stats.Dimension)
	assert.Equal(t, 3, stats.ChunkCount)
	assert.Equal(t, "static-test", stats.EmbeddingModel)
}

func TestClose(t *testing.T) {
	dir, provider := buildPlane(t, graph.KindHNSW)
	idx, err := Open(context.Background(), dir, provider)
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close(), "close is idempotent")

	_, err = idx.Search(context.Background(), "query", 1)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = idx.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCosineBuildAndSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	provider := &testutil.StaticProvider{
		Dim: 2,
		Vectors: map[string][]float32{
			"east":      {5, 0},
			"northeast": {3, 3},
			"north":     {0, 7},
			"query":     {1, 0.1},
		},
	}
	chunks := []chunk.Chunk{
		{ID: 1, Text: "east"},
		{ID: 2, Text: "northeast"},
		{ID: 3, Text: "north"},
	}
	require.NoError(t, Build(context.Background(), dir, provider, chunks, func(o *BuildOptions) {
		o.Metric = distance.MetricCosine
	}))

	idx, err := Open(context.Background(), dir, provider)
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Cosine scores are similarities: higher is better, east first.
	assert.Equal(t, uint64(1), results[0].Chunk.ID)
	assert.Equal(t, uint64(2), results[1].Chunk.ID)
	assert.Equal(t, uint64(3), results[2].Chunk.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
}

// selectiveProvider fails recomputation for one specific text.
type selectiveProvider struct {
	*testutil.StaticProvider
	failText string
}

func (p *selectiveProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if text == p.failText {
			return nil, fmt.Errorf("%w: simulated outage", embedding.ErrUnavailable)
		}
	}
	return p.StaticProvider.Embed(ctx, texts)
}

func TestSearchSkipsFailedRecomputation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	static := &testutil.StaticProvider{
		Dim: 2,
		Vectors: map[string][]float32{
			"alpha": {1, 0},
			"beta":  {0, 0},
			"gamma": {2, 0},
			"query": {2, 0},
		},
	}
	chunks := []chunk.Chunk{
		{ID: 1, Text: "alpha"},
		{ID: 2, Text: "beta"},
		{ID: 3, Text: "gamma"},
	}
	// Vamana enters at the medoid, which is alpha here, so a failure on
	// beta cannot strand the traversal at its entry point.
	require.NoError(t, Build(context.Background(), dir, static, chunks, func(o *BuildOptions) {
		o.Backend = graph.KindVamana
		o.Metric = distance.MetricL2
	}))

	idx, err := Open(context.Background(), dir, &selectiveProvider{StaticProvider: static, failText: "beta"})
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "query", 3)
	require.NoError(t, err, "one bad node must not fail the search")
	require.Len(t, results, 2)
	assert.Equal(t, uint64(3), results[0].Chunk.ID)
	assert.Equal(t, uint64(1), results[1].Chunk.ID)
}

func TestProviderFailureDuringSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	base := embedding.NewHashProvider(16)
	require.NoError(t, Build(context.Background(), dir, base, testutil.Corpus(20), func(o *BuildOptions) {
		o.Metric = distance.MetricL2
	}))

	failing := &testutil.FailingProvider{Dim: 16, ModelID: base.Model()}
	idx, err := Open(context.Background(), dir, failing)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Search(context.Background(), "topic 1", 3)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	// Cached-only still answers, just with nothing.
	results, err := idx.SearchVector(context.Background(), make([]float32, 16), 3, func(o *SearchOptions) {
		o.CachedOnly = true
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}
