package leanvec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/leanvec/chunk"
	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/embedding"
	"github.com/hupe1980/leanvec/graph"
	"github.com/hupe1980/leanvec/graph/hnsw"
	"github.com/hupe1980/leanvec/graph/vamana"
	"github.com/hupe1980/leanvec/internal/atomicio"
	"github.com/hupe1980/leanvec/manifest"
)

// BuildOptions configures an index build.
type BuildOptions struct {
	// Backend selects the graph backend. Defaults to HNSW; choose
	// Vamana for corpora that should not be held in RAM at query time.
	Backend graph.Kind

	// Metric is the distance metric. Cosine inputs are L2-normalized
	// during the build and at query time.
	Metric distance.Metric

	// HNSW tunes the HNSW backend.
	HNSW []func(o *hnsw.Options)

	// Vamana tunes the Vamana backend.
	Vamana []func(o *vamana.Options)

	// EmbedBatchSize is the number of chunk texts per provider call.
	EmbedBatchSize int

	// EmbedConcurrency is the number of provider calls in flight.
	EmbedConcurrency int

	// Logger logs build progress. Defaults to no logging.
	Logger *Logger

	// Metrics records build metrics.
	Metrics MetricsCollector
}

// Build embeds the chunks, constructs the graph and publishes a
// complete index directory at dir.
//
// Everything is written into a hidden staging directory first and
// promoted with one rename, so dir either appears fully formed or not
// at all. dir must not already exist.
func Build(ctx context.Context, dir string, provider embedding.Provider, chunks []chunk.Chunk, optFns ...func(o *BuildOptions)) error {
	opts := BuildOptions{
		Backend:          graph.KindHNSW,
		Metric:           distance.MetricCosine,
		EmbedBatchSize:   64,
		EmbedConcurrency: 4,
		Logger:           NoopLogger(),
		Metrics:          NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 64
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 1
	}

	start := time.Now()
	err := build(ctx, dir, provider, chunks, &opts)
	opts.Metrics.RecordBuild(len(chunks), time.Since(start), err)
	opts.Logger.LogBuild(ctx, dir, len(chunks), time.Since(start), err)
	return err
}

func build(ctx context.Context, dir string, provider embedding.Provider, chunks []chunk.Chunk, opts *BuildOptions) error {
	if len(chunks) == 0 {
		return ErrEmptyCorpus
	}
	if !opts.Backend.Valid() {
		return buildErr("options", fmt.Errorf("unknown backend %q", opts.Backend))
	}
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrIndexExists, dir)
	} else if !os.IsNotExist(err) {
		return err
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return buildErr("staging", err)
	}
	staging, err := os.MkdirTemp(parent, ".leanvec-build-*")
	if err != nil {
		return buildErr("staging", err)
	}
	defer os.RemoveAll(staging)

	if err := writeChunkStore(staging, chunks); err != nil {
		return buildErr("chunks", err)
	}

	vectors, err := embedCorpus(ctx, provider, chunks, opts)
	if err != nil {
		return buildErr("embed", err)
	}

	if opts.Metric.NeedsNormalization() {
		for i, v := range vectors {
			if !distance.NormalizeL2InPlace(v) {
				return buildErr("normalize", fmt.Errorf("chunk %d produced a zero vector", chunks[i].ID))
			}
		}
	}

	graphPath := filepath.Join(staging, manifest.GraphFilename)
	if err := buildGraph(graphPath, vectors, opts); err != nil {
		return buildErr("graph", err)
	}

	man := manifest.New(opts.Backend, opts.Metric, provider.Dimension(), len(chunks), provider.Model())
	for _, name := range []string{manifest.GraphFilename, manifest.ChunksFilename} {
		sum, err := atomicio.ChecksumFile(filepath.Join(staging, name))
		if err != nil {
			return buildErr("checksum", err)
		}
		man.AddChecksum(name, sum)
	}

	// The manifest goes in last: a directory without one is not an
	// index.
	if err := man.Save(staging); err != nil {
		return buildErr("manifest", err)
	}

	if err := atomicio.PublishDir(staging, dir); err != nil {
		return buildErr("publish", err)
	}
	return nil
}

func writeChunkStore(staging string, chunks []chunk.Chunk) error {
	store, err := chunk.Create(filepath.Join(staging, manifest.ChunksFilename))
	if err != nil {
		return err
	}
	if err := store.Append(chunks); err != nil {
		store.Close()
		return err
	}
	return store.Close()
}

// embedCorpus computes all chunk embeddings, batched and in parallel.
// Row i of the result belongs to chunks[i].
func embedCorpus(ctx context.Context, provider embedding.Provider, chunks []chunk.Chunk, opts *BuildOptions) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.EmbedConcurrency)

	for start := 0; start < len(chunks); start += opts.EmbedBatchSize {
		end := min(start+opts.EmbedBatchSize, len(chunks))

		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text
			}

			batch, err := provider.Embed(gctx, texts)
			opts.Logger.LogEmbedBatch(gctx, start, len(texts), err)
			if err != nil {
				return err
			}
			if err := embedding.Validate(provider, texts, batch); err != nil {
				return err
			}

			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func buildGraph(path string, vectors [][]float32, opts *BuildOptions) error {
	switch opts.Backend {
	case graph.KindHNSW:
		g, err := hnsw.Build(vectors, opts.Metric, opts.HNSW...)
		if err != nil {
			return err
		}
		return g.Save(path)
	case graph.KindVamana:
		built, err := vamana.Build(vectors, opts.Metric, opts.Vamana...)
		if err != nil {
			return err
		}
		return built.Save(path)
	default:
		return fmt.Errorf("unknown backend %q", opts.Backend)
	}
}
