package leanvec_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/leanvec"
	"github.com/hupe1980/leanvec/chunk"
	"github.com/hupe1980/leanvec/embedding"
	"github.com/hupe1980/leanvec/graph"
)

func Example() {
	ctx := context.Background()
	provider := embedding.NewHashProvider(64)

	chunks := []chunk.Chunk{
		{ID: 1, Text: "the cache is bounded and evicts by recency"},
		{ID: 2, Text: "builds publish atomically with a single rename"},
		{ID: 3, Text: "vectors are recomputed for visited nodes only"},
	}

	if err := leanvec.Build(ctx, "./notes.idx", provider, chunks); err != nil {
		log.Fatal(err)
	}

	idx, err := leanvec.Open(ctx, "./notes.idx", provider)
	if err != nil {
		log.Fatal(err)
	}
	defer idx.Close()

	results, err := idx.Search(ctx, "how are embeddings stored", 2)
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range results {
		fmt.Println(r.Chunk.ID, r.Score)
	}
}

func ExampleBuild_vamana() {
	ctx := context.Background()
	provider := embedding.NewHashProvider(64)

	err := leanvec.Build(ctx, "./big.idx", provider, loadChunks(), func(o *leanvec.BuildOptions) {
		o.Backend = graph.KindVamana
	})
	if err != nil {
		log.Fatal(err)
	}
}

func ExampleIndex_Search_cachedOnly() {
	ctx := context.Background()
	provider := embedding.NewHashProvider(64)

	idx, err := leanvec.Open(ctx, "./notes.idx", provider)
	if err != nil {
		log.Fatal(err)
	}
	defer idx.Close()

	// Answer from already cached vectors only; recall degrades but no
	// provider call is made.
	results, err := idx.Search(ctx, "release checklist", 5, func(o *leanvec.SearchOptions) {
		o.CachedOnly = true
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(results))
}

func loadChunks() []chunk.Chunk {
	return []chunk.Chunk{{ID: 1, Text: "placeholder"}}
}
