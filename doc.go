// Package leanvec is a personal-scale semantic search engine built on
// selective recomputation.
//
// A conventional vector database persists one embedding per chunk,
// which for small-document corpora quickly outweighs the text itself.
// Leanvec stores only two artifacts: a proximity graph over chunk
// ordinals and the raw chunk text. Embeddings are recomputed on demand
// for the handful of nodes a search actually visits, traded against
// query latency by a bounded recompute cache.
//
// # Building an index
//
//	provider, _ := embedding.NewOpenAIProvider(apiKey, "text-embedding-3-small")
//	err := leanvec.Build(ctx, "./notes.idx", provider, chunks)
//
// Builds are atomic: the directory appears fully formed or not at all,
// and an existing index is never overwritten.
//
// # Searching
//
//	idx, _ := leanvec.Open(ctx, "./notes.idx", provider)
//	defer idx.Close()
//
//	results, _ := idx.Search(ctx, "how do I rotate the API key", 5)
//	for _, r := range results {
//	    fmt.Println(r.Score, r.Chunk.Text)
//	}
//
// # Backends
//
// Two graph backends are available. HNSW keeps the graph in memory and
// is the default. Vamana keeps it on disk behind a memory map, with
// fixed-size node records so adjacency lookups stay O(1); pick it when
// the graph itself should not occupy RAM.
//
// # Tuning
//
// Search quality is controlled per query by SearchOptions.Complexity,
// the traversal beam width. SearchOptions.MaxVisits caps recompute
// cost, and SearchOptions.CachedOnly answers from cached vectors
// alone.
package leanvec
