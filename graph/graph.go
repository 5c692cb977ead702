// Package graph defines the common contract for persisted proximity
// graphs.
//
// A graph stores adjacency over node ordinals and nothing else. Vectors
// never appear in a graph artifact; the searcher obtains them from a
// recompute source at query time.
package graph

import "github.com/hupe1980/leanvec/distance"

// Kind identifies a graph backend.
type Kind string

const (
	// KindHNSW is the in-memory multi-layer backend.
	KindHNSW Kind = "hnsw"

	// KindVamana is the disk-resident single-layer backend.
	KindVamana Kind = "vamana"
)

// Valid reports whether k names a known backend.
func (k Kind) Valid() bool {
	return k == KindHNSW || k == KindVamana
}

// Graph is a read-only proximity graph over node ordinals 0..Count()-1.
//
// Implementations must be safe for concurrent readers.
type Graph interface {
	// Neighbors returns the adjacency list of the node at the given
	// level. Single-layer backends only accept level 0. The returned
	// slice must not be modified.
	Neighbors(id uint64, level int) ([]uint64, error)

	// EntryPoint returns the search entry node and its top level.
	// ok is false for an empty graph.
	EntryPoint() (id uint64, level int, ok bool)

	// MaxLevel returns the highest populated level. Single-layer
	// backends return 0.
	MaxLevel() int

	// Metric returns the distance metric the graph was built with.
	Metric() distance.Metric

	// Dimension returns the embedding dimension the graph was built with.
	Dimension() int

	// Count returns the number of nodes.
	Count() int

	// Close releases backend resources such as memory maps.
	Close() error
}
