package vamana

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/graph"
	"github.com/hupe1980/leanvec/internal/mmap"
)

// Graph is a memory-mapped Vamana graph. It satisfies graph.Graph.
// Adjacency reads touch only the pages holding the requested record,
// so memory use stays flat regardless of graph size.
type Graph struct {
	file       *mmap.File
	header     fileHeader
	recordSize int
}

var _ graph.Graph = (*Graph)(nil)

// Open maps the graph file at path.
func Open(path string) (*Graph, error) {
	file, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vamana: open graph: %w", err)
	}

	var header fileHeader
	if err := header.unmarshal(file.Data); err != nil {
		file.Close()
		return nil, err
	}
	if err := header.validate(); err != nil {
		file.Close()
		return nil, err
	}

	recordSize := header.recordSize()
	want := headerSize + int(header.Count)*recordSize
	if len(file.Data) < want {
		file.Close()
		return nil, fmt.Errorf("vamana: graph file truncated: %d bytes, want %d", len(file.Data), want)
	}

	return &Graph{file: file, header: header, recordSize: recordSize}, nil
}

// Neighbors implements graph.Graph. Only level 0 exists.
func (g *Graph) Neighbors(id uint64, level int) ([]uint64, error) {
	if level != 0 {
		return nil, fmt.Errorf("vamana: level %d out of range", level)
	}
	if id >= g.header.Count {
		return nil, fmt.Errorf("vamana: node %d out of range", id)
	}

	off := headerSize + int(id)*g.recordSize
	record := g.file.Data[off : off+g.recordSize]

	degree := binary.LittleEndian.Uint32(record)
	if degree > g.header.R {
		return nil, fmt.Errorf("vamana: node %d has corrupt degree %d", id, degree)
	}

	neighbors := make([]uint64, degree)
	for i := range neighbors {
		neighbors[i] = uint64(binary.LittleEndian.Uint32(record[4+i*4:]))
	}
	return neighbors, nil
}

// EntryPoint implements graph.Graph.
func (g *Graph) EntryPoint() (uint64, int, bool) {
	if g.header.Count == 0 {
		return 0, 0, false
	}
	return g.header.Entry, 0, true
}

// MaxLevel implements graph.Graph. Vamana graphs are single-layer.
func (g *Graph) MaxLevel() int { return 0 }

// Metric implements graph.Graph.
func (g *Graph) Metric() distance.Metric { return distance.Metric(g.header.Metric) }

// Dimension implements graph.Graph.
func (g *Graph) Dimension() int { return int(g.header.Dim) }

// Count implements graph.Graph.
func (g *Graph) Count() int { return int(g.header.Count) }

// MaxDegree returns the R the graph was built with.
func (g *Graph) MaxDegree() int { return int(g.header.R) }

// Close implements graph.Graph.
func (g *Graph) Close() error { return g.file.Close() }
