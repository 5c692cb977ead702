package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/internal/atomicio"
)

// Artifact layout: a 4-byte magic and a version, then an LZ4 frame
// holding the graph header and per-node adjacency lists.
var fileMagic = [4]byte{'L', 'N', 'V', 'H'}

const formatVersion uint32 = 1

// WriteTo serializes the graph. It implements io.WriterTo.
func (g *Graph) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	if _, err := cw.Write(fileMagic[:]); err != nil {
		return cw.n, err
	}
	if err := binary.Write(cw, binary.LittleEndian, formatVersion); err != nil {
		return cw.n, err
	}

	zw := lz4.NewWriter(cw)
	bw := bufio.NewWriter(zw)

	header := []any{
		uint8(g.metric),
		uint32(g.dim),
		uint64(len(g.nodes)),
		g.entry,
		uint32(g.maxLevel),
	}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return cw.n, err
		}
	}

	for _, n := range g.nodes {
		if err := binary.Write(bw, binary.LittleEndian, uint32(n.level)); err != nil {
			return cw.n, err
		}
		for _, conns := range n.conns {
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(conns))); err != nil {
				return cw.n, err
			}
			if err := binary.Write(bw, binary.LittleEndian, conns); err != nil {
				return cw.n, err
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	if err := zw.Close(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// Save writes the graph to path atomically.
func (g *Graph) Save(path string) error {
	return atomicio.SaveToFile(path, func(w io.Writer) error {
		_, err := g.WriteTo(w)
		return err
	})
}

// ReadFrom deserializes a graph written by WriteTo.
func ReadFrom(r io.Reader) (*Graph, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("hnsw: read magic: %w", err)
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("hnsw: bad magic %q", magic)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("hnsw: read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("hnsw: unsupported format version %d", version)
	}

	br := bufio.NewReader(lz4.NewReader(r))

	var (
		metric   uint8
		dim      uint32
		count    uint64
		entry    uint64
		maxLevel uint32
	)
	for _, v := range []any{&metric, &dim, &count, &entry, &maxLevel} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("hnsw: read header: %w", err)
		}
	}

	g := &Graph{
		metric:   distance.Metric(metric),
		dim:      int(dim),
		nodes:    make([]node, count),
		entry:    entry,
		maxLevel: int(maxLevel),
	}

	for i := range g.nodes {
		var level uint32
		if err := binary.Read(br, binary.LittleEndian, &level); err != nil {
			return nil, fmt.Errorf("hnsw: read node %d: %w", i, err)
		}

		conns := make([][]uint64, level+1)
		for l := range conns {
			var n uint32
			if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
				return nil, fmt.Errorf("hnsw: read node %d layer %d: %w", i, l, err)
			}
			layer := make([]uint64, n)
			if err := binary.Read(br, binary.LittleEndian, layer); err != nil {
				return nil, fmt.Errorf("hnsw: read node %d layer %d: %w", i, l, err)
			}
			conns[l] = layer
		}
		g.nodes[i] = node{level: int(level), conns: conns}
	}

	return g, nil
}

// Load reads a graph artifact from disk.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadFrom(f)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
