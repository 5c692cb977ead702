// Package manifest defines the index directory manifest.
//
// The manifest is written last during a build and required first at
// open. A directory without a valid manifest is not an index, which is
// what makes the build-then-publish sequence atomic: readers either
// see a complete index or none at all.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/leanvec/distance"
	"github.com/hupe1980/leanvec/graph"
	"github.com/hupe1980/leanvec/internal/atomicio"
)

// Artifact filenames within an index directory.
const (
	Filename       = "manifest.json"
	GraphFilename  = "index.graph"
	ChunksFilename = "chunks.db"
)

// Version is the current manifest schema version.
const Version = 1

// Manifest records everything needed to open and validate an index.
type Manifest struct {
	Version        int               `json:"version"`
	Backend        graph.Kind        `json:"backend"`
	Metric         string            `json:"metric"`
	Dimension      int               `json:"dimension"`
	ChunkCount     int               `json:"chunk_count"`
	EmbeddingModel string            `json:"embedding_model"`
	CreatedAt      time.Time         `json:"created_at"`
	Checksums      map[string]uint32 `json:"checksums"`
}

// New creates a manifest for the given build outputs.
func New(backend graph.Kind, metric distance.Metric, dim, chunkCount int, model string) *Manifest {
	return &Manifest{
		Version:        Version,
		Backend:        backend,
		Metric:         metric.String(),
		Dimension:      dim,
		ChunkCount:     chunkCount,
		EmbeddingModel: model,
		CreatedAt:      time.Now().UTC(),
		Checksums:      make(map[string]uint32),
	}
}

// ParseMetric returns the manifest's metric.
func (m *Manifest) ParseMetric() (distance.Metric, error) {
	return distance.ParseMetric(m.Metric)
}

// Validate checks internal consistency.
func (m *Manifest) Validate() error {
	if m.Version != Version {
		return fmt.Errorf("manifest: unsupported version %d", m.Version)
	}
	if !m.Backend.Valid() {
		return fmt.Errorf("manifest: unknown backend %q", m.Backend)
	}
	if _, err := m.ParseMetric(); err != nil {
		return err
	}
	if m.Dimension <= 0 {
		return fmt.Errorf("manifest: invalid dimension %d", m.Dimension)
	}
	if m.ChunkCount < 0 {
		return fmt.Errorf("manifest: invalid chunk count %d", m.ChunkCount)
	}
	if m.EmbeddingModel == "" {
		return fmt.Errorf("manifest: embedding model missing")
	}
	return nil
}

// AddChecksum records the checksum of an artifact file.
func (m *Manifest) AddChecksum(name string, sum uint32) {
	m.Checksums[name] = sum
}

// VerifyChecksums recomputes artifact checksums under dir and compares
// them against the recorded values.
func (m *Manifest) VerifyChecksums(dir string) error {
	for name, want := range m.Checksums {
		got, err := atomicio.ChecksumFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("manifest: checksum %s: %w", name, err)
		}
		if got != want {
			return fmt.Errorf("manifest: artifact %s: %w", name, &atomicio.ChecksumMismatchError{Expected: want, Actual: got})
		}
	}
	return nil
}

// Save writes the manifest into dir atomically.
func (m *Manifest) Save(dir string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return atomicio.SaveToFile(filepath.Join(dir, Filename), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// Load reads and validates the manifest in dir.
func Load(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
