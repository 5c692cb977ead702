// Package testutil provides fixtures shared by tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/leanvec/chunk"
	"github.com/hupe1980/leanvec/embedding"
)

// Corpus returns n chunks with distinct deterministic texts and ids
// starting at 1000.
func Corpus(n int) []chunk.Chunk {
	chunks := make([]chunk.Chunk, n)
	for i := range chunks {
		chunks[i] = chunk.Chunk{
			ID:         uint64(1000 + i),
			Text:       fmt.Sprintf("document %d talks about topic %d and subject %d", i, i%7, i%13),
			Source:     chunk.SourceRef{Document: fmt.Sprintf("doc-%d", i/10), Start: i * 100, End: i*100 + 80},
			TokenCount: 12,
		}
	}
	return chunks
}

// StaticProvider serves fixed vectors by exact text lookup. It lets a
// test place chunks at known coordinates.
type StaticProvider struct {
	Vectors map[string][]float32
	Dim     int
}

var _ embedding.Provider = (*StaticProvider)(nil)

// Embed implements embedding.Provider.
func (p *StaticProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := p.Vectors[text]
		if !ok {
			return nil, fmt.Errorf("testutil: no vector for text %q", text)
		}
		out[i] = v
	}
	return out, nil
}

// Dimension implements embedding.Provider.
func (p *StaticProvider) Dimension() int { return p.Dim }

// Model implements embedding.Provider.
func (p *StaticProvider) Model() string { return "static-test" }

// CountingProvider wraps a provider and counts Embed calls and texts.
type CountingProvider struct {
	embedding.Provider

	Calls atomic.Int64
	Texts atomic.Int64
}

// Embed implements embedding.Provider.
func (p *CountingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.Calls.Add(1)
	p.Texts.Add(int64(len(texts)))
	return p.Provider.Embed(ctx, texts)
}

// FailingProvider fails every Embed call with ErrUnavailable.
type FailingProvider struct {
	Dim     int
	ModelID string
}

var _ embedding.Provider = (*FailingProvider)(nil)

// Embed implements embedding.Provider.
func (p *FailingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: endpoint is down", embedding.ErrUnavailable)
}

// Dimension implements embedding.Provider.
func (p *FailingProvider) Dimension() int { return p.Dim }

// Model implements embedding.Provider.
func (p *FailingProvider) Model() string { return p.ModelID }
