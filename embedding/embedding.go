// Package embedding defines the embedding provider contract and its
// implementations.
//
// A Provider turns chunk text into fixed-dimension float32 vectors. The
// same provider configuration must be used at build time and at query
// time; an index records the provider's model name and dimension so that
// a mismatched provider is rejected before it can silently corrupt
// search results.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates that the provider cannot serve embeddings
// right now, for example a remote endpoint being unreachable. Callers
// may fall back to cached vectors when they see this error.
var ErrUnavailable = errors.New("embedding: provider unavailable")

// Provider computes embedding vectors for texts.
//
// Embed must return exactly one vector per input text, in input order,
// each of length Dimension(). Implementations must be safe for
// concurrent use.
type Provider interface {
	// Embed computes embeddings for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension this provider produces.
	Dimension() int

	// Model returns a stable identifier for the underlying model.
	Model() string
}

// Validate checks that a provider response matches the request shape.
func Validate(p Provider, texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding: provider %s returned %d vectors for %d texts", p.Model(), len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != p.Dimension() {
			return fmt.Errorf("embedding: provider %s returned vector of dimension %d at index %d, want %d", p.Model(), len(v), i, p.Dimension())
		}
	}
	return nil
}
