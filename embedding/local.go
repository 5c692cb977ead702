package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashProvider is a fully local, deterministic provider. Each token is
// hashed into a bucket of the output vector and the result is
// L2-normalized, a classic feature-hashing embedding. It needs no
// network and always produces the same vector for the same text, which
// makes it the default for tests and for offline smoke runs.
//
// Retrieval quality is far below a learned model. Do not use it for
// real search.
type HashProvider struct {
	dim int
}

var _ Provider = (*HashProvider)(nil)

// NewHashProvider creates a hashing provider with the given dimension.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = 64
	}
	return &HashProvider{dim: dim}
}

// Embed implements Provider.
func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = p.embedOne(text)
	}
	return vectors, nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	v := make([]float32, p.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(p.dim))
		// Sign bit keeps hash collisions from only accumulating.
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		v[bucket] += sign
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

// Dimension implements Provider.
func (p *HashProvider) Dimension() int {
	return p.dim
}

// Model implements Provider.
func (p *HashProvider) Model() string {
	return "hash-v1"
}
