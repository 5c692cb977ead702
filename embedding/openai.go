package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const openAIMaxBatch = 100

// Dimensions of the known OpenAI embedding models.
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIOptions configures an OpenAI-compatible provider.
type OpenAIOptions struct {
	// BaseURL overrides the API endpoint. Leave empty for api.openai.com.
	// Any OpenAI-compatible server (Ollama, vLLM, LocalAI) works here.
	BaseURL string

	// Dimension overrides the vector dimension. Required for models not
	// in the built-in table.
	Dimension int

	// RequestsPerSecond throttles API calls. Zero means no throttling.
	RequestsPerSecond float64
}

// OpenAIProvider computes embeddings through the OpenAI embeddings API
// or any compatible endpoint.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	dim     int
	limiter *rate.Limiter
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider for the given model.
func NewOpenAIProvider(apiKey, model string, optFns ...func(o *OpenAIOptions)) (*OpenAIProvider, error) {
	opts := OpenAIOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	dim := opts.Dimension
	if dim == 0 {
		dim = openAIModelDimensions[model]
	}
	if dim == 0 {
		return nil, fmt.Errorf("embedding: unknown model %q, set OpenAIOptions.Dimension", model)
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		dim:     dim,
		limiter: limiter,
	}, nil
}

// Embed implements Provider. Inputs are split into API-sized batches.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIMaxBatch {
		end := min(start+openAIMaxBatch, len(texts))

		vectors, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}

	if err := Validate(p, texts, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: API returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding: API returned out of range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Dimension implements Provider.
func (p *OpenAIProvider) Dimension() int {
	return p.dim
}

// Model implements Provider.
func (p *OpenAIProvider) Model() string {
	return p.model
}
