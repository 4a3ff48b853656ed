// Package openai implements pkg/embeddings' Embedder on the OpenAI
// embeddings API, including OpenAI-compatible gateways via BaseURL.
package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/emberworks/chronicle/pkg/embeddings"
)

// DefaultEmbeddingModel is the default model used for embeddings.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder wraps the OpenAI embeddings API.
type Embedder struct {
	client *goopenai.Client
	model  string
	dims   uint
}

// EmbedderConfig holds configuration for the OpenAI embedder.
type EmbedderConfig struct {
	// APIKey authenticates against the API.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible providers.
	// Empty means api.openai.com.
	BaseURL string

	// Model is the embedding model. Defaults to DefaultEmbeddingModel.
	Model string

	// Dimensions is the requested vector size, passed through to models
	// that support shortened embeddings.
	Dimensions uint
}

// NewEmbedder creates a new embedder using the OpenAI embeddings API.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:      []string{text},
		Model:      goopenai.EmbeddingModel(e.model),
		Dimensions: int(e.dims),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embeddings.ErrEmbedding, err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", embeddings.ErrEmbedding)
	}

	vec := resp.Data[0].Embedding
	if uint(len(vec)) != e.dims {
		return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d",
			embeddings.ErrEmbedding, len(vec), e.dims)
	}

	return vec, nil
}

// Dimensions reports the configured vector size.
func (e *Embedder) Dimensions() uint {
	return e.dims
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
