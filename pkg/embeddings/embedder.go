// Package embeddings
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when embedding generation fails. Callers that can
// degrade (retrieval, backfill workers) match on it with errors.Is.
var ErrEmbedding = errors.New("embedding generation failed")

// Embedder provides text embedding capabilities. Implementations return
// vectors of a fixed dimensionality for the lifetime of the process.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the vector size Embed produces.
	Dimensions() uint

	// Close releases any resources held by the embedder.
	Close() error
}
