// Package cache wraps an Embedder with a read-through cache keyed on the
// normalized input text. Cache failures are logged and swallowed; the
// upstream embedder is the source of truth.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/embeddings"
)

// Backend stores embedding vectors under opaque string keys.
type Backend interface {
	// Get returns the cached vector and whether it was present.
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Set stores a vector under key.
	Set(ctx context.Context, key string, vec []float32) error

	// Close releases backend resources.
	Close() error
}

// Embedder decorates an upstream embedder with a Backend.
type Embedder struct {
	upstream embeddings.Embedder
	backend  Backend
	logger   *zap.Logger
}

// NewEmbedder wraps upstream with backend.
func NewEmbedder(upstream embeddings.Embedder, backend Backend, logger *zap.Logger) *Embedder {
	return &Embedder{upstream: upstream, backend: backend, logger: logger}
}

// Normalize canonicalizes text for cache keying: lowercase, runs of
// whitespace collapsed to single spaces, leading and trailing whitespace
// trimmed. Texts differing only in case or spacing share a cache entry.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Key derives the cache key for a text. The key includes the embedder's
// dimensionality so a reconfigured deployment never reads stale vectors.
func (e *Embedder) Key(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return fmt.Sprintf("emb:%d:%s", e.upstream.Dimensions(), hex.EncodeToString(sum[:]))
}

// Embed returns the cached vector when present, otherwise calls upstream
// and stores the result.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.Key(text)

	vec, ok, err := e.backend.Get(ctx, key)
	if err != nil {
		e.logger.Warn("embedding cache read failed", zap.Error(err))
	}
	if ok {
		return vec, nil
	}

	vec, err = e.upstream.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.backend.Set(ctx, key, vec); err != nil {
		e.logger.Warn("embedding cache write failed", zap.Error(err))
	}
	return vec, nil
}

// Dimensions reports the upstream vector size.
func (e *Embedder) Dimensions() uint {
	return e.upstream.Dimensions()
}

// Close releases the backend and the upstream embedder.
func (e *Embedder) Close() error {
	if err := e.backend.Close(); err != nil {
		e.logger.Warn("closing embedding cache backend", zap.Error(err))
	}
	return e.upstream.Close()
}

var _ embeddings.Embedder = (*Embedder)(nil)
