package testutils

import (
	"context"
	"fmt"

	"github.com/emberworks/chronicle/pkg/embeddings"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// Dims is the reported dimensionality. Defaults to 3.
	Dims uint

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// FailAll causes every Embed call to fail
	FailAll bool

	// Calls records every embedded text in order
	Calls []string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dims:       3,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.Calls = append(m.Calls, text)

	if m.FailAll || (m.FailOn != "" && text == m.FailOn) {
		return nil, fmt.Errorf("%w: mock failure for: %s", embeddings.ErrEmbedding, text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	vec := make([]float32, m.Dims)
	for i := range vec {
		vec[i] = 0.1 * float32(i+1)
	}
	return vec, nil
}

func (m *MockEmbedder) Dimensions() uint {
	return m.Dims
}

func (m *MockEmbedder) Close() error {
	return nil
}
