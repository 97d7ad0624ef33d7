package embedding

import (
	"context"
	"fmt"
	"sync"
)

// MockEmbedder returns canned vectors by input text, for tests. When an
// input has no canned vector, Default is used; a nil Default is an error so
// tests notice unexpected inputs.
type MockEmbedder struct {
	Vectors map[string]EmbeddingVector
	Default EmbeddingVector

	mu    sync.Mutex
	calls [][]string
}

var _ Embedder = (*MockEmbedder)(nil)

func (m *MockEmbedder) Embed(ctx context.Context, inputs []string) ([]EmbeddingVector, error) {
	m.mu.Lock()
	m.calls = append(m.calls, inputs)
	m.mu.Unlock()

	vectors := make([]EmbeddingVector, len(inputs))
	for i, input := range inputs {
		if vector, ok := m.Vectors[input]; ok {
			vectors[i] = vector
			continue
		}
		if m.Default == nil {
			return nil, fmt.Errorf("mock embedder has no vector for input: %q", input)
		}
		vectors[i] = m.Default
	}
	return vectors, nil
}

// Calls returns each batch of inputs the embedder saw.
func (m *MockEmbedder) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}
