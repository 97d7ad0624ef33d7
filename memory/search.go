package memory

import (
	"context"
	"fmt"

	"cortex/domain"

	usearch "github.com/unum-cloud/usearch/golang"
)

// Search returns the user's memories most semantically similar to the query,
// best first. The index is ephemeral: memories are few enough per user that
// rebuilding it from (cached) embeddings on each call beats maintaining a
// persistent vector index.
func (e *Engine) Search(ctx context.Context, userId, query string, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	memories, err := e.storage.GetMemories(ctx, userId, domain.MemoryQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	if len(memories) == 0 {
		return nil, nil
	}

	inputs := make([]string, 0, len(memories)+1)
	inputs = append(inputs, query)
	for _, memory := range memories {
		inputs = append(inputs, memory.Content)
	}
	vectors, err := e.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search inputs: %w", err)
	}
	queryVector, memoryVectors := vectors[0], vectors[1:]

	conf := usearch.DefaultConfig(uint(len(queryVector)))
	index, err := usearch.NewIndex(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	defer index.Destroy()

	if err := index.Reserve(uint(len(memoryVectors))); err != nil {
		return nil, fmt.Errorf("failed to reserve search index: %w", err)
	}
	for i, vector := range memoryVectors {
		if err := index.Add(usearch.Key(i), vector); err != nil {
			return nil, fmt.Errorf("failed to add to search index: %w", err)
		}
	}

	if limit > len(memories) {
		limit = len(memories)
	}
	keys, _, err := index.Search(queryVector, uint(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]domain.Memory, 0, len(keys))
	for _, key := range keys {
		results = append(results, memories[key])
	}
	return results, nil
}
