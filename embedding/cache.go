package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	"cortex/common"

	"github.com/kelindar/binary"
	"github.com/rs/zerolog/log"
)

// CachedEmbedder fronts another embedder with a content-keyed cache in the kv
// store. Keys hash the input text, so the same content never hits the API
// twice and deduplication passes only ever see precomputed vectors.
type CachedEmbedder struct {
	Embedder Embedder
	Storage  common.KeyValueStorage
	Model    string
}

var _ Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(embedder Embedder, storage common.KeyValueStorage, model string) *CachedEmbedder {
	return &CachedEmbedder{Embedder: embedder, Storage: storage, Model: model}
}

// cacheUserId scopes embedding cache rows in the kv store. Vectors depend
// only on content, not on who triggered the embedding.
const cacheUserId = "embeddings"

func (ce *CachedEmbedder) cacheKey(content string) string {
	return fmt.Sprintf("embedding:%s:%x", ce.Model, sha256.Sum256([]byte(content)))
}

func (ce *CachedEmbedder) Embed(ctx context.Context, inputs []string) ([]EmbeddingVector, error) {
	if len(inputs) == 0 {
		return []EmbeddingVector{}, nil
	}

	keys := make([]string, len(inputs))
	for i, input := range inputs {
		keys[i] = ce.cacheKey(input)
	}

	cached, err := ce.Storage.MGet(ctx, cacheUserId, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to get cached embeddings: %w", err)
	}

	vectors := make([]EmbeddingVector, len(inputs))
	var missingInputs []string
	var missingIndexes []int
	for i, value := range cached {
		if value == nil {
			missingInputs = append(missingInputs, inputs[i])
			missingIndexes = append(missingIndexes, i)
			continue
		}
		var vector EmbeddingVector
		if err := binary.Unmarshal(value, &vector); err != nil {
			// corrupt cache row: re-embed rather than fail
			log.Warn().Err(err).Str("key", keys[i]).Msg("Discarding unreadable cached embedding")
			missingInputs = append(missingInputs, inputs[i])
			missingIndexes = append(missingIndexes, i)
			continue
		}
		vectors[i] = vector
	}

	if len(missingInputs) == 0 {
		return vectors, nil
	}

	embedded, err := ce.Embedder.Embed(ctx, missingInputs)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missingInputs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(embedded), len(missingInputs))
	}

	cacheValues := make(map[string][]byte, len(embedded))
	for i, vector := range embedded {
		vectors[missingIndexes[i]] = vector
		encoded, err := binary.Marshal(vector)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal embedding: %w", err)
		}
		cacheValues[keys[missingIndexes[i]]] = encoded
	}
	if err := ce.Storage.MSetRaw(ctx, cacheUserId, cacheValues); err != nil {
		return nil, fmt.Errorf("failed to cache embeddings: %w", err)
	}

	return vectors, nil
}
