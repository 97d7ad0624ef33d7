package embedding

import (
	"context"
	"fmt"

	"cortex/common"
)

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([]EmbeddingVector, error)
}

// NewEmbedder builds the embedder named by the config's embedding section.
// Only remote API embedders are supported; vectors are cached in the kv
// store so repeat work never re-hits the API (see CachedEmbedder).
func NewEmbedder(config common.Config) (Embedder, error) {
	provider := config.Embedding.ResolveProvider()
	switch provider {
	case common.OpenaiChatProvider:
		providerConfig := config.Provider(string(provider))
		return &OpenAIEmbedder{
			APIKey:  providerConfig.APIKey,
			BaseURL: providerConfig.BaseURL,
			Model:   config.Embedding.Model,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
