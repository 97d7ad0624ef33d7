package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIEmbedder struct {
	APIKey  string
	BaseURL string
	Model   string
}

var _ Embedder = (*OpenAIEmbedder)(nil)

var embeddingTypeToModel = map[string]openai.EmbeddingModel{
	"ada2":       openai.AdaEmbeddingV2,
	"oai-te3-sm": openai.SmallEmbedding3,
	"oai-te3-lg": openai.LargeEmbedding3,
}

// openai caps embedding batches at 2048 inputs
const openaiEmbedBatchSize = 2048

func (oe *OpenAIEmbedder) Embed(ctx context.Context, inputs []string) ([]EmbeddingVector, error) {
	if len(inputs) == 0 {
		return []EmbeddingVector{}, nil
	}
	if oe.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: no api key configured")
	}

	config := openai.DefaultConfig(oe.APIKey)
	if oe.BaseURL != "" {
		config.BaseURL = oe.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	model, ok := embeddingTypeToModel[oe.Model]
	if !ok {
		model = openai.EmbeddingModel(oe.Model)
	}

	vectors := make([]EmbeddingVector, 0, len(inputs))
	for start := 0; start < len(inputs); start += openaiEmbedBatchSize {
		end := min(start+openaiEmbedBatchSize, len(inputs))
		response, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: inputs[start:end],
			Model: model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed content: %w", err)
		}
		if len(response.Data) != end-start {
			return nil, fmt.Errorf("embedding response had %d vectors for %d inputs", len(response.Data), end-start)
		}
		for _, data := range response.Data {
			vectors = append(vectors, EmbeddingVector(data.Embedding))
		}
	}
	return vectors, nil
}
