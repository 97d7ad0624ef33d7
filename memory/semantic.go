package memory

import (
	"context"
	"fmt"
	"sort"

	"cortex/domain"
	"cortex/embedding"

	"github.com/rs/zerolog/log"
)

// SemanticCluster is one planned consolidation unit found by density
// clustering over memory embeddings.
type SemanticCluster struct {
	MemoryIds []string `json:"memoryIds"`
	// Density is the mean pairwise cosine similarity inside the cluster;
	// denser clusters are processed first.
	Density float64 `json:"density"`
}

// PreviewSemanticDedup embeds the user's memories and returns the clusters a
// semantic dedup run would process, without calling the chat LLM or mutating
// anything.
func (e *Engine) PreviewSemanticDedup(ctx context.Context, userId string) ([]SemanticCluster, error) {
	memories, err := e.storage.GetMemories(ctx, userId, domain.MemoryQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	if len(memories) < 2 {
		return nil, nil
	}

	contents := make([]string, len(memories))
	for i, memory := range memories {
		contents[i] = memory.Content
	}
	vectors, err := e.embedder.Embed(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to embed memories: %w", err)
	}

	eps := 1 - e.config.Dedup.SimilarityThreshold
	indexClusters := dbscan(len(vectors), eps, 2, func(i, j int) float64 {
		return embedding.CosineDistance(vectors[i], vectors[j])
	})

	clusters := make([]SemanticCluster, 0, len(indexClusters))
	for _, indexes := range indexClusters {
		cluster := SemanticCluster{Density: meanPairwiseSimilarity(vectors, indexes)}
		for _, index := range indexes {
			cluster.MemoryIds = append(cluster.MemoryIds, memories[index].Id)
		}
		clusters = append(clusters, cluster)
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Density > clusters[j].Density
	})

	if max := e.config.Dedup.MaxClusters; max > 0 && len(clusters) > max {
		clusters = clusters[:max]
	}
	return clusters, nil
}

// RunSemanticDedup clusters the user's memories by embedding similarity and
// runs the LLM consolidation pass over each cluster, densest first.
func (e *Engine) RunSemanticDedup(ctx context.Context, userId string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	clusters, err := e.PreviewSemanticDedup(ctx, userId)
	if err != nil {
		return err
	}

	for _, cluster := range clusters {
		if err := e.consolidateGroup(ctx, userId, cluster.MemoryIds); err != nil {
			log.Warn().Err(err).Str("userId", userId).Msg("Semantic dedup cluster failed, skipping")
		}
	}
	return nil
}

func meanPairwiseSimilarity(vectors []embedding.EmbeddingVector, indexes []int) float64 {
	if len(indexes) < 2 {
		return 0
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(indexes); i++ {
		for j := i + 1; j < len(indexes); j++ {
			sum += embedding.CosineSimilarity(vectors[indexes[i]], vectors[indexes[j]])
			pairs++
		}
	}
	return sum / float64(pairs)
}
