package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cortex/embedding"
	"cortex/llm"

	"cortex/domain"

	"github.com/rs/zerolog/log"
)

// TopicMerge is one planned merge: the secondaries' memory associations move
// onto the primary, which may be renamed, and the secondaries are deleted.
type TopicMerge struct {
	PrimaryId    string   `json:"primaryId"`
	FinalName    string   `json:"finalName"`
	SecondaryIds []string `json:"secondaryIds"`
}

const topicMergePromptTemplate = `The following topics from one user's conversation log appear to name the same subject. Pick the topic that should survive and the name it should carry.

Respond with JSON only, in this shape:
{"primary_id": "<topic id>", "final_name": "<name>", "secondary_ids": ["<topic id>"]}

Every listed id must appear exactly once across primary_id and secondary_ids.

TOPICS (id, name, memory count):
%s`

type topicMergeDecision struct {
	PrimaryId    string   `json:"primary_id"`
	FinalName    string   `json:"final_name"`
	SecondaryIds []string `json:"secondary_ids"`
}

// PreviewTopicDedup clusters topic names by embedding similarity and returns
// the merges a run would perform, resolved with the deterministic fallback
// (most memories wins, original name kept). It never calls the chat LLM.
func (e *Engine) PreviewTopicDedup(ctx context.Context, userId string) ([]TopicMerge, error) {
	clusters, counts, topicsById, err := e.topicClusters(ctx, userId)
	if err != nil {
		return nil, err
	}

	merges := make([]TopicMerge, 0, len(clusters))
	for _, cluster := range clusters {
		merges = append(merges, fallbackMerge(cluster, counts, topicsById))
	}
	return merges, nil
}

// RunTopicDedup clusters similar topics, asks the LLM which should survive
// under what name, and applies each merge in a single transaction. A
// malformed LLM answer falls back to the deterministic rule instead of
// retrying.
func (e *Engine) RunTopicDedup(ctx context.Context, userId string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	clusters, counts, topicsById, err := e.topicClusters(ctx, userId)
	if err != nil {
		return err
	}

	for _, cluster := range clusters {
		merge := e.decideMerge(ctx, cluster, counts, topicsById)
		if err := e.storage.MergeTopics(ctx, userId, merge.PrimaryId, merge.FinalName, merge.SecondaryIds); err != nil {
			log.Warn().Err(err).Str("userId", userId).Str("primaryId", merge.PrimaryId).Msg("Topic merge failed, skipping")
			continue
		}
		log.Info().Str("userId", userId).Str("primaryId", merge.PrimaryId).
			Str("finalName", merge.FinalName).Int("merged", len(merge.SecondaryIds)).Msg("Merged topics")
	}
	return nil
}

// topicClusters returns clusters of similar topic ids among topics with
// enough associated memories, plus the association counts and topic lookup.
func (e *Engine) topicClusters(ctx context.Context, userId string) ([][]string, map[string]int, map[string]domain.Topic, error) {
	minCount := e.config.Dedup.MinTopicMemoryCount
	if minCount <= 0 {
		minCount = 2
	}
	counts, err := e.storage.GetTopicMemoryCounts(ctx, userId, minCount)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to count topic memories: %w", err)
	}
	if len(counts) < 2 {
		return nil, counts, nil, nil
	}

	topicIds := make([]string, 0, len(counts))
	for topicId := range counts {
		topicIds = append(topicIds, topicId)
	}
	sort.Strings(topicIds)

	topicsById := make(map[string]domain.Topic, len(topicIds))
	names := make([]string, len(topicIds))
	for i, topicId := range topicIds {
		topic, err := e.storage.GetTopic(ctx, userId, topicId)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load topic %s: %w", topicId, err)
		}
		topicsById[topicId] = topic
		names[i] = topic.Name
	}

	vectors, err := e.embedder.Embed(ctx, names)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to embed topic names: %w", err)
	}

	threshold := e.config.Dedup.TopicThreshold
	if threshold <= 0 {
		threshold = e.config.Dedup.SimilarityThreshold
	}
	indexClusters := dbscan(len(vectors), 1-threshold, 2, func(i, j int) float64 {
		return embedding.CosineDistance(vectors[i], vectors[j])
	})

	clusters := make([][]string, 0, len(indexClusters))
	for _, indexes := range indexClusters {
		cluster := make([]string, len(indexes))
		for i, index := range indexes {
			cluster[i] = topicIds[index]
		}
		clusters = append(clusters, cluster)
	}
	return clusters, counts, topicsById, nil
}

func (e *Engine) decideMerge(ctx context.Context, cluster []string, counts map[string]int, topicsById map[string]domain.Topic) TopicMerge {
	var builder strings.Builder
	for _, topicId := range cluster {
		fmt.Fprintf(&builder, "%s, %q, %d\n", topicId, topicsById[topicId].Name, counts[topicId])
	}

	answer, err := e.complete(ctx, fmt.Sprintf(topicMergePromptTemplate, builder.String()))
	if err != nil {
		log.Warn().Err(err).Msg("Topic merge LLM call failed, using fallback")
		return fallbackMerge(cluster, counts, topicsById)
	}

	var decision topicMergeDecision
	if err := json.Unmarshal([]byte(llm.RepairJson(answer)), &decision); err != nil {
		log.Warn().Err(err).Msg("Topic merge answer was not valid JSON, using fallback")
		return fallbackMerge(cluster, counts, topicsById)
	}

	merge, ok := validateMergeDecision(decision, cluster, topicsById)
	if !ok {
		return fallbackMerge(cluster, counts, topicsById)
	}
	return merge
}

// validateMergeDecision checks the LLM's answer covers exactly the cluster.
func validateMergeDecision(decision topicMergeDecision, cluster []string, topicsById map[string]domain.Topic) (TopicMerge, bool) {
	inCluster := make(map[string]bool, len(cluster))
	for _, topicId := range cluster {
		inCluster[topicId] = true
	}
	if !inCluster[decision.PrimaryId] {
		return TopicMerge{}, false
	}

	seen := map[string]bool{decision.PrimaryId: true}
	for _, secondaryId := range decision.SecondaryIds {
		if !inCluster[secondaryId] || seen[secondaryId] {
			return TopicMerge{}, false
		}
		seen[secondaryId] = true
	}
	if len(seen) != len(cluster) {
		return TopicMerge{}, false
	}

	finalName := strings.TrimSpace(decision.FinalName)
	if finalName == "" {
		finalName = topicsById[decision.PrimaryId].Name
	}
	return TopicMerge{
		PrimaryId:    decision.PrimaryId,
		FinalName:    finalName,
		SecondaryIds: decision.SecondaryIds,
	}, true
}

// fallbackMerge is the deterministic rule used when the LLM cannot decide:
// the topic with the most memories survives under its original name.
func fallbackMerge(cluster []string, counts map[string]int, topicsById map[string]domain.Topic) TopicMerge {
	primaryId := cluster[0]
	for _, topicId := range cluster[1:] {
		if counts[topicId] > counts[primaryId] {
			primaryId = topicId
		}
	}

	merge := TopicMerge{PrimaryId: primaryId, FinalName: topicsById[primaryId].Name}
	for _, topicId := range cluster {
		if topicId != primaryId {
			merge.SecondaryIds = append(merge.SecondaryIds, topicId)
		}
	}
	return merge
}
