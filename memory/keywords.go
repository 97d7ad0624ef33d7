package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cortex/domain"
	"cortex/llm"

	"github.com/rs/zerolog/log"
)

// KeywordGroup is one planned consolidation unit: memories that share enough
// keywords to likely describe the same fact.
type KeywordGroup struct {
	MemoryIds []string `json:"memoryIds"`
	// MaxShared is the highest shared-keyword count of any pair inside the
	// group; groups are processed in descending MaxShared order.
	MaxShared int `json:"maxShared"`
}

// PreviewKeywordDedup returns the groups a keyword dedup run would process,
// without calling the LLM or mutating anything.
func (e *Engine) PreviewKeywordDedup(ctx context.Context, userId string) ([]KeywordGroup, error) {
	memories, err := e.storage.GetMemories(ctx, userId, domain.MemoryQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	return e.keywordGroups(memories), nil
}

// RunKeywordDedup forms keyword-overlap groups and runs the LLM
// consolidation pass over each, best first.
func (e *Engine) RunKeywordDedup(ctx context.Context, userId string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups, err := e.PreviewKeywordDedup(ctx, userId)
	if err != nil {
		return err
	}

	for _, group := range groups {
		if err := e.consolidateGroup(ctx, userId, group.MemoryIds); err != nil {
			// skip the group and keep going, never retry in place
			log.Warn().Err(err).Str("userId", userId).Msg("Keyword dedup group failed, skipping")
		}
	}
	return nil
}

// keywordGroups unions memories into groups pairwise: any pair sharing at
// least MinSharedKeywords keywords belongs together, and a pair touching an
// existing group is absorbed into it. Groups are then ranked by their best
// internal pair and cut down to the configured limits.
func (e *Engine) keywordGroups(memories []domain.Memory) []KeywordGroup {
	minShared := e.config.Dedup.MinSharedKeywords
	if minShared <= 0 {
		minShared = 2
	}

	keywordSets := make([]map[string]bool, len(memories))
	for i, memory := range memories {
		set := make(map[string]bool, len(memory.Keywords))
		for _, keyword := range memory.Keywords {
			set[strings.ToLower(keyword)] = true
		}
		keywordSets[i] = set
	}

	groupOf := make(map[int]int) // memory index -> group index
	var members [][]int
	maxShared := make(map[int]int) // group index -> best pair count

	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			shared := sharedCount(keywordSets[i], keywordSets[j])
			if shared < minShared {
				continue
			}

			gi, iIn := groupOf[i]
			gj, jIn := groupOf[j]
			switch {
			case !iIn && !jIn:
				group := len(members)
				members = append(members, []int{i, j})
				groupOf[i], groupOf[j] = group, group
				maxShared[group] = shared
			case iIn && !jIn:
				members[gi] = append(members[gi], j)
				groupOf[j] = gi
				if shared > maxShared[gi] {
					maxShared[gi] = shared
				}
			case !iIn && jIn:
				members[gj] = append(members[gj], i)
				groupOf[i] = gj
				if shared > maxShared[gj] {
					maxShared[gj] = shared
				}
			case gi != gj:
				// the pair bridges two groups: merge the smaller-indexed in
				for _, member := range members[gj] {
					groupOf[member] = gi
				}
				members[gi] = append(members[gi], members[gj]...)
				members[gj] = nil
				if maxShared[gj] > maxShared[gi] {
					maxShared[gi] = maxShared[gj]
				}
				if shared > maxShared[gi] {
					maxShared[gi] = shared
				}
			default:
				if shared > maxShared[gi] {
					maxShared[gi] = shared
				}
			}
		}
	}

	var groups []KeywordGroup
	for groupIdx, indexes := range members {
		if len(indexes) == 0 {
			continue
		}
		sort.Ints(indexes)
		group := KeywordGroup{MaxShared: maxShared[groupIdx]}
		for _, index := range indexes {
			group.MemoryIds = append(group.MemoryIds, memories[index].Id)
		}
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].MaxShared > groups[j].MaxShared
	})

	return e.applyGroupLimits(groups, memories)
}

// applyGroupLimits enforces the configured filters: memories per group, a
// token ceiling per group, and the overall group count.
func (e *Engine) applyGroupLimits(groups []KeywordGroup, memories []domain.Memory) []KeywordGroup {
	contentById := make(map[string]string, len(memories))
	for _, memory := range memories {
		contentById[memory.Id] = memory.Content
	}

	maxPerGroup := e.config.Dedup.MaxMemoriesPerGroup
	tokenBudget := e.config.Dedup.GroupTokenBudget
	maxGroups := e.config.Dedup.MaxGroups

	var kept []KeywordGroup
	for _, group := range groups {
		if maxPerGroup > 0 && len(group.MemoryIds) > maxPerGroup {
			group.MemoryIds = group.MemoryIds[:maxPerGroup]
		}
		if tokenBudget > 0 {
			tokens := 0
			for _, memoryId := range group.MemoryIds {
				tokens += llm.CountTokens(e.config.LLM.Model, contentById[memoryId])
			}
			if tokens > tokenBudget {
				log.Debug().Int("tokens", tokens).Int("budget", tokenBudget).Msg("Skipping dedup group over token budget")
				continue
			}
		}
		kept = append(kept, group)
		if maxGroups > 0 && len(kept) >= maxGroups {
			break
		}
	}
	return kept
}

func sharedCount(a, b map[string]bool) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	count := 0
	for keyword := range a {
		if b[keyword] {
			count++
		}
	}
	return count
}
