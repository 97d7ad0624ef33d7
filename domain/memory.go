package domain

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// MemoryCategory is the closed set of life areas a memory files under.
type MemoryCategory string

const (
	MemoryCategoryHealth      MemoryCategory = "Health"
	MemoryCategoryCareer      MemoryCategory = "Career"
	MemoryCategoryFamily      MemoryCategory = "Family"
	MemoryCategoryPersonal    MemoryCategory = "Personal"
	MemoryCategoryTechnical   MemoryCategory = "Technical Projects"
	MemoryCategorySocial      MemoryCategory = "Social"
	MemoryCategoryFinance     MemoryCategory = "Finance"
	MemoryCategorySelfCare    MemoryCategory = "Self-care"
	MemoryCategoryEnvironment MemoryCategory = "Environment"
	MemoryCategoryHobbies     MemoryCategory = "Hobbies"
	MemoryCategoryPhilosophy  MemoryCategory = "Philosophy"
)

var AllMemoryCategories = []MemoryCategory{
	MemoryCategoryHealth,
	MemoryCategoryCareer,
	MemoryCategoryFamily,
	MemoryCategoryPersonal,
	MemoryCategoryTechnical,
	MemoryCategorySocial,
	MemoryCategoryFinance,
	MemoryCategorySelfCare,
	MemoryCategoryEnvironment,
	MemoryCategoryHobbies,
	MemoryCategoryPhilosophy,
}

// StringToMemoryCategory matches case-insensitively since categories usually
// arrive from LLM output.
func StringToMemoryCategory(s string) (MemoryCategory, error) {
	for _, category := range AllMemoryCategories {
		if strings.EqualFold(s, string(category)) {
			return category, nil
		}
	}
	return "", fmt.Errorf("invalid MemoryCategory: \"%s\"", s)
}

// Memory is a durable fact extracted from conversation.
type Memory struct {
	Id       string         `json:"id"`
	UserId   string         `json:"userId"`
	Content  string         `json:"content"`
	Keywords []string       `json:"keywords"`
	Category MemoryCategory `json:"category"`
	Priority float64        `json:"priority"`
	Created  time.Time      `json:"created"`
	TopicIds []string       `json:"topicIds,omitempty"`
}

// Normalize applies the memory invariants in place: keywords lowercased,
// deduplicated and sorted; priority clamped into [0, 1].
func (m *Memory) Normalize() {
	m.Keywords = NormalizeKeywords(m.Keywords)
	if m.Priority < 0 {
		m.Priority = 0
	}
	if m.Priority > 1 {
		m.Priority = 1
	}
}

// NormalizeKeywords lowercases, trims, deduplicates and sorts a keyword set.
// The result is stable under repeated application.
func NormalizeKeywords(keywords []string) []string {
	normalized := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true
		normalized = append(normalized, keyword)
	}
	slices.Sort(normalized)
	return normalized
}

// MemoryQuery narrows a memory listing. Zero values mean "no constraint".
type MemoryQuery struct {
	Category MemoryCategory `json:"category,omitempty"`
	TopicId  string         `json:"topicId,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

// MemoryStorage defines the interface for memory-related database operations.
type MemoryStorage interface {
	PersistMemory(ctx context.Context, memory Memory) error
	GetMemory(ctx context.Context, userId, memoryId string) (Memory, error)
	// GetMemories returns matching memories ordered by priority descending,
	// then newest first.
	GetMemories(ctx context.Context, userId string, query MemoryQuery) ([]Memory, error)
	DeleteMemory(ctx context.Context, userId, memoryId string) error
	// AttachMemoryTopic links a memory to a topic; linking twice is a no-op.
	AttachMemoryTopic(ctx context.Context, userId, memoryId, topicId string) error
	// GetTopicMemoryCounts returns, for topics with at least minCount
	// associated memories, the association count keyed by topic id.
	GetTopicMemoryCounts(ctx context.Context, userId string, minCount int) (map[string]int, error)
	// DeleteOrphanAssociations removes memory-topic links and keyword rows
	// whose memory or topic no longer exists, returning how many rows went.
	DeleteOrphanAssociations(ctx context.Context) (int64, error)
}
