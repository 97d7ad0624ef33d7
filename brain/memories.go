package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cortex/domain"
	"cortex/memory"
	"cortex/srv"

	"github.com/segmentio/ksuid"
)

// MemoryStore is the slice of the memory subsystem the orchestrator and the
// intent handler need: list for prompt context, plus the directive-driven
// remember/forget/recall operations.
type MemoryStore interface {
	List(ctx context.Context, userId string, limit int) ([]domain.Memory, error)
	Remember(ctx context.Context, userId, text string) (domain.Memory, error)
	Forget(ctx context.Context, userId, text string) error
	Recall(ctx context.Context, userId, query string, limit int) ([]domain.Memory, error)
}

// EngineMemoryStore backs MemoryStore with memory storage plus the memory
// engine's semantic search.
type EngineMemoryStore struct {
	Storage srv.Storage
	Engine  *memory.Engine
}

var _ MemoryStore = (*EngineMemoryStore)(nil)

func (s *EngineMemoryStore) List(ctx context.Context, userId string, limit int) ([]domain.Memory, error) {
	return s.Storage.GetMemories(ctx, userId, domain.MemoryQuery{Limit: limit})
}

func (s *EngineMemoryStore) Remember(ctx context.Context, userId, text string) (domain.Memory, error) {
	mem := domain.Memory{
		Id:       "mem_" + ksuid.New().String(),
		UserId:   userId,
		Content:  strings.TrimSpace(text),
		Keywords: keywordsFromText(text),
		Category: domain.MemoryCategoryPersonal,
		Priority: 0.5,
		Created:  time.Now().UTC(),
	}
	mem.Normalize()
	if err := s.Storage.PersistMemory(ctx, mem); err != nil {
		return domain.Memory{}, fmt.Errorf("failed to persist memory: %w", err)
	}
	return mem, nil
}

// Forget deletes the memory whose content matches the text, preferring an
// exact match and falling back to the closest semantic hit.
func (s *EngineMemoryStore) Forget(ctx context.Context, userId, text string) error {
	text = strings.TrimSpace(text)
	memories, err := s.Storage.GetMemories(ctx, userId, domain.MemoryQuery{})
	if err != nil {
		return err
	}
	for _, mem := range memories {
		if strings.EqualFold(mem.Content, text) {
			return s.Storage.DeleteMemory(ctx, userId, mem.Id)
		}
	}

	hits, err := s.Engine.Search(ctx, userId, text, 1)
	if err != nil {
		return fmt.Errorf("failed to search for memory to forget: %w", err)
	}
	if len(hits) == 0 {
		return fmt.Errorf("no memory matches %q", text)
	}
	return s.Storage.DeleteMemory(ctx, userId, hits[0].Id)
}

func (s *EngineMemoryStore) Recall(ctx context.Context, userId, query string, limit int) ([]domain.Memory, error) {
	return s.Engine.Search(ctx, userId, query, limit)
}

// keywordsFromText derives keyword candidates from the memory text itself:
// words long enough to carry meaning.
func keywordsFromText(text string) []string {
	var keywords []string
	for _, word := range strings.Fields(text) {
		word = strings.Trim(strings.ToLower(word), ".,!?;:'\"()")
		if len(word) >= 4 {
			keywords = append(keywords, word)
		}
	}
	return domain.NormalizeKeywords(keywords)
}
