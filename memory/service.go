package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"cortex/common"
	"cortex/embedding"
	"cortex/llm"
	"cortex/proxy"
	"cortex/srv"

	"github.com/rs/zerolog/log"
)

// Dispatcher is the slice of the proxy the memory engine needs.
type Dispatcher interface {
	Enqueue(ctx context.Context, req llm.ChatRequest, priority proxy.Priority, timeout time.Duration) (*llm.ChatResponse, error)
}

// Engine deduplicates memories and topics. Dedup passes are infrequent
// background jobs; a coarse lock makes each pass the only writer of the
// memory table while it runs.
type Engine struct {
	storage    srv.Storage
	embedder   embedding.Embedder
	dispatcher Dispatcher
	config     common.Config

	mu sync.Mutex
}

func NewEngine(storage srv.Storage, embedder embedding.Embedder, dispatcher Dispatcher, config common.Config) *Engine {
	return &Engine{storage: storage, embedder: embedder, dispatcher: dispatcher, config: config}
}

func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	model := e.config.LLM
	response, err := e.dispatcher.Enqueue(ctx, llm.ChatRequest{
		Provider: model.ResolveProvider(),
		Model:    model.Model,
		Messages: []common.ChatMessage{
			{Role: common.ChatMessageRoleUser, Content: prompt},
		},
		Options: llm.RequestOptions{
			Temperature: model.Temperature,
			MaxTokens:   model.MaxTokens,
		},
	}, proxy.PriorityLow, e.config.DedupTimeout())
	if err != nil {
		return "", err
	}
	return response.Text, nil
}

const dedupPromptTemplate = `The following memories about one user appear to overlap. Consolidate them: rewrite the ones worth keeping so nothing is lost, and list the ids that become redundant.

Respond with JSON only, in this shape:
{"update": {"<memory id>": "<new text>"}, "delete": ["<memory id>"]}

Only reference ids that appear below. An id must not appear in both update and delete.

MEMORIES:
%s`

// dedupDecision is the LLM's consolidation answer, validated defensively
// after parsing: unknown ids are skipped and non-string updates ignored.
type dedupDecision struct {
	Update map[string]string `json:"update"`
	Delete []string          `json:"delete"`
}

// consolidateGroup asks the LLM to merge one group of overlapping memories
// and applies the answer. Updates are applied before deletes; if any single
// update fails, no memory from the group is deleted. A malformed answer
// skips the group without retrying.
func (e *Engine) consolidateGroup(ctx context.Context, userId string, memoryIds []string) error {
	byId := make(map[string]bool, len(memoryIds))
	var builder strings.Builder
	for _, memoryId := range memoryIds {
		memory, err := e.storage.GetMemory(ctx, userId, memoryId)
		if err != nil {
			return fmt.Errorf("failed to load memory %s: %w", memoryId, err)
		}
		byId[memoryId] = true
		fmt.Fprintf(&builder, "%s: %s\n", memory.Id, memory.Content)
	}

	answer, err := e.complete(ctx, fmt.Sprintf(dedupPromptTemplate, builder.String()))
	if err != nil {
		return fmt.Errorf("dedup LLM call failed: %w", err)
	}

	var decision dedupDecision
	if err := json.Unmarshal([]byte(llm.RepairJson(answer)), &decision); err != nil {
		log.Warn().Err(err).Str("userId", userId).Msg("Dedup answer was not valid JSON, skipping group")
		return nil
	}

	updatesFailed := false
	for memoryId, newText := range decision.Update {
		if !byId[memoryId] || strings.TrimSpace(newText) == "" {
			continue
		}
		memory, err := e.storage.GetMemory(ctx, userId, memoryId)
		if err != nil {
			log.Warn().Err(err).Str("memoryId", memoryId).Msg("Dedup update target vanished")
			updatesFailed = true
			continue
		}
		memory.Content = strings.TrimSpace(newText)
		if err := e.storage.PersistMemory(ctx, memory); err != nil {
			log.Warn().Err(err).Str("memoryId", memoryId).Msg("Dedup update failed")
			updatesFailed = true
		}
	}

	// deletes are conditional on every update having succeeded
	if updatesFailed {
		log.Warn().Str("userId", userId).Msg("Skipping dedup deletes because an update failed")
		return nil
	}
	for _, memoryId := range decision.Delete {
		if !byId[memoryId] {
			continue
		}
		if _, updated := decision.Update[memoryId]; updated {
			continue
		}
		if err := e.storage.DeleteMemory(ctx, userId, memoryId); err != nil {
			log.Warn().Err(err).Str("memoryId", memoryId).Msg("Dedup delete failed")
		}
	}
	return nil
}
