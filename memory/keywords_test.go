package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cortex/common"
	"cortex/domain"
	"cortex/embedding"
	"cortex/llm"
	"cortex/proxy"
	"cortex/srv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDispatcher resolves every request from a canned list of responses.
type fakeDispatcher struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []llm.ChatRequest
}

func (f *fakeDispatcher) Enqueue(ctx context.Context, req llm.ChatRequest, priority proxy.Priority, timeout time.Duration) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	text := "{}"
	if len(f.responses) > 0 {
		text = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &llm.ChatResponse{Text: text, Timestamp: time.Now()}, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestEngine(t *testing.T, dispatcher Dispatcher, embedder embedding.Embedder) *Engine {
	t.Helper()
	if embedder == nil {
		embedder = &embedding.MockEmbedder{Default: embedding.EmbeddingVector{1, 0, 0}}
	}
	return NewEngine(srv.NewTestService(t), embedder, dispatcher, common.DefaultConfig())
}

func seedMemory(t *testing.T, engine *Engine, userId, id, content string, keywords ...string) {
	t.Helper()
	memory := domain.Memory{
		Id:       id,
		UserId:   userId,
		Content:  content,
		Keywords: keywords,
		Category: domain.MemoryCategoryPersonal,
		Priority: 0.5,
		Created:  time.Now(),
	}
	memory.Normalize()
	require.NoError(t, engine.storage.PersistMemory(context.Background(), memory))
}

func TestKeywordGroupFormation(t *testing.T) {
	engine := newTestEngine(t, &fakeDispatcher{}, nil)
	ctx := context.Background()

	seedMemory(t, engine, "user1", "mem_1", "m1", "a", "b", "c")
	seedMemory(t, engine, "user1", "mem_2", "m2", "a", "b", "d")
	seedMemory(t, engine, "user1", "mem_3", "m3", "a", "b", "e")
	seedMemory(t, engine, "user1", "mem_4", "m4", "x", "y", "z")

	groups, err := engine.PreviewKeywordDedup(ctx, "user1")
	require.NoError(t, err)

	require.Len(t, groups, 1, "exactly one group: {M1, M2, M3}; M4 untouched")
	assert.ElementsMatch(t, []string{"mem_1", "mem_2", "mem_3"}, groups[0].MemoryIds)
	assert.Equal(t, 2, groups[0].MaxShared)
}

func TestKeywordGroupsRankedByMaxShared(t *testing.T) {
	engine := newTestEngine(t, &fakeDispatcher{}, nil)
	ctx := context.Background()

	seedMemory(t, engine, "user1", "mem_1", "m1", "a", "b")
	seedMemory(t, engine, "user1", "mem_2", "m2", "a", "b")
	seedMemory(t, engine, "user1", "mem_3", "m3", "p", "q", "r")
	seedMemory(t, engine, "user1", "mem_4", "m4", "p", "q", "r")

	groups, err := engine.PreviewKeywordDedup(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// the {mem_3, mem_4} pair shares three keywords and ranks first
	assert.ElementsMatch(t, []string{"mem_3", "mem_4"}, groups[0].MemoryIds)
	assert.Equal(t, 3, groups[0].MaxShared)
	assert.Equal(t, 2, groups[1].MaxShared)
}

func TestKeywordGroupLimits(t *testing.T) {
	engine := newTestEngine(t, &fakeDispatcher{}, nil)
	engine.config.Dedup.MaxGroups = 1
	ctx := context.Background()

	seedMemory(t, engine, "user1", "mem_1", "m1", "a", "b")
	seedMemory(t, engine, "user1", "mem_2", "m2", "a", "b")
	seedMemory(t, engine, "user1", "mem_3", "m3", "c", "d")
	seedMemory(t, engine, "user1", "mem_4", "m4", "c", "d")

	groups, err := engine.PreviewKeywordDedup(ctx, "user1")
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestRunKeywordDedupAppliesUpdateAndDelete(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{
		`{"update": {"mem_1": "merged fact"}, "delete": ["mem_2"]}`,
	}}
	engine := newTestEngine(t, dispatcher, nil)
	ctx := context.Background()

	seedMemory(t, engine, "user1", "mem_1", "fact one", "a", "b")
	seedMemory(t, engine, "user1", "mem_2", "fact one again", "a", "b")

	require.NoError(t, engine.RunKeywordDedup(ctx, "user1"))

	updated, err := engine.storage.GetMemory(ctx, "user1", "mem_1")
	require.NoError(t, err)
	assert.Equal(t, "merged fact", updated.Content)

	_, err = engine.storage.GetMemory(ctx, "user1", "mem_2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

// failingPersistStorage wraps a storage so memory updates start failing on
// demand, to exercise the updates-before-deletes safety rule.
type failingPersistStorage struct {
	srv.Storage
	failPersist bool
}

func (f *failingPersistStorage) PersistMemory(ctx context.Context, memory domain.Memory) error {
	if f.failPersist {
		return errors.New("disk full")
	}
	return f.Storage.PersistMemory(ctx, memory)
}

func TestConsolidateGroupSkipsDeletesWhenUpdateFails(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{
		`{"update": {"mem_1": "rewritten"}, "delete": ["mem_2"]}`,
	}}
	engine := newTestEngine(t, dispatcher, nil)
	ctx := context.Background()

	seedMemory(t, engine, "user1", "mem_1", "fact", "a", "b")
	seedMemory(t, engine, "user1", "mem_2", "fact again", "a", "b")

	failing := &failingPersistStorage{Storage: engine.storage, failPersist: true}
	engine.storage = failing

	require.NoError(t, engine.consolidateGroup(ctx, "user1", []string{"mem_1", "mem_2"}))

	// the failed update means no memory from the group may be deleted
	failing.failPersist = false
	_, err := engine.storage.GetMemory(ctx, "user1", "mem_2")
	assert.NoError(t, err)
	unchanged, err := engine.storage.GetMemory(ctx, "user1", "mem_1")
	require.NoError(t, err)
	assert.Equal(t, "fact", unchanged.Content)
}

func TestRunKeywordDedupToleratesMalformedAnswer(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"not json at all"}}
	engine := newTestEngine(t, dispatcher, nil)
	ctx := context.Background()

	seedMemory(t, engine, "user1", "mem_1", "fact", "a", "b")
	seedMemory(t, engine, "user1", "mem_2", "fact again", "a", "b")

	require.NoError(t, engine.RunKeywordDedup(ctx, "user1"))

	memories, err := engine.storage.GetMemories(ctx, "user1", domain.MemoryQuery{})
	require.NoError(t, err)
	assert.Len(t, memories, 2, "malformed answer leaves the group untouched")
}

func TestRunKeywordDedupContinuesAfterGroupError(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("provider down")}
	engine := newTestEngine(t, dispatcher, nil)
	ctx := context.Background()

	seedMemory(t, engine, "user1", "mem_1", "fact", "a", "b")
	seedMemory(t, engine, "user1", "mem_2", "fact again", "a", "b")

	// an LLM failure skips the group without failing the run
	require.NoError(t, engine.RunKeywordDedup(ctx, "user1"))
	assert.Equal(t, 1, dispatcher.callCount(), "the failed group is not retried")
}
