package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"cortex/common"
	"cortex/domain"
	"cortex/llm"
	"cortex/proxy"
	"cortex/srv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDispatcher resolves every enqueued request from a canned list of
// responses, recording the prompts it saw.
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
	text := "ok"
	if len(f.responses) > 0 {
		text = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &llm.ChatResponse{Text: text, PromptTokens: 10, CompletionTokens: 5, Timestamp: time.Now()}, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestService(t *testing.T, dispatcher Dispatcher) *Service {
	t.Helper()
	config := common.DefaultConfig()
	config.BufferSize = 5
	return NewService(srv.NewTestService(t), dispatcher, config)
}

func TestSyncAppendsEntriesWithoutPlatformMsgId(t *testing.T) {
	service := newTestService(t, &fakeDispatcher{})
	ctx := context.Background()

	snapshot := []SnapshotEntry{
		{Platform: domain.PlatformApi, Role: common.ChatMessageRoleUser, Content: "hello"},
		{Platform: domain.PlatformApi, Role: common.ChatMessageRoleAssistant, Content: "hi there"},
	}
	buffer, err := service.Sync(ctx, "user1", snapshot)
	require.NoError(t, err)
	require.Len(t, buffer, 2)
	assert.Equal(t, "hello", buffer[0].Content)
	assert.Equal(t, "hi there", buffer[1].Content)

	// entries without a platform msg id are always appended
	buffer, err = service.Sync(ctx, "user1", snapshot[:1])
	require.NoError(t, err)
	require.Len(t, buffer, 3)
}

func TestSyncIsIdempotentByPlatformMsgId(t *testing.T) {
	service := newTestService(t, &fakeDispatcher{})
	ctx := context.Background()

	snapshot := []SnapshotEntry{
		{Platform: domain.PlatformDiscord, PlatformMsgId: "d1", Role: common.ChatMessageRoleUser, Content: "first"},
		{Platform: domain.PlatformDiscord, PlatformMsgId: "d2", Role: common.ChatMessageRoleUser, Content: "second"},
	}

	once, err := service.Sync(ctx, "user1", snapshot)
	require.NoError(t, err)
	twice, err := service.Sync(ctx, "user1", snapshot)
	require.NoError(t, err)

	assert.Equal(t, len(once), len(twice), "sync twice must yield the same message set as sync once")
	require.Len(t, twice, 2)
	assert.Equal(t, "first", twice[0].Content)
	assert.Equal(t, "second", twice[1].Content)
}

func TestSyncReturnsRollingBufferTail(t *testing.T) {
	service := newTestService(t, &fakeDispatcher{})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := service.Sync(ctx, "user1", []SnapshotEntry{
			{Platform: domain.PlatformApi, Role: common.ChatMessageRoleUser, Content: string(rune('a' + i))},
		})
		require.NoError(t, err)
	}

	buffer, err := service.Buffer(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, buffer, 5, "buffer is capped at the configured size")
	assert.Equal(t, "d", buffer[0].Content)
	assert.Equal(t, "h", buffer[4].Content)
}

func TestSyncPreservesSendOrder(t *testing.T) {
	service := newTestService(t, &fakeDispatcher{})
	ctx := context.Background()

	contents := []string{"one", "two", "three", "four"}
	for _, content := range contents {
		_, err := service.Sync(ctx, "user1", []SnapshotEntry{
			{Platform: domain.PlatformImessage, Role: common.ChatMessageRoleUser, Content: content},
		})
		require.NoError(t, err)
	}

	messages, err := service.Messages(ctx, "user1", domain.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, messages, len(contents))
	for i, content := range contents {
		assert.Equal(t, content, messages[i].Content)
	}
}

func TestCreateTopicAndAssignRange(t *testing.T) {
	service := newTestService(t, &fakeDispatcher{})
	ctx := context.Background()

	_, err := service.Sync(ctx, "user1", []SnapshotEntry{
		{Platform: domain.PlatformApi, Role: common.ChatMessageRoleUser, Content: "about go"},
		{Platform: domain.PlatformApi, Role: common.ChatMessageRoleAssistant, Content: "go is nice"},
	})
	require.NoError(t, err)

	topic, err := service.CreateTopic(ctx, "user1", "Go talk")
	require.NoError(t, err)
	assert.NotEmpty(t, topic.Id)

	tagged, err := service.AssignRange(ctx, "user1", topic.Id, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, tagged)

	messages, err := service.TopicMessages(ctx, "user1", topic.Id)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestAssignRangeUnknownTopic(t *testing.T) {
	service := newTestService(t, &fakeDispatcher{})
	_, err := service.AssignRange(context.Background(), "user1", "topic_missing", time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}
