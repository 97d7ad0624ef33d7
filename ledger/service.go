package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cortex/common"
	"cortex/domain"
	"cortex/llm"
	"cortex/proxy"
	"cortex/srv"

	"github.com/segmentio/ksuid"
)

// Dispatcher is the slice of the proxy the ledger needs: queue a request at a
// priority and wait for the provider's answer.
type Dispatcher interface {
	Enqueue(ctx context.Context, req llm.ChatRequest, priority proxy.Priority, timeout time.Duration) (*llm.ChatResponse, error)
}

// SnapshotEntry is one message the caller believes belongs at the tail of a
// user's conversation. Entries with a PlatformMsgId are deduplicated against
// the canonical log; entries without one are always appended.
type SnapshotEntry struct {
	Platform      domain.Platform        `json:"platform"`
	PlatformMsgId string                 `json:"platformMsgId,omitempty"`
	Role          common.ChatMessageRole `json:"role"`
	Content       string                 `json:"content"`
	ToolCalls     common.ToolCalls       `json:"toolCalls,omitempty"`
	ToolCallId    string                 `json:"toolCallId,omitempty"`
}

// Service owns the canonical conversation log: messages, topics and
// summaries.
type Service struct {
	storage    srv.Storage
	dispatcher Dispatcher
	config     common.Config
}

func NewService(storage srv.Storage, dispatcher Dispatcher, config common.Config) *Service {
	return &Service{storage: storage, dispatcher: dispatcher, config: config}
}

// Sync reconciles the snapshot against the canonical log and returns the
// post-sync rolling buffer. It is idempotent with respect to platform message
// ids: an entry whose (user, platform, platform_msg_id) already exists is not
// re-inserted.
func (s *Service) Sync(ctx context.Context, userId string, snapshot []SnapshotEntry) ([]domain.Message, error) {
	for _, entry := range snapshot {
		if entry.PlatformMsgId != "" {
			_, err := s.storage.GetMessageByPlatformMsgId(ctx, userId, entry.Platform, entry.PlatformMsgId)
			if err == nil {
				continue
			}
			if !errors.Is(err, common.ErrNotFound) {
				return nil, fmt.Errorf("failed to check for existing message: %w", err)
			}
		}

		message := domain.Message{
			Id:            "msg_" + ksuid.New().String(),
			UserId:        userId,
			Platform:      entry.Platform,
			PlatformMsgId: entry.PlatformMsgId,
			Role:          entry.Role,
			Content:       entry.Content,
			ToolCalls:     entry.ToolCalls,
			ToolCallId:    entry.ToolCallId,
			Created:       time.Now().UTC(),
		}
		if err := s.storage.PersistMessage(ctx, message); err != nil {
			return nil, fmt.Errorf("failed to persist snapshot entry: %w", err)
		}
	}

	return s.Buffer(ctx, userId)
}

// Buffer returns the rolling tail window of the user's conversation, in
// chronological order.
func (s *Service) Buffer(ctx context.Context, userId string) ([]domain.Message, error) {
	size := s.config.BufferSize
	if size <= 0 {
		size = common.DefaultConfig().BufferSize
	}
	return s.storage.GetRecentMessages(ctx, userId, size)
}

// Messages returns matching messages in chronological order.
func (s *Service) Messages(ctx context.Context, userId string, query domain.MessageQuery) ([]domain.Message, error) {
	return s.storage.GetMessages(ctx, userId, query)
}

// TopicsRecent returns the user's newest topics first.
func (s *Service) TopicsRecent(ctx context.Context, userId string, limit int) ([]domain.Topic, error) {
	return s.storage.GetRecentTopics(ctx, userId, limit)
}

// TopicMessages returns the messages assigned to one topic in chronological
// order.
func (s *Service) TopicMessages(ctx context.Context, userId, topicId string) ([]domain.Message, error) {
	return s.storage.GetMessages(ctx, userId, domain.MessageQuery{TopicId: topicId})
}

// CreateTopic creates a named topic for the user and returns it.
func (s *Service) CreateTopic(ctx context.Context, userId, name string) (domain.Topic, error) {
	topic := domain.Topic{
		Id:      "topic_" + ksuid.New().String(),
		UserId:  userId,
		Name:    name,
		Created: time.Now().UTC(),
	}
	if err := s.storage.PersistTopic(ctx, topic); err != nil {
		return domain.Topic{}, fmt.Errorf("failed to create topic: %w", err)
	}
	return topic, nil
}

// AssignRange tags every untagged message in [start, end] with the topic,
// returning how many messages were tagged.
func (s *Service) AssignRange(ctx context.Context, userId, topicId string, start, end time.Time) (int64, error) {
	if _, err := s.storage.GetTopic(ctx, userId, topicId); err != nil {
		return 0, fmt.Errorf("failed to load topic for range assignment: %w", err)
	}
	return s.storage.AssignTopic(ctx, userId, topicId, start, end)
}

// Summaries returns matching summaries in window order.
func (s *Service) Summaries(ctx context.Context, userId string, query domain.SummaryQuery) ([]domain.Summary, error) {
	return s.storage.GetSummaries(ctx, userId, query)
}

// RecentSummaries returns the newest summaries of any type, up to limit.
func (s *Service) RecentSummaries(ctx context.Context, userId string, limit int) ([]domain.Summary, error) {
	return s.storage.GetRecentSummaries(ctx, userId, limit)
}

// UpdateLastSeen records activity for a (user, platform) pair.
func (s *Service) UpdateLastSeen(ctx context.Context, userId string, platform domain.Platform, seen time.Time) error {
	return s.storage.UpdateLastSeen(ctx, domain.LastSeen{
		UserId:   userId,
		Platform: platform,
		Seen:     seen.UTC(),
	})
}

func (s *Service) chatModel() common.ModelConfig {
	return s.config.LLM
}

// complete runs a single background LLM call through the proxy at low
// priority with the standard timeout.
func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	response, err := s.dispatcher.Enqueue(ctx, llm.ChatRequest{
		Provider: s.chatModel().ResolveProvider(),
		Model:    s.chatModel().Model,
		Messages: []common.ChatMessage{
			{Role: common.ChatMessageRoleUser, Content: prompt},
		},
		Options: llm.RequestOptions{
			Temperature: s.chatModel().Temperature,
			MaxTokens:   s.chatModel().MaxTokens,
		},
	}, proxy.PriorityLow, s.config.Timeout())
	if err != nil {
		return "", err
	}
	return response.Text, nil
}
