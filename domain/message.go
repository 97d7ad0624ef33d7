package domain

import (
	"context"
	"time"

	"cortex/common"
)

// Platform identifies the channel a message arrived through. The set is
// open-ended; these are the channels with first-class support.
type Platform string

const (
	PlatformApi      Platform = "api"
	PlatformImessage Platform = "imessage"
	PlatformDiscord  Platform = "discord"
)

// Message is the atomic conversation unit owned by the ledger.
type Message struct {
	Id            string                 `json:"id"`
	UserId        string                 `json:"userId"`
	Platform      Platform               `json:"platform"`
	PlatformMsgId string                 `json:"platformMsgId,omitempty"`
	Role          common.ChatMessageRole `json:"role"`
	Content       string                 `json:"content"`
	ToolCalls     common.ToolCalls       `json:"toolCalls,omitempty"`
	ToolCallId    string                 `json:"toolCallId,omitempty"`
	TopicId       string                 `json:"topicId,omitempty"`
	Created       time.Time              `json:"created"`
}

// MessageQuery narrows a message listing. Zero values mean "no constraint".
type MessageQuery struct {
	Since   *time.Time `json:"since,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
	TopicId string     `json:"topicId,omitempty"`
	Limit   int        `json:"limit,omitempty"`
}

// MessageStorage defines the interface for message-related database operations.
type MessageStorage interface {
	PersistMessage(ctx context.Context, message Message) error
	GetMessage(ctx context.Context, userId, messageId string) (Message, error)
	// GetMessageByPlatformMsgId looks a message up by its platform-durable
	// id. Returns common.ErrNotFound when no such message exists.
	GetMessageByPlatformMsgId(ctx context.Context, userId string, platform Platform, platformMsgId string) (Message, error)
	// GetMessages returns matching messages in chronological order.
	GetMessages(ctx context.Context, userId string, query MessageQuery) ([]Message, error)
	// GetRecentMessages returns the newest messages, still in chronological
	// order, limited to the given count.
	GetRecentMessages(ctx context.Context, userId string, limit int) ([]Message, error)
	// GetUntaggedMessages returns messages with no topic assigned yet, in
	// chronological order.
	GetUntaggedMessages(ctx context.Context, userId string, limit int) ([]Message, error)
	// AssignTopic sets the topic of every message in [start, end] that has
	// no topic yet, returning the number of messages tagged.
	AssignTopic(ctx context.Context, userId, topicId string, start, end time.Time) (int64, error)
	// GetActiveUserIds returns ids of users with at least one message at or
	// after the given time.
	GetActiveUserIds(ctx context.Context, since time.Time) ([]string, error)
}

// UTCTime returns the time normalized to UTC.
func UTCTime(t time.Time) time.Time {
	return t.UTC()
}

// UTCTimePtr returns a pointer to the time normalized to UTC, or nil if the input is nil.
func UTCTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
