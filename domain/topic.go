package domain

import (
	"context"
	"time"
)

// Topic is a named bucket of messages belonging to one user.
type Topic struct {
	Id      string    `json:"id"`
	UserId  string    `json:"userId"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// TopicStorage defines the interface for topic-related database operations.
type TopicStorage interface {
	PersistTopic(ctx context.Context, topic Topic) error
	GetTopic(ctx context.Context, userId, topicId string) (Topic, error)
	GetTopics(ctx context.Context, userId string) ([]Topic, error)
	// GetRecentTopics returns the newest topics first, limited to the given
	// count.
	GetRecentTopics(ctx context.Context, userId string, limit int) ([]Topic, error)
	DeleteTopic(ctx context.Context, userId, topicId string) error
	// DeleteEmptyTopics removes topics that have no messages and no memory
	// associations, returning how many were removed.
	DeleteEmptyTopics(ctx context.Context, userId string) (int64, error)
	// MergeTopics renames the primary topic and re-points every memory
	// association from the secondary topics onto it, skipping associations
	// that already exist, then deletes the secondaries. The whole merge
	// happens in one transaction: if any secondary still has associations
	// after the move, the transaction is rolled back.
	MergeTopics(ctx context.Context, userId, primaryId, finalName string, secondaryIds []string) error
}
