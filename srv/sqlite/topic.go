package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"cortex/common"
	"cortex/domain"
)

var _ domain.TopicStorage = (*Storage)(nil)

// PersistTopic inserts or updates a Topic in the SQLite database
func (s *Storage) PersistTopic(ctx context.Context, topic domain.Topic) error {
	query := `INSERT OR REPLACE INTO topics (user_id, id, name, created) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, topic.UserId, topic.Id, topic.Name, formatTime(topic.Created))
	if err != nil {
		return fmt.Errorf("failed to persist topic: %w", err)
	}
	return nil
}

func scanTopic(scanner interface {
	Scan(dest ...interface{}) error
}) (domain.Topic, error) {
	var topic domain.Topic
	var createdStr string
	if err := scanner.Scan(&topic.UserId, &topic.Id, &topic.Name, &createdStr); err != nil {
		return domain.Topic{}, err
	}
	var err error
	topic.Created, err = parseTime(createdStr)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("failed to parse created time: %w", err)
	}
	return topic, nil
}

// GetTopic retrieves a single Topic from the SQLite database
func (s *Storage) GetTopic(ctx context.Context, userId, topicId string) (domain.Topic, error) {
	query := `SELECT user_id, id, name, created FROM topics WHERE user_id = ? AND id = ?`
	topic, err := scanTopic(s.db.QueryRowContext(ctx, query, userId, topicId))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Topic{}, common.ErrNotFound
		}
		return domain.Topic{}, fmt.Errorf("failed to get topic: %w", err)
	}
	return topic, nil
}

func (s *Storage) queryTopics(ctx context.Context, query string, args ...interface{}) ([]domain.Topic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer rows.Close()

	topics := []domain.Topic{}
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return topics, nil
}

func (s *Storage) GetTopics(ctx context.Context, userId string) ([]domain.Topic, error) {
	return s.queryTopics(ctx, `SELECT user_id, id, name, created FROM topics WHERE user_id = ? ORDER BY created ASC`, userId)
}

// GetRecentTopics returns the newest topics first.
func (s *Storage) GetRecentTopics(ctx context.Context, userId string, limit int) ([]domain.Topic, error) {
	query := `SELECT user_id, id, name, created FROM topics WHERE user_id = ? ORDER BY created DESC, id DESC LIMIT ?`
	return s.queryTopics(ctx, query, userId, limit)
}

// DeleteTopic removes a Topic from the SQLite database
func (s *Storage) DeleteTopic(ctx context.Context, userId, topicId string) error {
	query := `DELETE FROM topics WHERE user_id = ? AND id = ?`
	result, err := s.db.ExecContext(ctx, query, userId, topicId)
	if err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteEmptyTopics removes topics with no messages and no memory associations.
func (s *Storage) DeleteEmptyTopics(ctx context.Context, userId string) (int64, error) {
	query := `
		DELETE FROM topics WHERE user_id = ?
		AND NOT EXISTS (
			SELECT 1 FROM user_messages m
			WHERE m.user_id = topics.user_id AND m.topic_id = topics.id
		)
		AND NOT EXISTS (
			SELECT 1 FROM memory_topics mt
			WHERE mt.user_id = topics.user_id AND mt.topic_id = topics.id
		)
	`
	result, err := s.db.ExecContext(ctx, query, userId)
	if err != nil {
		return 0, fmt.Errorf("failed to delete empty topics: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// MergeTopics renames the primary topic, re-points memory associations from
// the secondary topics onto it and deletes the secondaries, all in one
// transaction. The transaction is rolled back if any secondary association
// survives the move.
func (s *Storage) MergeTopics(ctx context.Context, userId, primaryId, finalName string, secondaryIds []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE topics SET name = ? WHERE user_id = ? AND id = ?`, finalName, userId, primaryId)
	if err != nil {
		return fmt.Errorf("failed to rename primary topic: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return common.ErrNotFound
	}

	for _, secondaryId := range secondaryIds {
		// Re-point associations, skipping ones the primary already has, then
		// drop whatever remains pointing at the secondary.
		_, err = tx.ExecContext(ctx, `
			UPDATE memory_topics SET topic_id = ?
			WHERE user_id = ? AND topic_id = ?
			AND NOT EXISTS (
				SELECT 1 FROM memory_topics existing
				WHERE existing.user_id = memory_topics.user_id
				AND existing.memory_id = memory_topics.memory_id
				AND existing.topic_id = ?
			)
		`, primaryId, userId, secondaryId, primaryId)
		if err != nil {
			return fmt.Errorf("failed to move associations from topic %s: %w", secondaryId, err)
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM memory_topics WHERE user_id = ? AND topic_id = ?
			AND EXISTS (
				SELECT 1 FROM memory_topics existing
				WHERE existing.user_id = memory_topics.user_id
				AND existing.memory_id = memory_topics.memory_id
				AND existing.topic_id = ?
			)
		`, userId, secondaryId, primaryId)
		if err != nil {
			return fmt.Errorf("failed to drop duplicate associations from topic %s: %w", secondaryId, err)
		}

		var remaining int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_topics WHERE user_id = ? AND topic_id = ?`, userId, secondaryId).Scan(&remaining)
		if err != nil {
			return fmt.Errorf("failed to count remaining associations: %w", err)
		}
		if remaining > 0 {
			return fmt.Errorf("topic %s still has %d associations after merge, aborting", secondaryId, remaining)
		}

		// Untag messages before the topic row goes away so the FK doesn't
		// null them mid-transaction in an order we don't control.
		_, err = tx.ExecContext(ctx, `UPDATE user_messages SET topic_id = ? WHERE user_id = ? AND topic_id = ?`, primaryId, userId, secondaryId)
		if err != nil {
			return fmt.Errorf("failed to re-tag messages from topic %s: %w", secondaryId, err)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM topics WHERE user_id = ? AND id = ?`, userId, secondaryId)
		if err != nil {
			return fmt.Errorf("failed to delete topic %s: %w", secondaryId, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit topic merge: %w", err)
	}
	return nil
}
