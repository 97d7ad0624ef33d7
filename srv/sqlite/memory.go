package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"cortex/common"
	"cortex/domain"
)

var _ domain.MemoryStorage = (*Storage)(nil)

// PersistMemory inserts or updates a Memory and its keyword rows. The
// keyword set is replaced wholesale so stale tags never linger.
func (s *Storage) PersistMemory(ctx context.Context, memory domain.Memory) error {
	memory.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO memories (user_id, id, content, category, priority, created)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		memory.UserId, memory.Id, memory.Content, memory.Category, memory.Priority, formatTime(memory.Created),
	)
	if err != nil {
		return fmt.Errorf("failed to persist memory: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM memory_tags WHERE user_id = ? AND memory_id = ?`, memory.UserId, memory.Id)
	if err != nil {
		return fmt.Errorf("failed to clear memory tags: %w", err)
	}
	for _, keyword := range memory.Keywords {
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO memory_tags (user_id, memory_id, keyword) VALUES (?, ?, ?)`,
			memory.UserId, memory.Id, keyword)
		if err != nil {
			return fmt.Errorf("failed to persist memory tag %q: %w", keyword, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memory: %w", err)
	}
	return nil
}

func (s *Storage) loadMemoryRelations(ctx context.Context, memory *domain.Memory) error {
	rows, err := s.db.QueryContext(ctx, `SELECT keyword FROM memory_tags WHERE user_id = ? AND memory_id = ? ORDER BY keyword`, memory.UserId, memory.Id)
	if err != nil {
		return fmt.Errorf("failed to query memory tags: %w", err)
	}
	defer rows.Close()
	memory.Keywords = []string{}
	for rows.Next() {
		var keyword string
		if err := rows.Scan(&keyword); err != nil {
			return fmt.Errorf("failed to scan keyword: %w", err)
		}
		memory.Keywords = append(memory.Keywords, keyword)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	topicRows, err := s.db.QueryContext(ctx, `SELECT topic_id FROM memory_topics WHERE user_id = ? AND memory_id = ? ORDER BY topic_id`, memory.UserId, memory.Id)
	if err != nil {
		return fmt.Errorf("failed to query memory topics: %w", err)
	}
	defer topicRows.Close()
	memory.TopicIds = nil
	for topicRows.Next() {
		var topicId string
		if err := topicRows.Scan(&topicId); err != nil {
			return fmt.Errorf("failed to scan topic id: %w", err)
		}
		memory.TopicIds = append(memory.TopicIds, topicId)
	}
	return topicRows.Err()
}

// GetMemory retrieves a single Memory with its keywords and topic links.
func (s *Storage) GetMemory(ctx context.Context, userId, memoryId string) (domain.Memory, error) {
	var memory domain.Memory
	var createdStr string
	query := `SELECT user_id, id, content, category, priority, created FROM memories WHERE user_id = ? AND id = ?`
	err := s.db.QueryRowContext(ctx, query, userId, memoryId).Scan(
		&memory.UserId, &memory.Id, &memory.Content, &memory.Category, &memory.Priority, &createdStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Memory{}, common.ErrNotFound
		}
		return domain.Memory{}, fmt.Errorf("failed to get memory: %w", err)
	}
	if memory.Created, err = parseTime(createdStr); err != nil {
		return domain.Memory{}, fmt.Errorf("failed to parse created time: %w", err)
	}
	if err := s.loadMemoryRelations(ctx, &memory); err != nil {
		return domain.Memory{}, err
	}
	return memory, nil
}

// GetMemories returns matching memories ordered by priority descending, then
// newest first.
func (s *Storage) GetMemories(ctx context.Context, userId string, query domain.MemoryQuery) ([]domain.Memory, error) {
	sqlQuery := `SELECT m.user_id, m.id, m.content, m.category, m.priority, m.created FROM memories m`
	args := []interface{}{}

	if query.TopicId != "" {
		sqlQuery += ` JOIN memory_topics mt ON mt.user_id = m.user_id AND mt.memory_id = m.id AND mt.topic_id = ?`
		args = append(args, query.TopicId)
	}
	sqlQuery += ` WHERE m.user_id = ?`
	args = append(args, userId)
	if query.Category != "" {
		sqlQuery += ` AND m.category = ?`
		args = append(args, query.Category)
	}
	sqlQuery += ` ORDER BY m.priority DESC, m.created DESC, m.id DESC`
	if query.Limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	memories := []domain.Memory{}
	for rows.Next() {
		var memory domain.Memory
		var createdStr string
		if err := rows.Scan(&memory.UserId, &memory.Id, &memory.Content, &memory.Category, &memory.Priority, &createdStr); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		if memory.Created, err = parseTime(createdStr); err != nil {
			return nil, fmt.Errorf("failed to parse created time: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	for i := range memories {
		if err := s.loadMemoryRelations(ctx, &memories[i]); err != nil {
			return nil, err
		}
	}
	return memories, nil
}

// DeleteMemory removes a Memory; tag and topic rows cascade.
func (s *Storage) DeleteMemory(ctx context.Context, userId, memoryId string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE user_id = ? AND id = ?`, userId, memoryId)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
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

// AttachMemoryTopic links a memory to a topic; linking twice is a no-op.
func (s *Storage) AttachMemoryTopic(ctx context.Context, userId, memoryId, topicId string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO memory_topics (user_id, memory_id, topic_id) VALUES (?, ?, ?)`,
		userId, memoryId, topicId)
	if err != nil {
		return fmt.Errorf("failed to attach memory to topic: %w", err)
	}
	return nil
}

// GetTopicMemoryCounts returns association counts for topics with at least
// minCount associated memories.
func (s *Storage) GetTopicMemoryCounts(ctx context.Context, userId string, minCount int) (map[string]int, error) {
	query := `SELECT topic_id, COUNT(*) FROM memory_topics WHERE user_id = ?
			  GROUP BY topic_id HAVING COUNT(*) >= ?`
	rows, err := s.db.QueryContext(ctx, query, userId, minCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic memory counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var topicId string
		var count int
		if err := rows.Scan(&topicId, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[topicId] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

// DeleteOrphanAssociations removes memory-topic links and keyword rows whose
// memory or topic no longer exists. Foreign keys make these rare; the sweep
// covers rows written before enforcement was on.
func (s *Storage) DeleteOrphanAssociations(ctx context.Context) (int64, error) {
	var total int64

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_topics WHERE
		NOT EXISTS (SELECT 1 FROM memories m WHERE m.user_id = memory_topics.user_id AND m.id = memory_topics.memory_id)
		OR NOT EXISTS (SELECT 1 FROM topics t WHERE t.user_id = memory_topics.user_id AND t.id = memory_topics.topic_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan memory-topic rows: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	total += n

	result, err = s.db.ExecContext(ctx, `
		DELETE FROM memory_tags WHERE
		NOT EXISTS (SELECT 1 FROM memories m WHERE m.user_id = memory_tags.user_id AND m.id = memory_tags.memory_id)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan memory-tag rows: %w", err)
	}
	n, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	total += n

	return total, nil
}
