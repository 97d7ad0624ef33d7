package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cortex/common"
	"cortex/domain"
)

var _ domain.MessageStorage = (*Storage)(nil)

// PersistMessage inserts or updates a Message in the SQLite database
func (s *Storage) PersistMessage(ctx context.Context, message domain.Message) error {
	var toolCallsJSON []byte
	if len(message.ToolCalls) > 0 {
		var err error
		toolCallsJSON, err = json.Marshal(message.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal ToolCalls: %w", err)
		}
	}

	query := `
		INSERT OR REPLACE INTO user_messages (
			user_id, id, platform, platform_msg_id, role, content,
			tool_calls, tool_call_id, topic_id, created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		message.UserId, message.Id, message.Platform, nullable(message.PlatformMsgId),
		message.Role, message.Content, toolCallsJSON, nullable(message.ToolCallId),
		nullable(message.TopicId), formatTime(message.Created),
	)
	if err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	return nil
}

const messageColumns = `user_id, id, platform, platform_msg_id, role, content, tool_calls, tool_call_id, topic_id, created`

func scanMessage(scanner interface {
	Scan(dest ...interface{}) error
}) (domain.Message, error) {
	var message domain.Message
	var platformMsgId, toolCallId, topicId sql.NullString
	var toolCallsJSON []byte
	var createdStr string

	err := scanner.Scan(
		&message.UserId, &message.Id, &message.Platform, &platformMsgId,
		&message.Role, &message.Content, &toolCallsJSON, &toolCallId,
		&topicId, &createdStr,
	)
	if err != nil {
		return domain.Message{}, err
	}

	message.PlatformMsgId = platformMsgId.String
	message.ToolCallId = toolCallId.String
	message.TopicId = topicId.String

	if len(toolCallsJSON) > 0 {
		if err := json.Unmarshal(toolCallsJSON, &message.ToolCalls); err != nil {
			return domain.Message{}, fmt.Errorf("failed to unmarshal tool calls: %w", err)
		}
	}

	message.Created, err = parseTime(createdStr)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to parse created time: %w", err)
	}

	return message, nil
}

// GetMessage retrieves a single Message from the SQLite database
func (s *Storage) GetMessage(ctx context.Context, userId, messageId string) (domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM user_messages WHERE user_id = ? AND id = ?`
	message, err := scanMessage(s.db.QueryRowContext(ctx, query, userId, messageId))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Message{}, common.ErrNotFound
		}
		return domain.Message{}, fmt.Errorf("failed to get message: %w", err)
	}
	return message, nil
}

// GetMessageByPlatformMsgId looks a message up by its platform-durable id.
func (s *Storage) GetMessageByPlatformMsgId(ctx context.Context, userId string, platform domain.Platform, platformMsgId string) (domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM user_messages
			  WHERE user_id = ? AND platform = ? AND platform_msg_id = ?`
	message, err := scanMessage(s.db.QueryRowContext(ctx, query, userId, platform, platformMsgId))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Message{}, common.ErrNotFound
		}
		return domain.Message{}, fmt.Errorf("failed to get message by platform msg id: %w", err)
	}
	return message, nil
}

func (s *Storage) queryMessages(ctx context.Context, query string, args ...interface{}) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return messages, nil
}

// GetMessages returns matching messages in chronological order.
func (s *Storage) GetMessages(ctx context.Context, userId string, query domain.MessageQuery) ([]domain.Message, error) {
	sqlQuery := `SELECT ` + messageColumns + ` FROM user_messages WHERE user_id = ?`
	args := []interface{}{userId}

	if query.Since != nil {
		sqlQuery += " AND created >= ?"
		args = append(args, formatTime(*query.Since))
	}
	if query.Until != nil {
		sqlQuery += " AND created < ?"
		args = append(args, formatTime(*query.Until))
	}
	if query.TopicId != "" {
		sqlQuery += " AND topic_id = ?"
		args = append(args, query.TopicId)
	}
	sqlQuery += " ORDER BY created ASC, id ASC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	return s.queryMessages(ctx, sqlQuery, args...)
}

// GetRecentMessages returns the newest messages in chronological order.
func (s *Storage) GetRecentMessages(ctx context.Context, userId string, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
				  SELECT ` + messageColumns + ` FROM user_messages
				  WHERE user_id = ? ORDER BY created DESC, id DESC LIMIT ?
			  ) ORDER BY created ASC, id ASC`
	return s.queryMessages(ctx, query, userId, limit)
}

// GetUntaggedMessages returns messages with no topic yet, in chronological order.
func (s *Storage) GetUntaggedMessages(ctx context.Context, userId string, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM user_messages
			  WHERE user_id = ? AND topic_id IS NULL
			  ORDER BY created ASC, id ASC LIMIT ?`
	return s.queryMessages(ctx, query, userId, limit)
}

// AssignTopic tags every untagged message in [start, end] with the topic.
func (s *Storage) AssignTopic(ctx context.Context, userId, topicId string, start, end time.Time) (int64, error) {
	query := `UPDATE user_messages SET topic_id = ?
			  WHERE user_id = ? AND topic_id IS NULL AND created >= ? AND created <= ?`
	result, err := s.db.ExecContext(ctx, query, topicId, userId, formatTime(start), formatTime(end))
	if err != nil {
		return 0, fmt.Errorf("failed to assign topic: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// GetActiveUserIds returns ids of users with a message at or after the given time.
func (s *Storage) GetActiveUserIds(ctx context.Context, since time.Time) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM user_messages WHERE created >= ? ORDER BY user_id`
	rows, err := s.db.QueryContext(ctx, query, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var userIds []string
	for rows.Next() {
		var userId string
		if err := rows.Scan(&userId); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIds = append(userIds, userId)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return userIds, nil
}
