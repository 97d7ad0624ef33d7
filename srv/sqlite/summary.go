package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cortex/common"
	"cortex/domain"
)

var _ domain.SummaryStorage = (*Storage)(nil)

// PersistSummary inserts or updates a Summary in the SQLite database
func (s *Storage) PersistSummary(ctx context.Context, summary domain.Summary) error {
	query := `
		INSERT OR REPLACE INTO summaries (
			user_id, id, content, summary_type, timestamp_begin, timestamp_end, created
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		summary.UserId, summary.Id, summary.Content, summary.SummaryType,
		formatTime(summary.Begin), formatTime(summary.End), formatTime(summary.Created),
	)
	if err != nil {
		return fmt.Errorf("failed to persist summary: %w", err)
	}
	return nil
}

const summaryColumns = `user_id, id, content, summary_type, timestamp_begin, timestamp_end, created`

func scanSummary(scanner interface {
	Scan(dest ...interface{}) error
}) (domain.Summary, error) {
	var summary domain.Summary
	var beginStr, endStr, createdStr string
	err := scanner.Scan(&summary.UserId, &summary.Id, &summary.Content, &summary.SummaryType, &beginStr, &endStr, &createdStr)
	if err != nil {
		return domain.Summary{}, err
	}
	if summary.Begin, err = parseTime(beginStr); err != nil {
		return domain.Summary{}, fmt.Errorf("failed to parse begin time: %w", err)
	}
	if summary.End, err = parseTime(endStr); err != nil {
		return domain.Summary{}, fmt.Errorf("failed to parse end time: %w", err)
	}
	if summary.Created, err = parseTime(createdStr); err != nil {
		return domain.Summary{}, fmt.Errorf("failed to parse created time: %w", err)
	}
	return summary, nil
}

// GetSummary retrieves a single Summary from the SQLite database
func (s *Storage) GetSummary(ctx context.Context, userId, summaryId string) (domain.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM summaries WHERE user_id = ? AND id = ?`
	summary, err := scanSummary(s.db.QueryRowContext(ctx, query, userId, summaryId))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Summary{}, common.ErrNotFound
		}
		return domain.Summary{}, fmt.Errorf("failed to get summary: %w", err)
	}
	return summary, nil
}

func (s *Storage) querySummaries(ctx context.Context, query string, args ...interface{}) ([]domain.Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	summaries := []domain.Summary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return summaries, nil
}

func summaryTypePlaceholders(types []domain.SummaryType) (string, []interface{}) {
	placeholders := make([]string, len(types))
	args := make([]interface{}, len(types))
	for i, summaryType := range types {
		placeholders[i] = "?"
		args[i] = summaryType
	}
	return strings.Join(placeholders, ","), args
}

// GetSummaries returns matching summaries ordered by window begin.
func (s *Storage) GetSummaries(ctx context.Context, userId string, query domain.SummaryQuery) ([]domain.Summary, error) {
	sqlQuery := `SELECT ` + summaryColumns + ` FROM summaries WHERE user_id = ?`
	args := []interface{}{userId}

	if len(query.Types) > 0 {
		placeholders, typeArgs := summaryTypePlaceholders(query.Types)
		sqlQuery += ` AND summary_type IN (` + placeholders + `)`
		args = append(args, typeArgs...)
	}
	if query.From != nil {
		sqlQuery += " AND timestamp_begin >= ?"
		args = append(args, formatTime(*query.From))
	}
	if query.To != nil {
		sqlQuery += " AND timestamp_end <= ?"
		args = append(args, formatTime(*query.To))
	}
	sqlQuery += " ORDER BY timestamp_begin ASC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	return s.querySummaries(ctx, sqlQuery, args...)
}

// GetRecentSummaries returns the newest summaries first, any type.
func (s *Storage) GetRecentSummaries(ctx context.Context, userId string, limit int) ([]domain.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM summaries WHERE user_id = ?
			  ORDER BY timestamp_begin DESC, id DESC LIMIT ?`
	return s.querySummaries(ctx, query, userId, limit)
}

// GetSummaryByWindow fetches the summary with exactly this type and window.
func (s *Storage) GetSummaryByWindow(ctx context.Context, userId string, summaryType domain.SummaryType, begin, end time.Time) (domain.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM summaries
			  WHERE user_id = ? AND summary_type = ? AND timestamp_begin = ? AND timestamp_end = ?`
	summary, err := scanSummary(s.db.QueryRowContext(ctx, query, userId, summaryType, formatTime(begin), formatTime(end)))
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Summary{}, common.ErrNotFound
		}
		return domain.Summary{}, fmt.Errorf("failed to get summary by window: %w", err)
	}
	return summary, nil
}

// DeleteSummariesInWindow removes summaries of the given types whose windows
// fall entirely inside [begin, end).
func (s *Storage) DeleteSummariesInWindow(ctx context.Context, userId string, summaryTypes []domain.SummaryType, begin, end time.Time) (int64, error) {
	if len(summaryTypes) == 0 {
		return 0, nil
	}
	placeholders, typeArgs := summaryTypePlaceholders(summaryTypes)
	query := `DELETE FROM summaries WHERE user_id = ? AND summary_type IN (` + placeholders + `)
			  AND timestamp_begin >= ? AND timestamp_end <= ?`
	args := append([]interface{}{userId}, typeArgs...)
	args = append(args, formatTime(begin), formatTime(end))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete summaries in window: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
