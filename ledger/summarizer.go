package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cortex/common"
	"cortex/domain"
	"cortex/llm"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

/* Hierarchical summarizer: periods (night/morning/afternoon/evening) roll up
 * into dailies, dailies into weeklies and monthlies. Periods are consumed by
 * the daily rollup; weekly and monthly are additive. Every rollup is
 * idempotent by (user, type, window). */

const periodSummaryPrompt = `Summarize the following conversation excerpt between a user and their assistant. Capture what was discussed, decided and felt, in a few short paragraphs. Write in the third person about the user.

%s`

const collapseSummaryPrompt = `The following are partial summaries of one conversation window, in order. Combine them into a single summary organized chronologically. Do not repeat yourself.

%s`

const dailySummaryPrompt = `The following are summaries of one user's day, by period. Combine them into a single summary of the day, organized chronologically.

%s`

const weeklySummaryPrompt = `The following are daily summaries of one user's week, in order. Combine them into a single summary of the week, highlighting recurring themes and notable events.

%s`

const monthlySummaryPrompt = `The following are daily summaries of one user's month, in order. Combine them into a single summary of the month, highlighting recurring themes, progress and notable events.

%s`

// SummarizePeriod produces the period summary of the given type and window
// for one user. Re-running with the same window is a no-op; a window with no
// messages produces nothing.
func (s *Service) SummarizePeriod(ctx context.Context, userId string, summaryType domain.SummaryType, begin, end time.Time) error {
	if !summaryType.IsPeriod() {
		return fmt.Errorf("not a period summary type: %s", summaryType)
	}
	exists, err := s.summaryExists(ctx, userId, summaryType, begin, end)
	if err != nil || exists {
		return err
	}

	messages, err := s.storage.GetMessages(ctx, userId, domain.MessageQuery{Since: &begin, Until: &end})
	if err != nil {
		return fmt.Errorf("failed to load messages for period summary: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	chunks := s.chunkMessages(messages, s.config.Summary.PeriodicMaxTokens)
	chunkSummaries := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		summary, err := s.complete(ctx, fmt.Sprintf(periodSummaryPrompt, chunk))
		if err != nil {
			return fmt.Errorf("failed to summarize chunk: %w", err)
		}
		chunkSummaries = append(chunkSummaries, strings.TrimSpace(summary))
	}

	// single chunk short-circuits the collapse pass
	content := chunkSummaries[0]
	if len(chunkSummaries) > 1 {
		content, err = s.complete(ctx, fmt.Sprintf(collapseSummaryPrompt, strings.Join(chunkSummaries, "\n\n---\n\n")))
		if err != nil {
			return fmt.Errorf("failed to collapse chunk summaries: %w", err)
		}
		content = strings.TrimSpace(content)
	}

	return s.persistSummary(ctx, userId, summaryType, begin, end, content)
}

// SummarizeDaily aggregates the day's period summaries into one daily
// summary and deletes the consumed period summaries.
func (s *Service) SummarizeDaily(ctx context.Context, userId string, day time.Time) error {
	begin, end := domain.DailyWindow(day)
	exists, err := s.summaryExists(ctx, userId, domain.SummaryTypeDaily, begin, end)
	if err != nil || exists {
		return err
	}

	periods, err := s.storage.GetSummaries(ctx, userId, domain.SummaryQuery{
		Types: domain.PeriodSummaryTypes,
		From:  &begin,
		To:    &end,
	})
	if err != nil {
		return fmt.Errorf("failed to load period summaries: %w", err)
	}
	if len(periods) == 0 {
		return nil
	}

	content, err := s.complete(ctx, fmt.Sprintf(dailySummaryPrompt, labeledSummaries(periods)))
	if err != nil {
		return fmt.Errorf("failed to summarize day: %w", err)
	}

	if err := s.persistSummary(ctx, userId, domain.SummaryTypeDaily, begin, end, strings.TrimSpace(content)); err != nil {
		return err
	}

	deleted, err := s.storage.DeleteSummariesInWindow(ctx, userId, domain.PeriodSummaryTypes, begin, end)
	if err != nil {
		return fmt.Errorf("failed to delete consumed period summaries: %w", err)
	}
	log.Debug().Str("userId", userId).Int64("deleted", deleted).Msg("Daily rollup consumed period summaries")
	return nil
}

// SummarizeWeekly aggregates the prior week's daily summaries. The dailies
// are kept: the weekly summary is additive.
func (s *Service) SummarizeWeekly(ctx context.Context, userId string, now time.Time) error {
	begin, end := domain.WeeklyWindow(now)
	return s.aggregateDailies(ctx, userId, domain.SummaryTypeWeekly, weeklySummaryPrompt, begin, end)
}

// SummarizeMonthly aggregates the prior month's daily summaries. The dailies
// are kept: the monthly summary is additive.
func (s *Service) SummarizeMonthly(ctx context.Context, userId string, now time.Time) error {
	begin, end := domain.MonthlyWindow(now)
	return s.aggregateDailies(ctx, userId, domain.SummaryTypeMonthly, monthlySummaryPrompt, begin, end)
}

func (s *Service) aggregateDailies(ctx context.Context, userId string, summaryType domain.SummaryType, prompt string, begin, end time.Time) error {
	exists, err := s.summaryExists(ctx, userId, summaryType, begin, end)
	if err != nil || exists {
		return err
	}

	dailies, err := s.storage.GetSummaries(ctx, userId, domain.SummaryQuery{
		Types: []domain.SummaryType{domain.SummaryTypeDaily},
		From:  &begin,
		To:    &end,
	})
	if err != nil {
		return fmt.Errorf("failed to load daily summaries: %w", err)
	}
	if len(dailies) == 0 {
		return nil
	}

	content, err := s.complete(ctx, fmt.Sprintf(prompt, labeledSummaries(dailies)))
	if err != nil {
		return fmt.Errorf("failed to aggregate daily summaries: %w", err)
	}
	return s.persistSummary(ctx, userId, summaryType, begin, end, strings.TrimSpace(content))
}

func (s *Service) summaryExists(ctx context.Context, userId string, summaryType domain.SummaryType, begin, end time.Time) (bool, error) {
	_, err := s.storage.GetSummaryByWindow(ctx, userId, summaryType, begin, end)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check for existing summary: %w", err)
}

func (s *Service) persistSummary(ctx context.Context, userId string, summaryType domain.SummaryType, begin, end time.Time, content string) error {
	if err := s.storage.PersistSummary(ctx, domain.Summary{
		Id:          "sum_" + ksuid.New().String(),
		UserId:      userId,
		Content:     content,
		SummaryType: summaryType,
		Begin:       begin.UTC(),
		End:         end.UTC(),
		Created:     time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to persist %s summary: %w", summaryType, err)
	}
	log.Info().Str("userId", userId).Str("type", string(summaryType)).
		Time("begin", begin).Time("end", end).Msg("Persisted summary")
	return nil
}

// chunkMessages renders the messages as transcript lines and splits them into
// blocks below the token budget. A single oversized message still becomes its
// own chunk rather than being dropped.
func (s *Service) chunkMessages(messages []domain.Message, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = common.DefaultConfig().Summary.PeriodicMaxTokens
	}
	model := s.chatModel().Model

	var chunks []string
	var builder strings.Builder
	tokens := 0
	for _, message := range messages {
		line := fmt.Sprintf("[%s] %s: %s\n", message.Created.Format("15:04"), message.Role, message.Content)
		lineTokens := llm.CountTokens(model, line)
		if tokens+lineTokens > maxTokens && builder.Len() > 0 {
			chunks = append(chunks, builder.String())
			builder.Reset()
			tokens = 0
		}
		builder.WriteString(line)
		tokens += lineTokens
	}
	if builder.Len() > 0 {
		chunks = append(chunks, builder.String())
	}
	return chunks
}

func labeledSummaries(summaries []domain.Summary) string {
	var builder strings.Builder
	for _, summary := range summaries {
		builder.WriteString(strings.ToUpper(string(summary.SummaryType)))
		builder.WriteString(" (")
		builder.WriteString(summary.Begin.Format("2006-01-02"))
		builder.WriteString("):\n")
		builder.WriteString(summary.Content)
		builder.WriteString("\n\n")
	}
	return strings.TrimSpace(builder.String())
}
