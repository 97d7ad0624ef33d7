package ledger

import (
	"context"
	"testing"
	"time"

	"cortex/common"
	"cortex/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessages(t *testing.T, service *Service, userId string, at time.Time, contents ...string) {
	t.Helper()
	for i, content := range contents {
		err := service.storage.PersistMessage(context.Background(), domain.Message{
			Id:       "msg_seed_" + at.Format("150405") + "_" + string(rune('a'+i)),
			UserId:   userId,
			Platform: domain.PlatformApi,
			Role:     common.ChatMessageRoleUser,
			Content:  content,
			Created:  at.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func TestSummarizePeriodSingleChunkSkipsCollapse(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"a short morning"}}
	service := newTestService(t, dispatcher)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	begin, end := domain.PeriodWindow(domain.SummaryTypeMorning, day)
	seedMessages(t, service, "user1", begin.Add(time.Hour), "good morning", "coffee time")

	require.NoError(t, service.SummarizePeriod(ctx, "user1", domain.SummaryTypeMorning, begin, end))

	// a single chunk means exactly one LLM call: no collapse pass
	assert.Equal(t, 1, dispatcher.callCount())

	summary, err := service.storage.GetSummaryByWindow(ctx, "user1", domain.SummaryTypeMorning, begin, end)
	require.NoError(t, err)
	assert.Equal(t, "a short morning", summary.Content)
}

func TestSummarizePeriodMultiChunkCollapses(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"chunk one", "chunk two", "combined"}}
	service := newTestService(t, dispatcher)
	service.config.Summary.PeriodicMaxTokens = 8
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	begin, end := domain.PeriodWindow(domain.SummaryTypeAfternoon, day)
	seedMessages(t, service, "user1", begin.Add(time.Hour),
		"a fairly long message that overflows the tiny budget",
		"another fairly long message that overflows the tiny budget")

	require.NoError(t, service.SummarizePeriod(ctx, "user1", domain.SummaryTypeAfternoon, begin, end))
	assert.Equal(t, 3, dispatcher.callCount(), "two chunk calls plus one collapse call")

	summary, err := service.storage.GetSummaryByWindow(ctx, "user1", domain.SummaryTypeAfternoon, begin, end)
	require.NoError(t, err)
	assert.Equal(t, "combined", summary.Content)
}

func TestSummarizePeriodIsIdempotent(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"first run"}}
	service := newTestService(t, dispatcher)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	begin, end := domain.PeriodWindow(domain.SummaryTypeEvening, day)
	seedMessages(t, service, "user1", begin.Add(time.Hour), "evening chat")

	require.NoError(t, service.SummarizePeriod(ctx, "user1", domain.SummaryTypeEvening, begin, end))
	require.NoError(t, service.SummarizePeriod(ctx, "user1", domain.SummaryTypeEvening, begin, end))

	assert.Equal(t, 1, dispatcher.callCount(), "second run must not call the LLM again")
	summaries, err := service.Summaries(ctx, "user1", domain.SummaryQuery{Types: []domain.SummaryType{domain.SummaryTypeEvening}})
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestSummarizePeriodEmptyWindowProducesNothing(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	service := newTestService(t, dispatcher)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	begin, end := domain.PeriodWindow(domain.SummaryTypeNight, day)
	require.NoError(t, service.SummarizePeriod(context.Background(), "user1", domain.SummaryTypeNight, begin, end))
	assert.Zero(t, dispatcher.callCount())
}

func TestSummarizeDailyConsumesPeriodSummaries(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"m", "a", "the whole day"}}
	service := newTestService(t, dispatcher)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, summaryType := range []domain.SummaryType{domain.SummaryTypeMorning, domain.SummaryTypeAfternoon} {
		begin, end := domain.PeriodWindow(summaryType, day)
		seedMessages(t, service, "user1", begin.Add(time.Hour), "something happened")
		require.NoError(t, service.SummarizePeriod(ctx, "user1", summaryType, begin, end))
	}

	require.NoError(t, service.SummarizeDaily(ctx, "user1", day))

	dayBegin, dayEnd := domain.DailyWindow(day)
	daily, err := service.storage.GetSummaryByWindow(ctx, "user1", domain.SummaryTypeDaily, dayBegin, dayEnd)
	require.NoError(t, err)
	assert.Equal(t, "the whole day", daily.Content)

	// conservation: no period summary for the day remains, exactly one daily exists
	remaining, err := service.Summaries(ctx, "user1", domain.SummaryQuery{From: &dayBegin, To: &dayEnd})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, domain.SummaryTypeDaily, remaining[0].SummaryType)
}

func TestSummarizeDailyIsIdempotent(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"m", "one day"}}
	service := newTestService(t, dispatcher)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	begin, end := domain.PeriodWindow(domain.SummaryTypeMorning, day)
	seedMessages(t, service, "user1", begin.Add(time.Hour), "hello")
	require.NoError(t, service.SummarizePeriod(ctx, "user1", domain.SummaryTypeMorning, begin, end))

	require.NoError(t, service.SummarizeDaily(ctx, "user1", day))
	require.NoError(t, service.SummarizeDaily(ctx, "user1", day))

	dayBegin, dayEnd := domain.DailyWindow(day)
	summaries, err := service.Summaries(ctx, "user1", domain.SummaryQuery{
		Types: []domain.SummaryType{domain.SummaryTypeDaily}, From: &dayBegin, To: &dayEnd,
	})
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestSummarizeWeeklyKeepsDailySummaries(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"the week"}}
	service := newTestService(t, dispatcher)
	ctx := context.Background()

	// a Wednesday; the weekly window is the prior Monday through Sunday
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	weekBegin, weekEnd := domain.WeeklyWindow(now)

	for i := 0; i < 3; i++ {
		day := weekBegin.AddDate(0, 0, i)
		dayBegin, dayEnd := domain.DailyWindow(day)
		require.NoError(t, service.persistSummary(ctx, "user1", domain.SummaryTypeDaily, dayBegin, dayEnd, "day "+string(rune('1'+i))))
	}

	require.NoError(t, service.SummarizeWeekly(ctx, "user1", now))

	weekly, err := service.storage.GetSummaryByWindow(ctx, "user1", domain.SummaryTypeWeekly, weekBegin, weekEnd)
	require.NoError(t, err)
	assert.Equal(t, "the week", weekly.Content)

	// weekly rollups are additive: the dailies survive
	dailies, err := service.Summaries(ctx, "user1", domain.SummaryQuery{Types: []domain.SummaryType{domain.SummaryTypeDaily}})
	require.NoError(t, err)
	assert.Len(t, dailies, 3)
}

func TestSummarizeMonthlyAggregatesPriorMonth(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"the month"}}
	service := newTestService(t, dispatcher)
	ctx := context.Background()

	now := time.Date(2026, 4, 1, 0, 30, 0, 0, time.UTC)
	monthBegin, monthEnd := domain.MonthlyWindow(now)

	dayBegin, dayEnd := domain.DailyWindow(monthBegin.AddDate(0, 0, 10))
	require.NoError(t, service.persistSummary(ctx, "user1", domain.SummaryTypeDaily, dayBegin, dayEnd, "mid-month day"))

	require.NoError(t, service.SummarizeMonthly(ctx, "user1", now))

	monthly, err := service.storage.GetSummaryByWindow(ctx, "user1", domain.SummaryTypeMonthly, monthBegin, monthEnd)
	require.NoError(t, err)
	assert.Equal(t, "the month", monthly.Content)
}

func TestSummaryWindowsDoNotOverlap(t *testing.T) {
	dispatcher := &fakeDispatcher{responses: []string{"one", "two"}}
	service := newTestService(t, dispatcher)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, summaryType := range []domain.SummaryType{domain.SummaryTypeMorning, domain.SummaryTypeAfternoon} {
		begin, end := domain.PeriodWindow(summaryType, day)
		seedMessages(t, service, "user1", begin.Add(time.Hour), "text")
		require.NoError(t, service.SummarizePeriod(ctx, "user1", summaryType, begin, end))
	}

	summaries, err := service.Summaries(ctx, "user1", domain.SummaryQuery{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for i := 0; i < len(summaries); i++ {
		for j := i + 1; j < len(summaries); j++ {
			a, b := summaries[i], summaries[j]
			overlaps := a.Begin.Before(b.End) && b.Begin.Before(a.End)
			assert.False(t, overlaps, "summary windows %d and %d overlap", i, j)
		}
	}
}
