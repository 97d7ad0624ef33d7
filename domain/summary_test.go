package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodWindow(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 3, 12, 14, 33, 0, 0, time.UTC)

	t.Run("four buckets partition the day", func(t *testing.T) {
		t.Parallel()
		midnight := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
		cursor := midnight
		for _, periodType := range PeriodSummaryTypes {
			begin, end := PeriodWindow(periodType, day)
			assert.Equal(t, cursor, begin, "period %s should start where the previous ended", periodType)
			assert.Equal(t, 6*time.Hour, end.Sub(begin))
			cursor = end
		}
		assert.Equal(t, midnight.AddDate(0, 0, 1), cursor)
	})
}

func TestCompletedPeriodWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		now           time.Time
		expectedType  SummaryType
		expectedBegin time.Time
	}{
		{
			name:          "early morning completes previous day's evening",
			now:           time.Date(2025, 3, 12, 0, 5, 0, 0, time.UTC),
			expectedType:  SummaryTypeEvening,
			expectedBegin: time.Date(2025, 3, 11, 18, 0, 0, 0, time.UTC),
		},
		{
			name:          "mid morning completes night",
			now:           time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC),
			expectedType:  SummaryTypeNight,
			expectedBegin: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "afternoon completes morning",
			now:           time.Date(2025, 3, 12, 13, 0, 0, 0, time.UTC),
			expectedType:  SummaryTypeMorning,
			expectedBegin: time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC),
		},
		{
			name:          "evening completes afternoon",
			now:           time.Date(2025, 3, 12, 21, 0, 0, 0, time.UTC),
			expectedType:  SummaryTypeAfternoon,
			expectedBegin: time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			summaryType, begin, end := CompletedPeriodWindow(tt.now)
			assert.Equal(t, tt.expectedType, summaryType)
			assert.Equal(t, tt.expectedBegin, begin)
			assert.Equal(t, tt.expectedBegin.Add(6*time.Hour), end)
			assert.True(t, !end.After(tt.now), "completed window must end at or before now")
		})
	}
}

func TestDailyWindow(t *testing.T) {
	t.Parallel()

	begin, end := DailyWindow(time.Date(2025, 3, 12, 17, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), begin)
	assert.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), end)
}

func TestWeeklyWindow(t *testing.T) {
	t.Parallel()

	t.Run("monday anchors to the prior week", func(t *testing.T) {
		t.Parallel()
		// 2025-03-10 is a Monday
		begin, end := WeeklyWindow(time.Date(2025, 3, 10, 0, 1, 0, 0, time.UTC))
		assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), begin)
		assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), end)
	})

	t.Run("sunday still anchors to the week before its own", func(t *testing.T) {
		t.Parallel()
		// 2025-03-16 is a Sunday; its week began Monday 2025-03-10
		begin, end := WeeklyWindow(time.Date(2025, 3, 16, 12, 0, 0, 0, time.UTC))
		assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), begin)
		assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), end)
	})
}

func TestMonthlyWindow(t *testing.T) {
	t.Parallel()

	begin, end := MonthlyWindow(time.Date(2025, 3, 1, 0, 10, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), begin)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestStringToSummaryType(t *testing.T) {
	t.Parallel()

	for _, summaryType := range AllSummaryTypes {
		parsed, err := StringToSummaryType(string(summaryType))
		require.NoError(t, err)
		assert.Equal(t, summaryType, parsed)
	}

	_, err := StringToSummaryType("hourly")
	assert.Error(t, err)

	assert.True(t, SummaryTypeMorning.IsPeriod())
	assert.False(t, SummaryTypeDaily.IsPeriod())
}
