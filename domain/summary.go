package domain

import (
	"context"
	"fmt"
	"time"
)

type SummaryType string

const (
	SummaryTypeMorning   SummaryType = "morning"
	SummaryTypeAfternoon SummaryType = "afternoon"
	SummaryTypeEvening   SummaryType = "evening"
	SummaryTypeNight     SummaryType = "night"
	SummaryTypeDaily     SummaryType = "daily"
	SummaryTypeWeekly    SummaryType = "weekly"
	SummaryTypeMonthly   SummaryType = "monthly"
)

var AllSummaryTypes = []SummaryType{
	SummaryTypeMorning,
	SummaryTypeAfternoon,
	SummaryTypeEvening,
	SummaryTypeNight,
	SummaryTypeDaily,
	SummaryTypeWeekly,
	SummaryTypeMonthly,
}

// PeriodSummaryTypes are the four intra-day buckets, in day order.
var PeriodSummaryTypes = []SummaryType{
	SummaryTypeNight,
	SummaryTypeMorning,
	SummaryTypeAfternoon,
	SummaryTypeEvening,
}

func StringToSummaryType(s string) (SummaryType, error) {
	switch s {
	case "morning":
		return SummaryTypeMorning, nil
	case "afternoon":
		return SummaryTypeAfternoon, nil
	case "evening":
		return SummaryTypeEvening, nil
	case "night":
		return SummaryTypeNight, nil
	case "daily":
		return SummaryTypeDaily, nil
	case "weekly":
		return SummaryTypeWeekly, nil
	case "monthly":
		return SummaryTypeMonthly, nil
	default:
		return "", fmt.Errorf("invalid SummaryType: \"%s\"", s)
	}
}

// IsPeriod reports whether the type is one of the four intra-day buckets.
func (st SummaryType) IsPeriod() bool {
	switch st {
	case SummaryTypeNight, SummaryTypeMorning, SummaryTypeAfternoon, SummaryTypeEvening:
		return true
	}
	return false
}

// Summary is a derived text spanning a half-open time window [Begin, End)
// for one user.
type Summary struct {
	Id          string      `json:"id"`
	UserId      string      `json:"userId"`
	Content     string      `json:"content"`
	SummaryType SummaryType `json:"summaryType"`
	Begin       time.Time   `json:"timestampBegin"`
	End         time.Time   `json:"timestampEnd"`
	Created     time.Time   `json:"created"`
}

// SummaryQuery narrows a summary listing. Zero values mean "no constraint".
type SummaryQuery struct {
	Types []SummaryType `json:"types,omitempty"`
	From  *time.Time    `json:"from,omitempty"`
	To    *time.Time    `json:"to,omitempty"`
	Limit int           `json:"limit,omitempty"`
}

// SummaryStorage defines the interface for summary-related database operations.
type SummaryStorage interface {
	PersistSummary(ctx context.Context, summary Summary) error
	GetSummary(ctx context.Context, userId, summaryId string) (Summary, error)
	GetSummaries(ctx context.Context, userId string, query SummaryQuery) ([]Summary, error)
	// GetRecentSummaries returns the newest summaries first, any type,
	// limited to the given count.
	GetRecentSummaries(ctx context.Context, userId string, limit int) ([]Summary, error)
	// GetSummaryByWindow fetches the summary with exactly this type and
	// window. Returns common.ErrNotFound when absent; rollups use this to
	// stay idempotent.
	GetSummaryByWindow(ctx context.Context, userId string, summaryType SummaryType, begin, end time.Time) (Summary, error)
	// DeleteSummariesInWindow removes summaries of the given types whose
	// windows fall entirely inside [begin, end), returning how many were
	// removed.
	DeleteSummariesInWindow(ctx context.Context, userId string, summaryTypes []SummaryType, begin, end time.Time) (int64, error)
}

// Period windows partition each day into four fixed buckets:
// night [00:00, 06:00), morning [06:00, 12:00), afternoon [12:00, 18:00),
// evening [18:00, 24:00).

// PeriodWindow returns the half-open window of the given period type on the
// day containing t, in t's location.
func PeriodWindow(summaryType SummaryType, t time.Time) (time.Time, time.Time) {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch summaryType {
	case SummaryTypeNight:
		return midnight, midnight.Add(6 * time.Hour)
	case SummaryTypeMorning:
		return midnight.Add(6 * time.Hour), midnight.Add(12 * time.Hour)
	case SummaryTypeAfternoon:
		return midnight.Add(12 * time.Hour), midnight.Add(18 * time.Hour)
	case SummaryTypeEvening:
		return midnight.Add(18 * time.Hour), midnight.Add(24 * time.Hour)
	}
	return midnight, midnight.Add(24 * time.Hour)
}

// CompletedPeriodWindow returns the most recently completed period bucket
// relative to now, with its window. Shortly after midnight that is the
// previous day's evening.
func CompletedPeriodWindow(now time.Time) (SummaryType, time.Time, time.Time) {
	switch hour := now.Hour(); {
	case hour < 6:
		begin, end := PeriodWindow(SummaryTypeEvening, now.AddDate(0, 0, -1))
		return SummaryTypeEvening, begin, end
	case hour < 12:
		begin, end := PeriodWindow(SummaryTypeNight, now)
		return SummaryTypeNight, begin, end
	case hour < 18:
		begin, end := PeriodWindow(SummaryTypeMorning, now)
		return SummaryTypeMorning, begin, end
	default:
		begin, end := PeriodWindow(SummaryTypeAfternoon, now)
		return SummaryTypeAfternoon, begin, end
	}
}

// DailyWindow returns the half-open window covering the whole day containing t.
func DailyWindow(t time.Time) (time.Time, time.Time) {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight, midnight.AddDate(0, 0, 1)
}

// WeeklyWindow returns the window of the calendar week (Monday through
// Sunday) immediately before the one containing t.
func WeeklyWindow(t time.Time) (time.Time, time.Time) {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	daysSinceMonday := (int(midnight.Weekday()) + 6) % 7
	thisMonday := midnight.AddDate(0, 0, -daysSinceMonday)
	return thisMonday.AddDate(0, 0, -7), thisMonday
}

// MonthlyWindow returns the window of the calendar month immediately before
// the one containing t.
func MonthlyWindow(t time.Time) (time.Time, time.Time) {
	firstOfThisMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return firstOfThisMonth.AddDate(0, -1, 0), firstOfThisMonth
}
