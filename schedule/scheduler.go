package schedule

import (
	"context"
	"time"

	"cortex/common"
	"cortex/domain"
	"cortex/fflag"

	"github.com/rs/zerolog/log"
)

// Summarizer is the slice of the ledger the scheduler drives.
type Summarizer interface {
	SummarizePeriod(ctx context.Context, userId string, summaryType domain.SummaryType, begin, end time.Time) error
	SummarizeDaily(ctx context.Context, userId string, day time.Time) error
	SummarizeWeekly(ctx context.Context, userId string, now time.Time) error
	SummarizeMonthly(ctx context.Context, userId string, now time.Time) error
	ReviewLog(ctx context.Context) error
	Sweep(ctx context.Context) error
}

// Deduper is the slice of the memory engine the scheduler drives.
type Deduper interface {
	RunKeywordDedup(ctx context.Context, userId string) error
	RunSemanticDedup(ctx context.Context, userId string) error
	RunTopicDedup(ctx context.Context, userId string) error
}

// ActiveUsers enumerates users with recent conversation activity.
type ActiveUsers interface {
	GetActiveUserIds(ctx context.Context, since time.Time) ([]string, error)
}

// activityWindow bounds which users background jobs bother with.
const activityWindow = 7 * 24 * time.Hour

// Scheduler drives the background work on a one-minute tick: summary rollups
// at their window boundaries, log review, dedup passes and the orphan sweep.
// Rollups operate on windows strictly in the past, so they never collide
// with ongoing ingestion for the current window.
type Scheduler struct {
	summarizer  Summarizer
	deduper     Deduper
	users       ActiveUsers
	coordinator *Coordinator
	config      common.Config
	flags       fflag.FFlag
}

func NewScheduler(summarizer Summarizer, deduper Deduper, users ActiveUsers, config common.Config, flags fflag.FFlag) *Scheduler {
	return &Scheduler{
		summarizer:  summarizer,
		deduper:     deduper,
		users:       users,
		coordinator: NewCoordinator(),
		config:      config,
		flags:       flags,
	}
}

// Run ticks once a minute until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	log.Info().Msg("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick runs everything due at the given instant. Every job goes through the
// coordinator, so a tick storm or an overlapping previous tick never runs
// the same (kind, user, window) twice.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	userIds, err := s.users.GetActiveUserIds(ctx, now.Add(-activityWindow))
	if err != nil {
		log.Error().Err(err).Msg("Scheduler failed to list active users")
		return
	}

	for _, userId := range userIds {
		s.summarizeDue(ctx, userId, now)
		if s.dedupDue(now) {
			s.runDedup(ctx, userId, now)
		}
	}

	s.runHousekeeping(ctx, now)
}

// summarizeDue offers the rollups whose windows have closed: the most recent
// period always, dailies after 00:05, weeklies on Mondays, monthlies on the
// first of the month.
func (s *Scheduler) summarizeDue(ctx context.Context, userId string, now time.Time) {
	periodType, begin, end := domain.CompletedPeriodWindow(now)
	s.run(ctx, JobKey{Kind: "period_" + string(periodType), UserId: userId, Window: begin}, s.config.Timeout(), func(jobCtx context.Context) error {
		return s.summarizer.SummarizePeriod(jobCtx, userId, periodType, begin, end)
	})

	pastDailyCutoff := now.Hour() > 0 || now.Minute() >= 5
	if !pastDailyCutoff {
		return
	}

	yesterday := now.AddDate(0, 0, -1)
	dayBegin, _ := domain.DailyWindow(yesterday)
	s.run(ctx, JobKey{Kind: "daily", UserId: userId, Window: dayBegin}, s.config.Timeout(), func(jobCtx context.Context) error {
		return s.summarizer.SummarizeDaily(jobCtx, userId, yesterday)
	})

	if now.Weekday() == time.Monday {
		weekBegin, _ := domain.WeeklyWindow(now)
		s.run(ctx, JobKey{Kind: "weekly", UserId: userId, Window: weekBegin}, s.config.Timeout(), func(jobCtx context.Context) error {
			return s.summarizer.SummarizeWeekly(jobCtx, userId, now)
		})
	}

	if now.Day() == 1 {
		monthBegin, _ := domain.MonthlyWindow(now)
		s.run(ctx, JobKey{Kind: "monthly", UserId: userId, Window: monthBegin}, s.config.Timeout(), func(jobCtx context.Context) error {
			return s.summarizer.SummarizeMonthly(jobCtx, userId, now)
		})
	}
}

// dedupDue puts the heavy memory maintenance in the quiet early-morning
// hour.
func (s *Scheduler) dedupDue(now time.Time) bool {
	return now.Hour() == 3
}

func (s *Scheduler) runDedup(ctx context.Context, userId string, now time.Time) {
	day, _ := domain.DailyWindow(now)
	timeout := s.config.DedupTimeout()

	s.run(ctx, JobKey{Kind: "dedup_keywords", UserId: userId, Window: day}, timeout, func(jobCtx context.Context) error {
		return s.deduper.RunKeywordDedup(jobCtx, userId)
	})

	// the embedding-based passes roll out behind a flag; no flags file means
	// everything is on
	if s.flags.Client != nil && !s.flags.IsEnabled(userId, fflag.SemanticDedup) {
		log.Debug().Str("userId", userId).Msg("Semantic dedup disabled by flag")
		return
	}
	s.run(ctx, JobKey{Kind: "dedup_semantic", UserId: userId, Window: day}, timeout, func(jobCtx context.Context) error {
		return s.deduper.RunSemanticDedup(jobCtx, userId)
	})
	s.run(ctx, JobKey{Kind: "dedup_topics", UserId: userId, Window: day}, timeout, func(jobCtx context.Context) error {
		return s.deduper.RunTopicDedup(jobCtx, userId)
	})
}

// runHousekeeping reviews the untagged log after the evening window closes
// and sweeps orphan rows nightly.
func (s *Scheduler) runHousekeeping(ctx context.Context, now time.Time) {
	day, _ := domain.DailyWindow(now)

	if now.Hour() == 2 {
		s.run(ctx, JobKey{Kind: "review", Window: day}, s.config.DedupTimeout(), func(jobCtx context.Context) error {
			return s.summarizer.ReviewLog(jobCtx)
		})
	}
	if now.Hour() == 4 {
		s.run(ctx, JobKey{Kind: "sweep", Window: day}, s.config.Timeout(), func(jobCtx context.Context) error {
			return s.summarizer.Sweep(jobCtx)
		})
	}
}

func (s *Scheduler) run(ctx context.Context, key JobKey, timeout time.Duration, fn func(context.Context) error) {
	ran, err := s.coordinator.Run(key, func() error {
		jobCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(jobCtx)
	})
	if err != nil {
		log.Error().Err(err).Str("job", key.String()).Msg("Scheduled job failed")
		return
	}
	if ran {
		log.Debug().Str("job", key.String()).Msg("Scheduled job finished")
	}
}
