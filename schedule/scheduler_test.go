package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cortex/common"
	"cortex/domain"
	"cortex/fflag"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	mu        sync.Mutex
	periods   []domain.SummaryType
	dailies   int
	weeklies  int
	monthlies int
	reviews   int
	sweeps    int
}

func (f *fakeSummarizer) SummarizePeriod(ctx context.Context, userId string, summaryType domain.SummaryType, begin, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods = append(f.periods, summaryType)
	return nil
}

func (f *fakeSummarizer) SummarizeDaily(ctx context.Context, userId string, day time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailies++
	return nil
}

func (f *fakeSummarizer) SummarizeWeekly(ctx context.Context, userId string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weeklies++
	return nil
}

func (f *fakeSummarizer) SummarizeMonthly(ctx context.Context, userId string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monthlies++
	return nil
}

func (f *fakeSummarizer) ReviewLog(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews++
	return nil
}

func (f *fakeSummarizer) Sweep(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return nil
}

type fakeDeduper struct {
	mu       sync.Mutex
	keyword  int
	semantic int
	topics   int
}

func (f *fakeDeduper) RunKeywordDedup(ctx context.Context, userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyword++
	return nil
}

func (f *fakeDeduper) RunSemanticDedup(ctx context.Context, userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.semantic++
	return nil
}

func (f *fakeDeduper) RunTopicDedup(ctx context.Context, userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics++
	return nil
}

type fakeUsers struct {
	ids []string
}

func (f *fakeUsers) GetActiveUserIds(ctx context.Context, since time.Time) ([]string, error) {
	return f.ids, nil
}

func newTestScheduler(users ...string) (*Scheduler, *fakeSummarizer, *fakeDeduper) {
	summarizer := &fakeSummarizer{}
	deduper := &fakeDeduper{}
	if len(users) == 0 {
		users = []string{"user_1"}
	}
	scheduler := NewScheduler(summarizer, deduper, &fakeUsers{ids: users}, common.DefaultConfig(), fflag.FFlag{})
	return scheduler, summarizer, deduper
}

func TestTickRunsCompletedPeriodOnce(t *testing.T) {
	scheduler, summarizer, _ := newTestScheduler()
	now := time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC)

	scheduler.Tick(context.Background(), now)
	scheduler.Tick(context.Background(), now.Add(time.Minute))

	// 13:00 closes the morning window; repeated ticks reuse the same key
	require.Len(t, summarizer.periods, 1)
	assert.Equal(t, domain.SummaryTypeMorning, summarizer.periods[0])
}

func TestDailyRollupWaitsForCutoff(t *testing.T) {
	scheduler, summarizer, _ := newTestScheduler()

	scheduler.Tick(context.Background(), time.Date(2026, 8, 25, 0, 3, 0, 0, time.UTC))
	assert.Zero(t, summarizer.dailies)

	scheduler.Tick(context.Background(), time.Date(2026, 8, 25, 0, 6, 0, 0, time.UTC))
	assert.Equal(t, 1, summarizer.dailies)
}

func TestWeeklyRunsOnMondayOnly(t *testing.T) {
	scheduler, summarizer, _ := newTestScheduler()

	// 2026-08-25 is a Tuesday
	scheduler.Tick(context.Background(), time.Date(2026, 8, 25, 1, 0, 0, 0, time.UTC))
	assert.Zero(t, summarizer.weeklies)

	scheduler.Tick(context.Background(), time.Date(2026, 8, 24, 1, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, summarizer.weeklies)
}

func TestMonthlyRunsOnFirstOnly(t *testing.T) {
	scheduler, summarizer, _ := newTestScheduler()

	scheduler.Tick(context.Background(), time.Date(2026, 8, 25, 1, 0, 0, 0, time.UTC))
	assert.Zero(t, summarizer.monthlies)

	scheduler.Tick(context.Background(), time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, summarizer.monthlies)
}

func TestDedupRunsInMaintenanceHourOncePerDay(t *testing.T) {
	scheduler, _, deduper := newTestScheduler()

	day := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	scheduler.Tick(context.Background(), day)
	scheduler.Tick(context.Background(), day.Add(10*time.Minute))

	assert.Equal(t, 1, deduper.keyword)
	assert.Equal(t, 1, deduper.semantic)
	assert.Equal(t, 1, deduper.topics)

	scheduler.Tick(context.Background(), time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, deduper.keyword)
}

func TestHousekeepingHours(t *testing.T) {
	scheduler, summarizer, _ := newTestScheduler()

	scheduler.Tick(context.Background(), time.Date(2026, 8, 25, 2, 15, 0, 0, time.UTC))
	assert.Equal(t, 1, summarizer.reviews)
	assert.Zero(t, summarizer.sweeps)

	scheduler.Tick(context.Background(), time.Date(2026, 8, 25, 4, 15, 0, 0, time.UTC))
	assert.Equal(t, 1, summarizer.sweeps)
}

func TestDedupRunsPerUser(t *testing.T) {
	scheduler, _, deduper := newTestScheduler("user_1", "user_2")

	scheduler.Tick(context.Background(), time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, deduper.keyword)
}

func TestCoordinatorCollapsesConcurrentOffers(t *testing.T) {
	coordinator := NewCoordinator()
	key := JobKey{Kind: "daily", UserId: "user_1", Window: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)}

	var mu sync.Mutex
	runs := 0
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		coordinator.Run(key, func() error {
			mu.Lock()
			runs++
			mu.Unlock()
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		coordinator.Run(key, func() error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		})
	}()

	close(release)
	wg.Wait()
	assert.Equal(t, 1, runs)
}

func TestCoordinatorRetriesFailedKeys(t *testing.T) {
	coordinator := NewCoordinator()
	key := JobKey{Kind: "weekly", UserId: "user_1", Window: time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)}

	runs := 0
	ran, err := coordinator.Run(key, func() error {
		runs++
		return errors.New("transient")
	})
	assert.True(t, ran)
	assert.Error(t, err)

	ran, err = coordinator.Run(key, func() error {
		runs++
		return nil
	})
	assert.True(t, ran)
	require.NoError(t, err)
	assert.Equal(t, 2, runs)

	// a finished key is skipped
	ran, _ = coordinator.Run(key, func() error {
		runs++
		return nil
	})
	assert.False(t, ran)
	assert.Equal(t, 2, runs)
}
