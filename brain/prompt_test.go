package brain

import (
	"testing"
	"time"

	"cortex/domain"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPromptIncludesContextBlocks(t *testing.T) {
	prompt := DefaultPromptBuilder(SystemPromptContext{
		Memories: []domain.Memory{{Content: "allergic to peanuts"}},
		Summaries: []domain.Summary{{
			SummaryType: domain.SummaryTypeDaily,
			Begin:       time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC),
			Content:     "Planned the garden.",
		}},
		Username:  "Sam",
		Timestamp: time.Date(2026, 5, 5, 9, 30, 0, 0, time.UTC),
		Mode:      "default",
		Platform:  domain.PlatformDiscord,
	})

	assert.Contains(t, prompt, "Sam")
	assert.Contains(t, prompt, "allergic to peanuts")
	assert.Contains(t, prompt, "DAILY:")
	assert.Contains(t, prompt, "Planned the garden.")
	assert.Contains(t, prompt, "discord")
}

func TestGuestPromptHidesAdminDetails(t *testing.T) {
	prompt := DefaultPromptBuilder(SystemPromptContext{
		Username: "Visitor",
		Mode:     GuestMode,
		Platform: domain.PlatformImessage,
	})
	assert.Contains(t, prompt, "guest")
	assert.NotContains(t, prompt, "Things you know")
}

func TestSummaryLabelDatesNonDailyTypes(t *testing.T) {
	begin := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "DAILY:", SummaryLabel(domain.Summary{SummaryType: domain.SummaryTypeDaily, Begin: begin}))
	assert.Equal(t, "WEEKLY (2026-03-02):", SummaryLabel(domain.Summary{SummaryType: domain.SummaryTypeWeekly, Begin: begin}))
	assert.Equal(t, "MORNING (2026-03-02):", SummaryLabel(domain.Summary{SummaryType: domain.SummaryTypeMorning, Begin: begin}))
}

func TestRegistryPrefersMostSpecificBuilder(t *testing.T) {
	registry := NewPromptRegistry()
	registry.Register("work", domain.PlatformDiscord, func(SystemPromptContext) string { return "work-discord" })
	registry.Register("work", anyPlatform, func(SystemPromptContext) string { return "work-any" })

	assert.Equal(t, "work-discord", registry.Build(SystemPromptContext{Mode: "work", Platform: domain.PlatformDiscord}))
	assert.Equal(t, "work-any", registry.Build(SystemPromptContext{Mode: "work", Platform: domain.PlatformImessage}))

	// unregistered mode falls through to the default builder
	fallback := registry.Build(SystemPromptContext{Mode: "default", Username: "Sam", Platform: domain.PlatformApi})
	assert.Contains(t, fallback, "Sam")
}
