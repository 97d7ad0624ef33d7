package brain

import (
	"fmt"
	"strings"
	"time"

	"cortex/domain"
)

// SystemPromptContext carries everything a prompt builder may draw on for
// one turn.
type SystemPromptContext struct {
	Memories  []domain.Memory
	Summaries []domain.Summary
	Username  string
	Timestamp time.Time
	Mode      string
	Platform  domain.Platform
}

// PromptBuilder renders the system prompt for one turn.
type PromptBuilder func(ctx SystemPromptContext) string

// PromptRegistry maps (mode, platform) to a prompt builder. Builders are
// registered explicitly at startup; lookups fall back from (mode, platform)
// to (mode, any) to the default builder.
type PromptRegistry struct {
	builders map[promptKey]PromptBuilder
	fallback PromptBuilder
}

type promptKey struct {
	mode     string
	platform domain.Platform
}

// anyPlatform registers a builder for a mode regardless of platform.
const anyPlatform = domain.Platform("")

func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{
		builders: make(map[promptKey]PromptBuilder),
		fallback: DefaultPromptBuilder,
	}
}

// Register binds a builder to a (mode, platform) pair. An empty platform
// binds the mode for every platform.
func (r *PromptRegistry) Register(mode string, platform domain.Platform, builder PromptBuilder) {
	r.builders[promptKey{mode: mode, platform: platform}] = builder
}

// SetFallback replaces the default builder.
func (r *PromptRegistry) SetFallback(builder PromptBuilder) {
	r.fallback = builder
}

// Build renders the system prompt using the most specific registered
// builder.
func (r *PromptRegistry) Build(ctx SystemPromptContext) string {
	if builder, ok := r.builders[promptKey{mode: ctx.Mode, platform: ctx.Platform}]; ok {
		return builder(ctx)
	}
	if builder, ok := r.builders[promptKey{mode: ctx.Mode, platform: anyPlatform}]; ok {
		return builder(ctx)
	}
	return r.fallback(ctx)
}

// DefaultPromptBuilder is the stock system prompt: persona line, current
// time and channel, then memory and summary context blocks.
func DefaultPromptBuilder(ctx SystemPromptContext) string {
	var builder strings.Builder

	switch ctx.Mode {
	case GuestMode:
		builder.WriteString("You are a polite but guarded personal assistant speaking with a guest. Do not reveal personal details about your admin.\n")
	default:
		fmt.Fprintf(&builder, "You are a personal assistant in %q mode, speaking with %s.\n", ctx.Mode, ctx.Username)
	}
	fmt.Fprintf(&builder, "Current time: %s. Channel: %s.\n", ctx.Timestamp.Format("Monday, 2006-01-02 15:04"), ctx.Platform)

	if len(ctx.Memories) > 0 {
		builder.WriteString("\nThings you know:\n")
		for _, memory := range ctx.Memories {
			fmt.Fprintf(&builder, "- %s\n", memory.Content)
		}
	}

	if len(ctx.Summaries) > 0 {
		builder.WriteString("\nRecent conversation summaries:\n")
		for _, summary := range ctx.Summaries {
			builder.WriteString(SummaryLabel(summary))
			builder.WriteString("\n")
			builder.WriteString(summary.Content)
			builder.WriteString("\n\n")
		}
	}

	return strings.TrimSpace(builder.String())
}

// SummaryLabel renders a summary heading: the type in upper case, plus the
// formatted begin date for anything above daily granularity.
func SummaryLabel(summary domain.Summary) string {
	label := strings.ToUpper(string(summary.SummaryType))
	if summary.SummaryType != domain.SummaryTypeDaily {
		label += " (" + summary.Begin.Format("2006-01-02") + ")"
	}
	return label + ":"
}
