package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cortex/common"
	"cortex/fflag"
	"cortex/llm"
	"cortex/proxy"

	"github.com/rs/zerolog/log"
)

// Proxy is the slice of the request proxy the brain consumes. Both the
// in-process proxy service and its HTTP client satisfy it.
type Proxy interface {
	Enqueue(ctx context.Context, req llm.ChatRequest, priority proxy.Priority, timeout time.Duration) (*llm.ChatResponse, error)
	EnqueueAsync(req llm.ChatRequest, priority proxy.Priority, callback func(*llm.ChatResponse, error)) (string, error)
}

// BrainletRunner fires the configured minor helpers after a turn completes.
// Each brainlet gets its own model and prompt and runs fire-and-forget at low
// priority, so a slow or broken brainlet never delays the user's reply.
type BrainletRunner struct {
	config common.Config
	proxy  Proxy
	flags  fflag.FFlag
}

func NewBrainletRunner(config common.Config, proxy Proxy, flags fflag.FFlag) *BrainletRunner {
	return &BrainletRunner{config: config, proxy: proxy, flags: flags}
}

// Run enqueues every configured brainlet for the finished turn. Results only
// show up in logs. A flags file can turn the whole group off per user.
func (r *BrainletRunner) Run(userId, userMessage, assistantReply string) {
	if r.flags.Client != nil && !r.flags.IsEnabled(userId, fflag.Brainlets) {
		return
	}
	for _, brainlet := range r.config.Brainlets {
		prompt := renderBrainletPrompt(brainlet, userMessage, assistantReply)
		if prompt == "" {
			continue
		}

		name := brainlet.Name
		req := llm.ChatRequest{
			Model:  brainlet.Model,
			Prompt: prompt,
		}
		if req.Model == "" {
			req.Model = r.config.LLM.Model
		}

		_, err := r.proxy.EnqueueAsync(req, proxy.PriorityLow, func(resp *llm.ChatResponse, err error) {
			if err != nil {
				log.Warn().Err(err).Str("brainlet", name).Msg("Brainlet failed")
				return
			}
			log.Info().Str("brainlet", name).Str("output", resp.Text).Msg("Brainlet finished")
		})
		if err != nil {
			log.Warn().Err(err).Str("brainlet", name).Msg("Failed to enqueue brainlet")
		}
	}
}

// renderBrainletPrompt builds the brainlet's prompt from its configured
// template. The template's {{message}} and {{reply}} placeholders are filled
// with the turn's content; a brainlet without a prompt option is skipped.
func renderBrainletPrompt(brainlet common.BrainletConfig, userMessage, assistantReply string) string {
	template, ok := brainlet.Options["prompt"].(string)
	if !ok || template == "" {
		log.Debug().Str("brainlet", brainlet.Name).Msg("Brainlet has no prompt option, skipping")
		return ""
	}
	prompt := strings.ReplaceAll(template, "{{message}}", userMessage)
	prompt = strings.ReplaceAll(prompt, "{{reply}}", assistantReply)
	if !strings.Contains(template, "{{message}}") && !strings.Contains(template, "{{reply}}") {
		prompt = fmt.Sprintf("%s\n\nUser: %s\nAssistant: %s", prompt, userMessage, assistantReply)
	}
	return prompt
}
