package brain

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// IntentFlags gates which directive families the handler acts on.
type IntentFlags struct {
	Mode   bool
	Memory bool
}

// directivePattern matches bracketed directive calls like mode('work') or
// remember('likes espresso'). The argument is a single-quoted string without
// embedded single quotes; anything else is treated as plain text.
var directivePattern = regexp.MustCompile(`(\w+)\(\s*'([^']*)'\s*\)`)

// IntentHandler scans a message for directive calls and applies their side
// effects: mode switching and memory add/delete/search. The message content
// is rewritten with the directives removed (recall directives are replaced
// by what they recalled). Unknown directives are left untouched; malformed
// ones never crash the turn.
type IntentHandler struct {
	mode     *Mode
	memories MemoryStore
}

func NewIntentHandler(mode *Mode, memories MemoryStore) *IntentHandler {
	return &IntentHandler{mode: mode, memories: memories}
}

const recallLimit = 5

// Process applies every recognized directive in the content and returns the
// rewritten content. Side-effect failures are logged and leave the directive
// text in place so the failure stays visible in the conversation.
func (h *IntentHandler) Process(ctx context.Context, userId, content string, flags IntentFlags) string {
	matches := directivePattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content
	}

	var builder strings.Builder
	last := 0
	for _, match := range matches {
		full := content[match[0]:match[1]]
		name := content[match[2]:match[3]]
		arg := content[match[4]:match[5]]

		replacement, handled := h.apply(ctx, userId, name, arg, flags)
		builder.WriteString(content[last:match[0]])
		if handled {
			builder.WriteString(replacement)
		} else {
			builder.WriteString(full)
		}
		last = match[1]
	}
	builder.WriteString(content[last:])

	return strings.TrimSpace(collapseSpaces(builder.String()))
}

// apply runs one directive. It returns the text to substitute for the
// directive call and whether the directive was recognized and permitted.
func (h *IntentHandler) apply(ctx context.Context, userId, name, arg string, flags IntentFlags) (string, bool) {
	switch name {
	case "mode":
		if !flags.Mode {
			return "", false
		}
		if err := h.mode.Set(arg); err != nil {
			log.Warn().Err(err).Str("mode", arg).Msg("Mode directive rejected")
			return "", false
		}
		log.Info().Str("mode", arg).Msg("Mode switched by directive")
		return "", true

	case "remember":
		if !flags.Memory || strings.TrimSpace(arg) == "" {
			return "", false
		}
		if _, err := h.memories.Remember(ctx, userId, arg); err != nil {
			log.Warn().Err(err).Msg("Remember directive failed")
			return "", false
		}
		return "", true

	case "forget":
		if !flags.Memory || strings.TrimSpace(arg) == "" {
			return "", false
		}
		if err := h.memories.Forget(ctx, userId, arg); err != nil {
			log.Warn().Err(err).Msg("Forget directive failed")
			return "", false
		}
		return "", true

	case "recall":
		if !flags.Memory || strings.TrimSpace(arg) == "" {
			return "", false
		}
		hits, err := h.memories.Recall(ctx, userId, arg, recallLimit)
		if err != nil || len(hits) == 0 {
			if err != nil {
				log.Warn().Err(err).Msg("Recall directive failed")
			}
			return "", false
		}
		lines := make([]string, len(hits))
		for i, hit := range hits {
			lines[i] = "- " + hit.Content
		}
		return fmt.Sprintf("(recalled: %s)", strings.Join(lines, " ")), true

	default:
		// unknown directive: leave it alone
		return "", false
	}
}

var multiSpacePattern = regexp.MustCompile(`[ \t]{2,}`)

func collapseSpaces(s string) string {
	return multiSpacePattern.ReplaceAllString(s, " ")
}
