package brain

import (
	"regexp"
	"strings"
)

// detailsPattern matches HTML <details> blocks, which the assistant uses for
// collapsible asides that must not be fed back into the model.
var detailsPattern = regexp.MustCompile(`(?is)<details[^>]*>.*?</details>`)

// SanitizeContent strips <details> blocks and surrounding whitespace from a
// message before it enters a prompt.
func SanitizeContent(content string) string {
	return strings.TrimSpace(detailsPattern.ReplaceAllString(content, ""))
}
