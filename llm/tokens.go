package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenEncoderOnce sync.Once
	tokenEncoder     *tiktoken.Tiktoken
)

// CountTokens estimates the token length of text for chunking decisions.
// It prefers the model's tiktoken encoding, falls back to cl100k_base for
// models tiktoken doesn't know, and degrades to a chars/4 heuristic when no
// encoding data is available (e.g. offline without the cached BPE files).
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if encoder, err := tiktoken.EncodingForModel(model); err == nil {
		return len(encoder.Encode(text, nil, nil))
	}
	tokenEncoderOnce.Do(func() {
		encoder, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoder = encoder
		}
	})
	if tokenEncoder != nil {
		return len(tokenEncoder.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}
