package llm

import (
	"testing"

	"cortex/common"

	"github.com/stretchr/testify/assert"
)

func TestInstructPrompt(t *testing.T) {
	t.Parallel()

	t.Run("system plus user", func(t *testing.T) {
		prompt := InstructPrompt([]common.ChatMessage{
			{Role: common.ChatMessageRoleSystem, Content: "You are terse."},
			{Role: common.ChatMessageRoleUser, Content: "hello"},
		})
		assert.Equal(t, "[INST] <<SYS>>\nYou are terse.\n<</SYS>> [/INST]\n[INST] hello [/INST]", prompt)
	})

	t.Run("multiple system messages share one sys block", func(t *testing.T) {
		prompt := InstructPrompt([]common.ChatMessage{
			{Role: common.ChatMessageRoleSystem, Content: "one"},
			{Role: common.ChatMessageRoleSystem, Content: "two"},
			{Role: common.ChatMessageRoleUser, Content: "hi"},
		})
		assert.Equal(t, "[INST] <<SYS>>\none\ntwo\n<</SYS>> [/INST]\n[INST] hi [/INST]", prompt)
	})

	t.Run("assistant reply appended inline so prompt ends awaiting the model", func(t *testing.T) {
		prompt := InstructPrompt([]common.ChatMessage{
			{Role: common.ChatMessageRoleUser, Content: "2+2?"},
			{Role: common.ChatMessageRoleAssistant, Content: "4"},
			{Role: common.ChatMessageRoleUser, Content: "3+3?"},
		})
		assert.Equal(t, "[INST] 2+2? [/INST] 4\n[INST] 3+3? [/INST]", prompt)
	})

	t.Run("no system means no sys block", func(t *testing.T) {
		prompt := InstructPrompt([]common.ChatMessage{
			{Role: common.ChatMessageRoleUser, Content: "ping"},
		})
		assert.Equal(t, "[INST] ping [/INST]", prompt)
	})
}
