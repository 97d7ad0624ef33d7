package llm

import (
	"strings"

	"cortex/common"
)

// InstructPrompt linearizes a conversation into the Llama-2 instruct format:
// system text is wrapped in <<SYS>> inside the first [INST] block, each user
// turn gets its own [INST] block, and an assistant reply directly following a
// user turn is appended inline so that the final unpaired [INST] block
// signals the model's turn.
func InstructPrompt(messages []common.ChatMessage) string {
	var sb strings.Builder

	var systemParts []string
	for _, message := range messages {
		if message.Role == common.ChatMessageRoleSystem {
			systemParts = append(systemParts, message.Content)
		}
	}
	if len(systemParts) > 0 {
		sb.WriteString("[INST] <<SYS>>\n")
		sb.WriteString(strings.Join(systemParts, "\n"))
		sb.WriteString("\n<</SYS>> [/INST]")
	}

	for _, message := range messages {
		switch message.Role {
		case common.ChatMessageRoleUser:
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("[INST] ")
			sb.WriteString(message.Content)
			sb.WriteString(" [/INST]")
		case common.ChatMessageRoleAssistant:
			// inline after the preceding user block
			sb.WriteString(" ")
			sb.WriteString(message.Content)
		}
	}

	return sb.String()
}
