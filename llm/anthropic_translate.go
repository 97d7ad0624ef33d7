package llm

import (
	"encoding/json"

	"cortex/common"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/rs/zerolog/log"
)

// anthropicFromChatMessages converts a canonical conversation into anthropic
// wire messages. System messages are pulled out into the top-level system
// blocks. Tool results become tool_result blocks under the user role, and
// because anthropic rejects consecutive messages from the same role, adjacent
// same-role messages are merged: a run of tool results after an assistant
// tool_use turn collapses into a single user message. A tool result whose id
// matches no prior tool_use is dropped; anthropic rejects the whole request
// otherwise.
func anthropicFromChatMessages(messages []common.ChatMessage) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	var converted []anthropic.MessageParam
	toolUseIds := make(map[string]bool)

	for _, msg := range messages {
		if msg.Role == common.ChatMessageRoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}
		if msg.Role == common.ChatMessageRoleTool && !toolUseIds[msg.ToolCallId] {
			log.Warn().Str("toolCallId", msg.ToolCallId).Msg("Dropping tool result with no matching tool call")
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		if msg.Role == common.ChatMessageRoleTool {
			blocks = append(blocks, anthropicToolResultBlock(msg.ToolCallId, msg.Content))
		} else if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, toolCall := range msg.ToolCalls {
			args := make(map[string]any)
			err := json.Unmarshal([]byte(RepairJson(toolCall.Arguments)), &args)
			if err != nil {
				// anthropic requires valid json input. when the recorded
				// arguments aren't, we improvise rather than fail the turn.
				args["invalid_json_stringified"] = toolCall.Arguments
			}
			toolUseIds[toolCall.Id] = true
			blocks = append(blocks, anthropic.NewToolUseBlock(toolCall.Id, args, toolCall.Name))
		}
		if len(blocks) == 0 {
			continue
		}
		converted = append(converted, anthropic.MessageParam{
			Role:    anthropicFromChatMessageRole(msg.Role),
			Content: blocks,
		})
	}

	var merged []anthropic.MessageParam
	for _, msg := range converted {
		if len(merged) > 0 && merged[len(merged)-1].Role == msg.Role {
			last := &merged[len(merged)-1]
			last.Content = append(last.Content, msg.Content...)
			continue
		}
		merged = append(merged, msg)
	}

	return system, merged, nil
}

func anthropicToolResultBlock(toolUseId, content string) anthropic.ContentBlockParamUnion {
	block := anthropic.NewToolResultBlock(toolUseId)
	block.OfToolResult.Content = []anthropic.ToolResultBlockParamContentUnion{
		{OfText: &anthropic.TextBlockParam{Text: content}},
	}
	return block
}

func anthropicFromChatMessageRole(role common.ChatMessageRole) anthropic.MessageParamRole {
	switch role {
	case common.ChatMessageRoleAssistant:
		return anthropic.MessageParamRoleAssistant
	default:
		// anthropic has no tool role; tool results ride in user messages
		return anthropic.MessageParamRoleUser
	}
}

func anthropicFromTools(tools []common.Tool) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		if tool.IsServerTool() {
			if tool.Type == "web_search_20250305" {
				result = append(result, anthropic.ToolUnionParam{
					OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
						Name: constant.WebSearch(tool.Name),
					},
				})
			} else {
				log.Warn().Str("tool", tool.Name).Str("type", tool.Type).Msg("Skipping unsupported server tool for anthropic")
			}
			continue
		}
		if tool.Parameters == nil {
			continue
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.Opt(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties:  tool.Parameters.Properties,
					Required:    tool.Parameters.Required,
					Type:        constant.Object(tool.Parameters.Type),
					ExtraFields: tool.Parameters.Extras,
				},
			},
		})
	}
	return result
}

func anthropicFromToolChoice(toolChoice *common.ToolChoice) anthropic.ToolChoiceUnionParam {
	if toolChoice == nil {
		return anthropic.ToolChoiceUnionParam{}
	}
	switch toolChoice.Type {
	case common.ToolChoiceTypeAuto:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	case common.ToolChoiceTypeRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case common.ToolChoiceTypeTool:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: toolChoice.Name}}
	}
	return anthropic.ToolChoiceUnionParam{}
}
