package llm

import (
	"testing"

	"cortex/common"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicFromChatMessages_SystemExtracted(t *testing.T) {
	t.Parallel()
	system, messages, err := anthropicFromChatMessages([]common.ChatMessage{
		{Role: common.ChatMessageRoleSystem, Content: "be brief"},
		{Role: common.ChatMessageRoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	require.Len(t, system, 1)
	assert.Equal(t, "be brief", system[0].Text)
	require.Len(t, messages, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, messages[0].Role)
	require.Len(t, messages[0].Content, 1)
	require.NotNil(t, messages[0].Content[0].OfText)
	assert.Equal(t, "hi", messages[0].Content[0].OfText.Text)
}

func TestAnthropicFromChatMessages_ToolRoundTrip(t *testing.T) {
	t.Parallel()
	_, messages, err := anthropicFromChatMessages([]common.ChatMessage{
		{Role: common.ChatMessageRoleUser, Content: "compute f(1)"},
		{
			Role: common.ChatMessageRoleAssistant,
			ToolCalls: common.ToolCalls{
				{Id: "t1", Name: "f", Arguments: `{"x": 1}`},
			},
		},
		{Role: common.ChatMessageRoleTool, ToolCallId: "t1", Content: "42"},
	})
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assistant := messages[1]
	assert.Equal(t, anthropic.MessageParamRoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 1)
	toolUse := assistant.Content[0].OfToolUse
	require.NotNil(t, toolUse)
	assert.Equal(t, "t1", toolUse.ID)
	assert.Equal(t, "f", toolUse.Name)
	assert.Equal(t, map[string]any{"x": float64(1)}, toolUse.Input)

	result := messages[2]
	assert.Equal(t, anthropic.MessageParamRoleUser, result.Role)
	require.Len(t, result.Content, 1)
	toolResult := result.Content[0].OfToolResult
	require.NotNil(t, toolResult)
	assert.Equal(t, "t1", toolResult.ToolUseID)
	require.Len(t, toolResult.Content, 1)
	require.NotNil(t, toolResult.Content[0].OfText)
	assert.Equal(t, "42", toolResult.Content[0].OfText.Text)
}

func TestAnthropicFromChatMessages_ConsecutiveToolResultsMerge(t *testing.T) {
	t.Parallel()
	_, messages, err := anthropicFromChatMessages([]common.ChatMessage{
		{
			Role: common.ChatMessageRoleAssistant,
			ToolCalls: common.ToolCalls{
				{Id: "t1", Name: "f", Arguments: `{}`},
				{Id: "t2", Name: "g", Arguments: `{}`},
			},
		},
		{Role: common.ChatMessageRoleTool, ToolCallId: "t1", Content: "one"},
		{Role: common.ChatMessageRoleTool, ToolCallId: "t2", Content: "two"},
	})
	require.NoError(t, err)
	// two tool messages collapse into a single user message
	require.Len(t, messages, 2)
	assert.Equal(t, anthropic.MessageParamRoleUser, messages[1].Role)
	require.Len(t, messages[1].Content, 2)
	assert.Equal(t, "t1", messages[1].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "t2", messages[1].Content[1].OfToolResult.ToolUseID)
}

func TestAnthropicFromChatMessages_OrphanToolResultDropped(t *testing.T) {
	t.Parallel()
	_, messages, err := anthropicFromChatMessages([]common.ChatMessage{
		{Role: common.ChatMessageRoleUser, Content: "hi"},
		{Role: common.ChatMessageRoleTool, ToolCallId: "t9", Content: "stale"},
		{Role: common.ChatMessageRoleAssistant, Content: "hello"},
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	for _, msg := range messages {
		for _, block := range msg.Content {
			assert.Nil(t, block.OfToolResult)
		}
	}
}

func TestAnthropicFromChatMessages_InvalidToolArguments(t *testing.T) {
	t.Parallel()
	_, messages, err := anthropicFromChatMessages([]common.ChatMessage{
		{
			Role: common.ChatMessageRoleAssistant,
			ToolCalls: common.ToolCalls{
				{Id: "t1", Name: "f", Arguments: `definitely not json {{{`},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	toolUse := messages[0].Content[0].OfToolUse
	require.NotNil(t, toolUse)
	input, ok := toolUse.Input.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, input, "invalid_json_stringified")
}

func TestAnthropicFromTools(t *testing.T) {
	t.Parallel()
	type lookupParams struct {
		Query string `json:"query"`
	}
	schema := (&jsonschema.Reflector{DoNotReference: true}).Reflect(&lookupParams{})
	tools := anthropicFromTools([]common.Tool{
		{Name: "lookup", Description: "look things up", Parameters: schema},
		{Name: "web_search", Type: "web_search_20250305"},
		{Name: "unsupported", Type: "computer_20250124"},
	})
	require.Len(t, tools, 2)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "lookup", tools[0].OfTool.Name)
	require.NotNil(t, tools[1].OfWebSearchTool20250305)
}

func TestAnthropicFromToolChoice(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, anthropicFromToolChoice(&common.ToolChoice{Type: common.ToolChoiceTypeAuto}).OfAuto)
	assert.NotNil(t, anthropicFromToolChoice(&common.ToolChoice{Type: common.ToolChoiceTypeRequired}).OfAny)
	forced := anthropicFromToolChoice(&common.ToolChoice{Type: common.ToolChoiceTypeTool, Name: "lookup"})
	require.NotNil(t, forced.OfTool)
	assert.Equal(t, "lookup", forced.OfTool.Name)
}
