package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

type ChatMessageRole string

const (
	ChatMessageRoleUser      ChatMessageRole = "user"
	ChatMessageRoleAssistant ChatMessageRole = "assistant"
	ChatMessageRoleSystem    ChatMessageRole = "system"
	ChatMessageRoleTool      ChatMessageRole = "tool"
)

var AllChatMessageRoles = []ChatMessageRole{
	ChatMessageRoleUser,
	ChatMessageRoleAssistant,
	ChatMessageRoleSystem,
	ChatMessageRoleTool,
}

func StringToChatMessageRole(s string) (ChatMessageRole, error) {
	switch s {
	case "user":
		return ChatMessageRoleUser, nil
	case "assistant":
		return ChatMessageRoleAssistant, nil
	case "system":
		return ChatMessageRoleSystem, nil
	case "tool":
		return ChatMessageRoleTool, nil
	default:
		return "", fmt.Errorf("invalid ChatMessageRole: \"%s\"", s)
	}
}

// ChatMessage is the canonical conversation unit passed between the
// orchestrator, the proxy and the provider adapters. Adapters convert to and
// from their provider's wire shape at their own boundary.
type ChatMessage struct {
	Role      ChatMessageRole `json:"role"`
	Content   string          `json:"content"`
	ToolCalls ToolCalls       `json:"tool_calls,omitempty"`

	/* for tool call responses */
	Name       string `json:"name,omitempty"`
	ToolCallId string `json:"tool_call_id,omitempty"`
}

// ToolCall is the flattened form of a function invocation requested by a
// model. Arguments is the raw JSON string, not parsed.
type ToolCall struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// openaiStyleToolCall mirrors the nested wire shape some clients send.
type openaiStyleToolCall struct {
	Id       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// UnmarshalJSON accepts both the flattened {id, name, arguments} form and the
// OpenAI nested {id, type, function: {name, arguments}} form.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, nested := probe["function"]; nested {
		var oai openaiStyleToolCall
		if err := json.Unmarshal(data, &oai); err != nil {
			return err
		}
		tc.Id = oai.Id
		tc.Name = oai.Function.Name
		tc.Arguments = oai.Function.Arguments
		return nil
	}
	type plain ToolCall
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*tc = ToolCall(p)
	return nil
}

// ToolCalls normalizes the tool_calls field at the decode boundary: a single
// JSON object is accepted and wrapped into a one-element list.
type ToolCalls []ToolCall

func (tcs *ToolCalls) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*tcs = nil
		return nil
	}
	if trimmed[0] == '{' {
		var single ToolCall
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*tcs = ToolCalls{single}
		return nil
	}
	var list []ToolCall
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*tcs = list
	return nil
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type Tool struct {
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Parameters     *jsonschema.Schema `json:"parameters,omitempty"`
	ParametersType reflect.Type       `json:"-"`

	// Type is empty for ordinary function tools. Provider-defined server
	// tools (e.g. anthropic's web_search) set it and are passed through to
	// the provider untranslated.
	Type string `json:"type,omitempty"`
}

// IsServerTool reports whether the tool is a provider-defined server tool
// rather than a caller-declared function.
func (t Tool) IsServerTool() bool {
	return t.Type != "" && t.Type != "function" && t.Type != "custom"
}

type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name,omitempty"`
}

type ToolChoiceType string

const (
	// llm will decide which tool to use, if any
	ToolChoiceTypeAuto        ToolChoiceType = "auto"
	ToolChoiceTypeUnspecified ToolChoiceType = ""

	// force to use one specific tool
	ToolChoiceTypeTool ToolChoiceType = "tool" // aka "function" in the openai API

	// force to use any one of the given tools
	ToolChoiceTypeRequired ToolChoiceType = "required" // aka "any" in the anthropic API
)
