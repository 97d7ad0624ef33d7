package common

import "strings"

// ChatProvider identifies one of the supported LLM backends.
type ChatProvider string

const (
	UnspecifiedChatProvider ChatProvider = ""
	OpenaiChatProvider      ChatProvider = "openai"
	AnthropicChatProvider   ChatProvider = "anthropic"
	OllamaChatProvider      ChatProvider = "ollama"
)

// AllChatProviders lists the providers the proxy maintains queues for.
var AllChatProviders = []ChatProvider{
	OpenaiChatProvider,
	AnthropicChatProvider,
	OllamaChatProvider,
}

type ModelConfig struct {
	Provider    string   `koanf:"provider" json:"provider"`
	Model       string   `koanf:"model,omitempty" json:"model,omitempty"`
	Temperature *float32 `koanf:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int      `koanf:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

func (c ModelConfig) NormalizedProviderName() string {
	return strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(c.Provider, " ", "_"), "-", "_"))
}

// ResolveProvider maps a model config to a concrete provider. When the
// provider is unset it is inferred from the model name: "claude*" is
// anthropic, "gpt*" is openai, everything else is assumed to be a local
// ollama model.
func (c ModelConfig) ResolveProvider() ChatProvider {
	if c.Provider != "" {
		return ChatProvider(strings.ToLower(c.Provider))
	}
	return InferProviderFromModel(c.Model)
}

func InferProviderFromModel(model string) ChatProvider {
	switch {
	case strings.HasPrefix(model, "claude"):
		return AnthropicChatProvider
	case strings.HasPrefix(model, "gpt"):
		return OpenaiChatProvider
	default:
		return OllamaChatProvider
	}
}
