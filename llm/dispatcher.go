package llm

import (
	"context"

	"cortex/common"
)

// Dispatcher sends a provider-neutral chat request and returns the
// normalized response.
type Dispatcher interface {
	Dispatch(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ProviderDispatcher routes each request to the adapter for its provider.
// When the request names no provider, it is inferred from the model prefix.
type ProviderDispatcher struct {
	adapters map[common.ChatProvider]Dispatcher
}

var _ Dispatcher = (*ProviderDispatcher)(nil)

// NewProviderDispatcher wires the three standard adapters from provider
// configuration.
func NewProviderDispatcher(providers map[string]common.ProviderConfig) *ProviderDispatcher {
	return &ProviderDispatcher{
		adapters: map[common.ChatProvider]Dispatcher{
			common.OllamaChatProvider:    NewOllamaAdapter(providers[string(common.OllamaChatProvider)]),
			common.OpenaiChatProvider:    NewOpenaiAdapter(providers[string(common.OpenaiChatProvider)]),
			common.AnthropicChatProvider: NewAnthropicAdapter(providers[string(common.AnthropicChatProvider)]),
		},
	}
}

// NewProviderDispatcherWithAdapters is used by tests and callers that need
// custom adapters.
func NewProviderDispatcherWithAdapters(adapters map[common.ChatProvider]Dispatcher) *ProviderDispatcher {
	return &ProviderDispatcher{adapters: adapters}
}

func (d *ProviderDispatcher) Dispatch(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	provider := req.ResolveProvider()
	adapter, ok := d.adapters[provider]
	if !ok {
		return nil, ErrUnknownProvider{Provider: provider}
	}
	return adapter.Dispatch(ctx, req)
}
