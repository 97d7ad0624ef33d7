package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cortex/common"
	"cortex/contacts"
	"cortex/domain"
	"cortex/ledger"
	"cortex/llm"
	"cortex/proxy"
	"cortex/srv"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// memoryLimit caps how many memories are loaded into a single prompt.
const memoryLimit = 100

// ErrStranger marks a messaging-platform turn from a sender no contact
// claims. The caller answers with the configured stranger message instead of
// running the pipeline.
var ErrStranger = errors.New("unknown sender")

// TurnRequest is one inbound message entering the pipeline.
type TurnRequest struct {
	Platform      domain.Platform
	ExternalId    string
	PlatformMsgId string
	Content       string
	Model         string
	// AllowCreate lets unknown senders get a placeholder contact. API flows
	// set it; messaging webhooks leave it off and get stranger handling.
	AllowCreate bool
}

// TurnResult is the assistant's answer for one turn.
type TurnResult struct {
	Response        string    `json:"response"`
	PromptTokens    int       `json:"prompt_tokens"`
	GeneratedTokens int       `json:"generated_tokens"`
	Timestamp       time.Time `json:"timestamp"`
}

// Orchestrator runs the per-turn pipeline: resolve identity, gather context,
// sync the ledger, dispatch to the proxy, post-process and write back.
type Orchestrator struct {
	config    common.Config
	contacts  contacts.Contacts
	ledger    ledger.Ledger
	memories  MemoryStore
	proxy     Proxy
	mode      *Mode
	intents   *IntentHandler
	prompts   *PromptRegistry
	streamer  srv.Streamer
	brainlets *BrainletRunner

	mu    sync.Mutex
	locks map[turnKey]*sync.Mutex
}

type turnKey struct {
	userId   string
	platform domain.Platform
}

type OrchestratorParams struct {
	Config    common.Config
	Contacts  contacts.Contacts
	Ledger    ledger.Ledger
	Memories  MemoryStore
	Proxy     Proxy
	Mode      *Mode
	Prompts   *PromptRegistry
	Streamer  srv.Streamer
	Brainlets *BrainletRunner
}

func NewOrchestrator(params OrchestratorParams) *Orchestrator {
	prompts := params.Prompts
	if prompts == nil {
		prompts = NewPromptRegistry()
	}
	return &Orchestrator{
		config:    params.Config,
		contacts:  params.Contacts,
		ledger:    params.Ledger,
		memories:  params.Memories,
		proxy:     params.Proxy,
		mode:      params.Mode,
		intents:   NewIntentHandler(params.Mode, params.Memories),
		prompts:   prompts,
		streamer:  params.Streamer,
		brainlets: params.Brainlets,
	}
}

// Mode exposes the process-wide mode for the API layer.
func (o *Orchestrator) Mode() *Mode {
	return o.mode
}

// HandleTurn runs the full pipeline for one inbound message. Turns for the
// same (user, platform) pair are serialized so the rolling buffer stays
// consistent; turns for different users proceed in parallel.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	turnId := "turn_" + ksuid.New().String()
	o.publish(turnId, "", req.Platform, domain.TurnStateReceived, nil)

	// Step 1: identity.
	contact, err := o.resolveContact(ctx, req)
	if err != nil {
		o.publish(turnId, "", req.Platform, domain.TurnStateFailed, err)
		return TurnResult{}, err
	}
	o.publish(turnId, contact.Id, req.Platform, domain.TurnStateResolved, nil)

	unlock := o.lockTurn(contact.Id, req.Platform)
	defer unlock()

	// Step 2: admin gate.
	isAdmin := o.config.AdminUserId != "" && contact.Id == o.config.AdminUserId
	flags := IntentFlags{Mode: isAdmin, Memory: isAdmin}

	// Step 3: pre-intent pass.
	content := req.Content
	if isAdmin {
		content = o.intents.Process(ctx, contact.Id, content, flags)
	}
	o.publish(turnId, contact.Id, req.Platform, domain.TurnStatePreIntent, nil)

	// Step 4: mode fetch. Read once; a concurrent mode-set applies to the
	// next turn.
	mode := GuestMode
	if isAdmin {
		mode = o.mode.Get()
	}

	// Step 5: memory fetch, admin only. Failure degrades to an empty slice.
	var memories []domain.Memory
	if isAdmin {
		memories, err = o.memories.List(ctx, contact.Id, memoryLimit)
		if err != nil {
			log.Warn().Err(err).Str("userId", contact.Id).Msg("Memory fetch failed, continuing without memories")
			memories = nil
		}
	}
	o.publish(turnId, contact.Id, req.Platform, domain.TurnStateEnriched, nil)

	// Step 6: ledger sync with just this user turn; the returned buffer
	// already carries the earlier turns.
	buffer, err := o.ledger.Sync(ctx, contact.Id, []ledger.SnapshotEntry{{
		Platform:      req.Platform,
		PlatformMsgId: req.PlatformMsgId,
		Role:          common.ChatMessageRoleUser,
		Content:       content,
	}})
	if err != nil {
		err = fmt.Errorf("ledger sync failed: %w", err)
		o.publish(turnId, contact.Id, req.Platform, domain.TurnStateFailed, err)
		return TurnResult{}, err
	}

	// Step 7: summary fetch. Failure degrades to no summaries.
	summaries, err := o.ledger.RecentSummaries(ctx, contact.Id, o.config.SummaryCount)
	if err != nil {
		log.Warn().Err(err).Str("userId", contact.Id).Msg("Summary fetch failed, continuing without summaries")
		summaries = nil
	}

	// Step 8: dispatch.
	messages := o.buildMessages(SystemPromptContext{
		Memories:  memories,
		Summaries: summaries,
		Username:  contact.DisplayName(),
		Timestamp: time.Now().UTC(),
		Mode:      mode,
		Platform:  req.Platform,
	}, buffer)

	response, err := o.dispatch(ctx, req.Model, messages)
	if err != nil {
		o.publish(turnId, contact.Id, req.Platform, domain.TurnStateFailed, err)
		return TurnResult{}, err
	}
	o.publish(turnId, contact.Id, req.Platform, domain.TurnStateDispatched, nil)

	// Step 9: post-intent pass, admin only. The reply survives any directive
	// failure: failed directives stay in the text, they never eat the reply.
	reply := response.Text
	if isAdmin {
		reply = o.intents.Process(ctx, contact.Id, reply, flags)
		if reply == "" {
			reply = response.Text
		}
	}
	o.publish(turnId, contact.Id, req.Platform, domain.TurnStatePostIntent, nil)

	// Step 10: ledger write. The platform adapter may attach a platform
	// message id to the reply later.
	if _, err := o.ledger.Sync(ctx, contact.Id, []ledger.SnapshotEntry{{
		Platform: req.Platform,
		Role:     common.ChatMessageRoleAssistant,
		Content:  reply,
	}}); err != nil {
		err = fmt.Errorf("ledger write failed: %w", err)
		o.publish(turnId, contact.Id, req.Platform, domain.TurnStateFailed, err)
		return TurnResult{}, err
	}
	o.publish(turnId, contact.Id, req.Platform, domain.TurnStatePersisted, nil)

	// Step 11: last-seen update for messaging platforms.
	if req.Platform != domain.PlatformApi {
		if err := o.ledger.UpdateLastSeen(ctx, contact.Id, req.Platform, time.Now().UTC()); err != nil {
			log.Warn().Err(err).Str("userId", contact.Id).Msg("Last-seen update failed")
		}
	}

	if o.brainlets != nil {
		o.brainlets.Run(contact.Id, content, reply)
	}

	o.publish(turnId, contact.Id, req.Platform, domain.TurnStateDone, nil)
	return TurnResult{
		Response:        reply,
		PromptTokens:    response.PromptTokens,
		GeneratedTokens: response.CompletionTokens,
		Timestamp:       response.Timestamp,
	}, nil
}

// Complete runs a single-turn completion outside the conversation: no
// ledger, no memories, no intent passes. Used by the task-prefixed chat
// route and the completions endpoint.
func (o *Orchestrator) Complete(ctx context.Context, model, prompt string, options llm.RequestOptions) (*llm.ChatResponse, error) {
	if model == "" {
		model = o.config.LLM.Model
	}
	return o.proxy.Enqueue(ctx, llm.ChatRequest{
		Model:   model,
		Prompt:  prompt,
		Options: options,
	}, proxy.PriorityNormal, o.config.Timeout())
}

// StrangerResult is the canned answer for unknown messaging senders.
func (o *Orchestrator) StrangerResult() TurnResult {
	return TurnResult{
		Response:  o.config.StrangerMessage,
		Timestamp: time.Now().UTC(),
	}
}

func (o *Orchestrator) resolveContact(ctx context.Context, req TurnRequest) (domain.Contact, error) {
	if req.AllowCreate {
		return o.contacts.ResolveOrCreate(ctx, req.Platform, req.ExternalId)
	}
	contact, err := o.contacts.Resolve(ctx, req.Platform, req.ExternalId)
	if errors.Is(err, common.ErrNotFound) {
		return domain.Contact{}, ErrStranger
	}
	if err != nil {
		return domain.Contact{}, fmt.Errorf("failed to resolve contact: %w", err)
	}
	return contact, nil
}

// buildMessages renders the system prompt and appends the sanitized buffer.
func (o *Orchestrator) buildMessages(promptCtx SystemPromptContext, buffer []domain.Message) []common.ChatMessage {
	messages := make([]common.ChatMessage, 0, len(buffer)+1)
	messages = append(messages, common.ChatMessage{
		Role:    common.ChatMessageRoleSystem,
		Content: o.prompts.Build(promptCtx),
	})
	for _, msg := range buffer {
		content := SanitizeContent(msg.Content)
		if content == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		messages = append(messages, common.ChatMessage{
			Role:       msg.Role,
			Content:    content,
			ToolCalls:  msg.ToolCalls,
			ToolCallId: msg.ToolCallId,
		})
	}
	return messages
}

func (o *Orchestrator) dispatch(ctx context.Context, model string, messages []common.ChatMessage) (*llm.ChatResponse, error) {
	if model == "" {
		model = o.config.LLM.Model
	}
	req := llm.ChatRequest{
		Model:    model,
		Messages: messages,
		Options: llm.RequestOptions{
			Temperature: o.config.LLM.Temperature,
			MaxTokens:   o.config.LLM.MaxTokens,
		},
	}
	return o.proxy.Enqueue(ctx, req, proxy.PriorityHigh, o.config.Timeout())
}

// lockTurn serializes turns per (user, platform) pair.
func (o *Orchestrator) lockTurn(userId string, platform domain.Platform) func() {
	key := turnKey{userId: userId, platform: platform}

	o.mu.Lock()
	if o.locks == nil {
		o.locks = make(map[turnKey]*sync.Mutex)
	}
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// publish emits a turn event. Event delivery is best-effort; a broken stream
// never affects the turn itself.
func (o *Orchestrator) publish(turnId, userId string, platform domain.Platform, state domain.TurnState, cause error) {
	if o.streamer == nil {
		return
	}
	event := domain.TurnEvent{
		TurnId:    turnId,
		UserId:    userId,
		Platform:  platform,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.streamer.AddTurnEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("turnId", turnId).Msg("Failed to publish turn event")
	}
}
