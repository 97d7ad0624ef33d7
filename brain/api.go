package brain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cortex/common"
	"cortex/domain"
	"cortex/llm"
	"cortex/proxy"
	"cortex/srv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// taskPrefix routes an OpenAI chat request into single-turn completion mode.
const taskPrefix = "### Task"

// ModelLister enumerates the models available on the local backend.
type ModelLister interface {
	ListModels(ctx context.Context) ([]llm.ModelInfo, error)
}

type Controller struct {
	orchestrator *Orchestrator
	models       ModelLister
	streamer     srv.Streamer
	config       common.Config
}

func NewController(orchestrator *Orchestrator, models ModelLister, streamer srv.Streamer, config common.Config) *Controller {
	return &Controller{
		orchestrator: orchestrator,
		models:       models,
		streamer:     streamer,
		config:       config,
	}
}

// RunServer starts the brain HTTP API on BRAIN_PORT.
func RunServer(ctrl *Controller) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := DefineRoutes(ctrl)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", common.GetBrainPort()),
		Handler: router.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start brain server")
		}
	}()

	return srv
}

func DefineRoutes(ctrl *Controller) *gin.Engine {
	r := gin.Default()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	r.POST("/v1/chat/completions", ctrl.ChatCompletionsHandler)
	r.POST("/v1/completions", ctrl.CompletionsHandler)
	r.GET("/v1/models", ctrl.ModelsHandler)
	r.GET("/v1/models/:id", ctrl.ModelHandler)

	r.POST("/discord/message/incoming", ctrl.webhookHandler(domain.PlatformDiscord))
	r.POST("/imessage/incoming", ctrl.webhookHandler(domain.PlatformImessage))

	r.GET("/mode", ctrl.GetModeHandler)
	r.POST("/mode", ctrl.SetModeHandler)

	r.GET("/ws/v1/users/:id/events", ctrl.TurnEventsWebsocketHandler)
	return r
}

func (ctrl *Controller) ErrorHandler(c *gin.Context, status int, err error) {
	log.Error().Err(err).Int("status", status).Msg("Brain API error")
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusForTurnError maps pipeline failures onto HTTP statuses: timeouts are
// 504, everything else upstream-shaped is 502.
func statusForTurnError(err error) int {
	var httpErr llm.ProviderHTTPError
	var unknownProvider llm.ErrUnknownProvider
	switch {
	case errors.As(err, &unknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, proxy.ErrTaskTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, proxy.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.As(err, &httpErr):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

/* ------------------------- OpenAI-compatible API ------------------------- */

type ChatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []common.ChatMessage `json:"messages"`
	Temperature *float32             `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	User        string               `json:"user,omitempty"`
}

type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	N           int      `json:"n,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type completionChoice struct {
	Index        int                 `json:"index"`
	Text         string              `json:"text,omitempty"`
	Message      *common.ChatMessage `json:"message,omitempty"`
	FinishReason string              `json:"finish_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

// ChatCompletionsHandler serves the OpenAI-compatible chat endpoint. A first
// user message starting with "### Task" routes to a single-turn completion
// with everything after the prefix as the prompt; anything else enters the
// conversation pipeline.
func (ctrl *Controller) ChatCompletionsHandler(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid chat completion request: %w", err))
		return
	}
	if len(req.Messages) == 0 {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("messages is required"))
		return
	}

	latest := latestUserMessage(req.Messages)
	if latest == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("no user message in request"))
		return
	}

	if task, ok := taskContent(req.Messages); ok {
		response, err := ctrl.orchestrator.Complete(c.Request.Context(), req.Model, task, llm.RequestOptions{
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			ctrl.ErrorHandler(c, statusForTurnError(err), err)
			return
		}
		c.JSON(http.StatusOK, chatCompletionShape(req.Model, response.Text, response.PromptTokens, response.CompletionTokens))
		return
	}

	externalId := req.User
	if externalId == "" {
		externalId = "api"
	}
	result, err := ctrl.orchestrator.HandleTurn(c.Request.Context(), TurnRequest{
		Platform:    domain.PlatformApi,
		ExternalId:  externalId,
		Content:     latest,
		Model:       req.Model,
		AllowCreate: true,
	})
	if err != nil {
		ctrl.ErrorHandler(c, statusForTurnError(err), err)
		return
	}
	c.JSON(http.StatusOK, chatCompletionShape(req.Model, result.Response, result.PromptTokens, result.GeneratedTokens))
}

// CompletionsHandler serves single-turn completions. n above one produces
// that many sequential completions of the same prompt.
func (ctrl *Controller) CompletionsHandler(c *gin.Context) {
	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid completion request: %w", err))
		return
	}
	if req.Prompt == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("prompt is required"))
		return
	}
	n := req.N
	if n <= 0 {
		n = 1
	}

	options := llm.RequestOptions{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	choices := make([]completionChoice, 0, n)
	var usage completionUsage
	for i := 0; i < n; i++ {
		response, err := ctrl.orchestrator.Complete(c.Request.Context(), req.Model, req.Prompt, options)
		if err != nil {
			ctrl.ErrorHandler(c, statusForTurnError(err), err)
			return
		}
		choices = append(choices, completionChoice{
			Index:        i,
			Text:         response.Text,
			FinishReason: "stop",
		})
		usage.PromptTokens += response.PromptTokens
		usage.CompletionTokens += response.CompletionTokens
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	c.JSON(http.StatusOK, completionResponse{
		Id:      "cmpl-" + ksuid.New().String(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: choices,
		Usage:   usage,
	})
}

type modelEntry struct {
	Id      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

func (ctrl *Controller) ModelsHandler(c *gin.Context) {
	models, err := ctrl.models.ListModels(c.Request.Context())
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, fmt.Errorf("failed to list models: %w", err))
		return
	}
	entries := make([]modelEntry, len(models))
	for i, model := range models {
		entries[i] = modelShape(model)
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": entries})
}

func (ctrl *Controller) ModelHandler(c *gin.Context) {
	models, err := ctrl.models.ListModels(c.Request.Context())
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusBadGateway, fmt.Errorf("failed to list models: %w", err))
		return
	}
	id := c.Param("id")
	for _, model := range models {
		if model.Name == id {
			c.JSON(http.StatusOK, modelShape(model))
			return
		}
	}
	ctrl.ErrorHandler(c, http.StatusNotFound, fmt.Errorf("model not found: %s", id))
}

func modelShape(model llm.ModelInfo) modelEntry {
	return modelEntry{
		Id:      model.Name,
		Object:  "model",
		Created: model.ModifiedAt.Unix(),
		OwnedBy: "ollama",
	}
}

func chatCompletionShape(model, text string, promptTokens, completionTokens int) completionResponse {
	return completionResponse{
		Id:      "chatcmpl-" + ksuid.New().String(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []completionChoice{{
			Index:        0,
			Message:      &common.ChatMessage{Role: common.ChatMessageRoleAssistant, Content: text},
			FinishReason: "stop",
		}},
		Usage: completionUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

// taskContent reports whether the first user message carries the task prefix
// and returns the prompt after it.
func taskContent(messages []common.ChatMessage) (string, bool) {
	for _, msg := range messages {
		if msg.Role != common.ChatMessageRoleUser {
			continue
		}
		if strings.HasPrefix(msg.Content, taskPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(msg.Content, taskPrefix)), true
		}
		return "", false
	}
	return "", false
}

func latestUserMessage(messages []common.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == common.ChatMessageRoleUser {
			return messages[i].Content
		}
	}
	return ""
}

/* ----------------------------- Webhooks ---------------------------------- */

type WebhookMessage struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	MessageId string `json:"messageId,omitempty"`
}

// webhookHandler accepts one inbound message from a platform adapter.
// Unknown senders get the stranger message instead of a pipeline run.
func (ctrl *Controller) webhookHandler(platform domain.Platform) gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg WebhookMessage
		if err := c.ShouldBindJSON(&msg); err != nil {
			ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid webhook payload: %w", err))
			return
		}
		if msg.Sender == "" || msg.Content == "" {
			ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("sender and content are required"))
			return
		}

		result, err := ctrl.orchestrator.HandleTurn(c.Request.Context(), TurnRequest{
			Platform:      platform,
			ExternalId:    msg.Sender,
			PlatformMsgId: msg.MessageId,
			Content:       msg.Content,
		})
		if errors.Is(err, ErrStranger) {
			log.Info().Str("platform", string(platform)).Str("sender", msg.Sender).Msg("Ignoring message from unknown sender")
			c.JSON(http.StatusOK, ctrl.orchestrator.StrangerResult())
			return
		}
		if err != nil {
			ctrl.ErrorHandler(c, statusForTurnError(err), err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

/* ------------------------------- Mode ------------------------------------ */

func (ctrl *Controller) GetModeHandler(c *gin.Context) {
	mode := ctrl.orchestrator.Mode()
	c.JSON(http.StatusOK, gin.H{"mode": mode.Get(), "allowed": mode.Allowed()})
}

type SetModeRequest struct {
	Mode string `json:"mode"`
}

func (ctrl *Controller) SetModeHandler(c *gin.Context) {
	var req SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid mode request: %w", err))
		return
	}
	if err := ctrl.orchestrator.Mode().Set(req.Mode); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

/* ----------------------------- Websocket --------------------------------- */

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TurnEventsWebsocketHandler streams a user's turn events over a websocket
// until the client disconnects.
func (ctrl *Controller) TurnEventsWebsocketHandler(c *gin.Context) {
	userId := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, fmt.Errorf("failed to upgrade connection: %w", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Detect client disconnect: reads fail once the peer goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	startId := c.Query("from")
	eventCh, errCh := ctrl.streamer.StreamTurnEvents(ctx, userId, startId)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("userId", userId).Msg("Turn event stream error")
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Str("userId", userId).Msg("Failed to write turn event to websocket")
				return
			}
		}
	}
}
