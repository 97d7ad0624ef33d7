package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"cortex/common"
	"cortex/llm"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Controller struct {
	service *Service
	timeout time.Duration
}

func NewController(service *Service, timeout time.Duration) *Controller {
	return &Controller{service: service, timeout: timeout}
}

// RunServer starts the proxy HTTP API on PROXY_PORT.
func RunServer(service *Service, config common.Config) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	ctrl := NewController(service, config.Timeout())
	router := DefineRoutes(ctrl)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", common.GetProxyPort()),
		Handler: router.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start proxy server")
		}
	}()

	return srv
}

func DefineRoutes(ctrl *Controller) *gin.Engine {
	r := gin.Default()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	r.POST("/dispatch", ctrl.DispatchHandler)
	r.GET("/status", ctrl.StatusHandler)
	r.GET("/tasks/:id", ctrl.TaskHandler)
	return r
}

func (ctrl *Controller) ErrorHandler(c *gin.Context, status int, err error) {
	log.Error().Err(err).Int("status", status).Msg("Proxy API error")
	c.JSON(status, gin.H{"error": err.Error()})
}

type DispatchRequest struct {
	llm.ChatRequest
	Priority Priority `json:"priority,omitempty"`
}

// DispatchHandler queues the request and blocks until the provider answers
// or the proxy timeout elapses.
func (ctrl *Controller) DispatchHandler(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid dispatch request: %w", err))
		return
	}
	if req.Model == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("model is required"))
		return
	}
	if len(req.Messages) == 0 && req.Prompt == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("messages or prompt is required"))
		return
	}

	response, err := ctrl.service.Enqueue(c.Request.Context(), req.ChatRequest, req.Priority, ctrl.timeout)
	if err != nil {
		ctrl.ErrorHandler(c, statusForDispatchError(err), err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func statusForDispatchError(err error) int {
	var unknownProvider llm.ErrUnknownProvider
	var httpErr llm.ProviderHTTPError
	switch {
	case errors.As(err, &unknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTaskTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &httpErr):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (ctrl *Controller) StatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"queues": ctrl.service.Status()})
}

func (ctrl *Controller) TaskHandler(c *gin.Context) {
	info, ok := ctrl.service.Task(c.Param("id"))
	if !ok {
		ctrl.ErrorHandler(c, http.StatusNotFound, errors.New("task not found"))
		return
	}
	c.JSON(http.StatusOK, info)
}
