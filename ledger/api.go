package ledger

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cortex/common"
	"cortex/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Controller struct {
	service *Service
}

func NewController(service *Service) *Controller {
	return &Controller{service: service}
}

// RunServer starts the ledger HTTP API on LEDGER_PORT.
func RunServer(service *Service) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := DefineRoutes(NewController(service))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", common.GetLedgerPort()),
		Handler: router.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start ledger server")
		}
	}()

	return srv
}

func DefineRoutes(ctrl *Controller) *gin.Engine {
	r := gin.Default()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	users := r.Group("/users/:userId")
	users.POST("/sync", ctrl.SyncHandler)
	users.GET("/buffer", ctrl.BufferHandler)
	users.GET("/messages", ctrl.MessagesHandler)
	users.GET("/topics/recent", ctrl.RecentTopicsHandler)
	users.GET("/topics/:topicId/messages", ctrl.TopicMessagesHandler)
	users.POST("/topics", ctrl.CreateTopicHandler)
	users.POST("/topics/:topicId/assign", ctrl.AssignRangeHandler)
	users.GET("/summaries", ctrl.SummariesHandler)
	users.POST("/last-seen", ctrl.LastSeenHandler)
	return r
}

func (ctrl *Controller) ErrorHandler(c *gin.Context, status int, err error) {
	log.Error().Err(err).Int("status", status).Msg("Ledger API error")
	c.JSON(status, gin.H{"error": err.Error()})
}

type SyncRequest struct {
	Snapshot []SnapshotEntry `json:"snapshot"`
}

type SyncResponse struct {
	Buffer []domain.Message `json:"buffer"`
}

func (ctrl *Controller) SyncHandler(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid sync request: %w", err))
		return
	}

	buffer, err := ctrl.service.Sync(c.Request.Context(), c.Param("userId"), req.Snapshot)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, SyncResponse{Buffer: buffer})
}

func (ctrl *Controller) BufferHandler(c *gin.Context) {
	buffer, err := ctrl.service.Buffer(c.Request.Context(), c.Param("userId"))
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, SyncResponse{Buffer: buffer})
}

func (ctrl *Controller) MessagesHandler(c *gin.Context) {
	var query domain.MessageQuery
	var err error
	if query.Since, err = parseTimeParam(c, "since"); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	if query.Until, err = parseTimeParam(c, "until"); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	query.TopicId = c.Query("topicId")
	if limit := c.Query("limit"); limit != "" {
		if query.Limit, err = strconv.Atoi(limit); err != nil {
			ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid limit: %w", err))
			return
		}
	}

	messages, err := ctrl.service.Messages(c.Request.Context(), c.Param("userId"), query)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (ctrl *Controller) RecentTopicsHandler(c *gin.Context) {
	limit := 10
	if n := c.Query("n"); n != "" {
		parsed, err := strconv.Atoi(n)
		if err != nil {
			ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid n: %w", err))
			return
		}
		limit = parsed
	}

	topics, err := ctrl.service.TopicsRecent(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

func (ctrl *Controller) TopicMessagesHandler(c *gin.Context) {
	messages, err := ctrl.service.TopicMessages(c.Request.Context(), c.Param("userId"), c.Param("topicId"))
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type CreateTopicRequest struct {
	Name string `json:"name"`
}

func (ctrl *Controller) CreateTopicHandler(c *gin.Context) {
	var req CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("topic name is required"))
		return
	}

	topic, err := ctrl.service.CreateTopic(c.Request.Context(), c.Param("userId"), req.Name)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

type AssignRangeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (ctrl *Controller) AssignRangeHandler(c *gin.Context) {
	var req AssignRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid assign request: %w", err))
		return
	}

	tagged, err := ctrl.service.AssignRange(c.Request.Context(), c.Param("userId"), c.Param("topicId"), req.Start, req.End)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			ctrl.ErrorHandler(c, http.StatusNotFound, err)
			return
		}
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tagged": tagged})
}

func (ctrl *Controller) SummariesHandler(c *gin.Context) {
	var query domain.SummaryQuery
	var err error
	if typeParam := c.Query("type"); typeParam != "" {
		summaryType, err := domain.StringToSummaryType(typeParam)
		if err != nil {
			ctrl.ErrorHandler(c, http.StatusBadRequest, err)
			return
		}
		query.Types = []domain.SummaryType{summaryType}
	}
	if query.From, err = parseTimeParam(c, "from"); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	if query.To, err = parseTimeParam(c, "to"); err != nil {
		ctrl.ErrorHandler(c, http.StatusBadRequest, err)
		return
	}
	if limit := c.Query("limit"); limit != "" {
		if query.Limit, err = strconv.Atoi(limit); err != nil {
			ctrl.ErrorHandler(c, http.StatusBadRequest, fmt.Errorf("invalid limit: %w", err))
			return
		}
	}

	summaries, err := ctrl.service.Summaries(c.Request.Context(), c.Param("userId"), query)
	if err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries})
}

type LastSeenRequest struct {
	Platform domain.Platform `json:"platform"`
	Seen     time.Time       `json:"seen"`
}

func (ctrl *Controller) LastSeenHandler(c *gin.Context) {
	var req LastSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Platform == "" {
		ctrl.ErrorHandler(c, http.StatusBadRequest, errors.New("platform is required"))
		return
	}
	if req.Seen.IsZero() {
		req.Seen = time.Now()
	}
	if err := ctrl.service.UpdateLastSeen(c.Request.Context(), c.Param("userId"), req.Platform, req.Seen); err != nil {
		ctrl.ErrorHandler(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseTimeParam(c *gin.Context, name string) (*time.Time, error) {
	value := c.Query(name)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &parsed, nil
}
