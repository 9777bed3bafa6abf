package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/actions"
	"smart-mail-assistant-go/internal/queue"
	"smart-mail-assistant-go/internal/repository"
	"smart-mail-assistant-go/internal/scheduler"
	"smart-mail-assistant-go/internal/suggest"
)

// Commander submits user commands to the intake loop
type Commander interface {
	Prepare(ctx context.Context, messageID uint, hint string) (*actions.PrepareResult, error)
	Execute(ctx context.Context, req actions.ExecuteRequest) (*actions.ExecuteResult, error)
	Retry(ctx context.Context, userID string) (int64, error)
	Generate(ctx context.Context, req suggest.Request) (*suggest.Result, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	baseCtx     context.Context
	repo        *repository.Repository
	commands    Commander
	queue       *queue.Controller
	scheduler   *scheduler.Scheduler
	statsWindow time.Duration
	metrics     http.Handler
}

// NewHandlers creates new HTTP handlers. Timers started over HTTP live until baseCtx is cancelled.
func NewHandlers(baseCtx context.Context, repo *repository.Repository, commands Commander, q *queue.Controller, s *scheduler.Scheduler, statsWindow time.Duration, metrics http.Handler) *Handlers {
	return &Handlers{
		baseCtx:     baseCtx,
		repo:        repo,
		commands:    commands,
		queue:       q,
		scheduler:   s,
		statsWindow: statsWindow,
		metrics:     metrics,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/actions/prepare/:messageId", h.PrepareActions)
		api.POST("/actions/execute/:messageId", h.ExecuteAction)

		api.GET("/processing/stats", h.GetProcessingStats)
		api.POST("/processing/retry", h.RetryProcessing)

		api.POST("/suggestions", h.GenerateSuggestions)
		api.GET("/messages/:messageId/suggestions", h.GetMessageSuggestions)

		api.GET("/audits", h.GetAudits)
		api.GET("/audits/:id", h.GetAudit)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Scheduler: "stopped",
		Details:   make(map[string]string),
	}

	if err := h.repo.DB().Exec("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler != nil && h.scheduler.IsRunning() {
		response.Scheduler = "running"
		if next := h.scheduler.NextRun(scheduler.JobProcessing); !next.IsZero() {
			response.Details["next_processing_run"] = next.Format(time.RFC3339)
		}
	}
	if h.scheduler != nil {
		if last := h.scheduler.LastRun(scheduler.JobIngestion); !last.IsZero() {
			response.Details["last_ingestion_run"] = last.Format(time.RFC3339)
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid " + name,
			Code:    http.StatusBadRequest,
		})
		return 0, false
	}
	return uint(id), true
}
