package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartScheduler starts the ingestion and processing timers
func (h *Handlers) StartScheduler(c *gin.Context) {
	if _, err := h.scheduler.Start(h.baseCtx); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops the timers
func (h *Handlers) StopScheduler(c *gin.Context) {
	h.scheduler.Stop()

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// RunOnce runs ingestion and processing once
func (h *Handlers) RunOnce(c *gin.Context) {
	if err := h.scheduler.RunOnce(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ingestion and processing completed successfully",
	})
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}
