package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// GetProcessingStats reports queue state over a rolling window
func (h *Handlers) GetProcessingStats(c *gin.Context) {
	window := h.statsWindow
	if raw := c.Query("window"); raw != "" {
		w, err := parseWindow(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		window = w
	}

	stats, err := h.queue.Stats(window)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RetryProcessing resets failed messages so they are picked up again
func (h *Handlers) RetryProcessing(c *gin.Context) {
	var req RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	n, err := h.commands.Retry(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

// parseWindow accepts Go durations plus a whole-day suffix such as "7d"
func parseWindow(raw string) (time.Duration, error) {
	var (
		d   time.Duration
		err error
	)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		var n int
		n, err = strconv.Atoi(days)
		d = time.Duration(n) * 24 * time.Hour
	} else {
		d, err = time.ParseDuration(raw)
	}
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", raw)
	}
	return d, nil
}
