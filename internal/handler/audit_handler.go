package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smart-mail-assistant-go/internal/repository"
)

// GetAudits returns execution audits with pagination
func (h *Handlers) GetAudits(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	messageID, _ := strconv.ParseUint(c.Query("messageId"), 10, 32)

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	filter := repository.AuditFilter{
		MessageID: uint(messageID),
		Status:    c.Query("status"),
		Page:      page,
		Limit:     limit,
	}
	audits, total, err := h.repo.ListAudits(filter)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"audits": audits,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetAudit returns a single audit row
func (h *Handlers) GetAudit(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	audit, err := h.repo.GetAudit(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, audit)
}
