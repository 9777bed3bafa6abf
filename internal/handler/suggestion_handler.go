package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-mail-assistant-go/internal/llm"
	"smart-mail-assistant-go/internal/suggest"
)

// GenerateSuggestions runs the suggestion engine for any kind
func (h *Handlers) GenerateSuggestions(c *gin.Context) {
	var req SuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var kind suggest.Kind
	if req.Kind != "" {
		k, ok := suggest.ParseKind(req.Kind)
		if !ok {
			badRequest(c, "unknown kind "+req.Kind)
			return
		}
		kind = k
	}
	if kind == "" && req.Input == "" {
		badRequest(c, "input is required when kind is omitted")
		return
	}

	res, err := h.commands.Generate(c.Request.Context(), suggest.Request{
		Kind:      kind,
		UserID:    req.UserID,
		MessageID: req.MessageID,
		Input:     req.Input,
		Payload:   req.Payload,
		Model: llm.Options{
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetMessageSuggestions returns the authoritative suggestion set for a message
func (h *Handlers) GetMessageSuggestions(c *gin.Context) {
	id, ok := idParam(c, "messageId")
	if !ok {
		return
	}

	set, err := h.repo.LatestSuggestionSet(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}
