package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-mail-assistant-go/internal/actions"
	"smart-mail-assistant-go/internal/model"
)

// PrepareActions generates a fresh suggestion set for a message
func (h *Handlers) PrepareActions(c *gin.Context) {
	id, ok := idParam(c, "messageId")
	if !ok {
		return
	}

	var req PrepareRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	res, err := h.commands.Prepare(c.Request.Context(), id, req.SelectedAction)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ExecuteAction runs a confirmed action
func (h *Handlers) ExecuteAction(c *gin.Context) {
	id, ok := idParam(c, "messageId")
	if !ok {
		return
	}

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.commands.Execute(c.Request.Context(), actions.ExecuteRequest{
		MessageID:  id,
		ActionType: req.ActionType,
		Payload:    model.JSONMap(req.Payload),
		Actor:      req.Actor,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
