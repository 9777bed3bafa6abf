package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/actions"
	"smart-mail-assistant-go/internal/intake"
	"smart-mail-assistant-go/internal/llm"
	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/repository"
	"smart-mail-assistant-go/internal/scheduler"
	"smart-mail-assistant-go/internal/suggest"
)

// errorResponse maps a domain error to its HTTP representation
func errorResponse(err error) ErrorResponse {
	var (
		perm      *actions.InsufficientPermissions
		expired   *actions.TokenExpired
		transient *actions.TransientError
		local     *actions.Error
		invalid   *meeting.ValidationError
	)

	switch {
	case errors.As(err, &perm):
		return ErrorResponse{
			Error:              actions.CodeInsufficientPermissions,
			Message:            "The account has not granted the permission this action needs",
			Code:               http.StatusForbidden,
			RequiredPermission: string(perm.RequiredPermission),
			RemediationURL:     perm.RemediationURL,
		}
	case errors.As(err, &expired):
		return ErrorResponse{
			Error:     actions.CodeTokenExpired,
			Message:   "Stored credentials were rejected; sign in again",
			Code:      http.StatusUnauthorized,
			ReauthURL: expired.ReauthURL,
		}
	case errors.As(err, &transient):
		return ErrorResponse{Error: actions.CodeTransient, Message: transient.Err.Error(), Code: http.StatusBadGateway}
	case errors.As(err, &local):
		return ErrorResponse{Error: local.Code, Message: local.Error(), Code: localStatus(local.Code)}
	case errors.Is(err, meeting.ErrMissingDatetime):
		return ErrorResponse{Error: actions.CodeMissingDatetime, Message: "No date or time found in the request", Code: http.StatusUnprocessableEntity}
	case errors.As(err, &invalid):
		return ErrorResponse{Error: actions.CodeValidation, Message: invalid.Reason, Code: http.StatusUnprocessableEntity}
	case errors.Is(err, suggest.ErrInvalidRequest):
		return ErrorResponse{Error: "invalid_request", Message: err.Error(), Code: http.StatusBadRequest}
	case errors.Is(err, repository.ErrNotFound):
		return ErrorResponse{Error: "not_found", Message: err.Error(), Code: http.StatusNotFound}
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return ErrorResponse{Error: "scheduler_error", Message: err.Error(), Code: http.StatusConflict}
	case errors.Is(err, llm.ErrNoAPIKey), errors.Is(err, llm.ErrUnavailable), errors.Is(err, intake.ErrStopped):
		return ErrorResponse{Error: "service_unavailable", Message: err.Error(), Code: http.StatusServiceUnavailable}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse{Error: "timeout", Message: "The request timed out", Code: http.StatusGatewayTimeout}
	default:
		return ErrorResponse{Error: "internal_error", Message: "Internal server error", Code: http.StatusInternalServerError}
	}
}

func localStatus(code string) int {
	switch {
	case code == actions.CodeNotFound:
		return http.StatusNotFound
	case code == actions.CodeAlreadyExecuted:
		return http.StatusConflict
	case code == actions.CodeMissingDatetime, code == actions.CodeValidation:
		return http.StatusUnprocessableEntity
	case code == actions.CodeUnknownAction, strings.HasPrefix(code, "missing_"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	resp := errorResponse(err)
	if resp.Code >= http.StatusInternalServerError {
		logrus.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(resp.Code, resp)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
		Code:    http.StatusBadRequest,
	})
}
