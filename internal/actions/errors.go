package actions

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"smart-mail-assistant-go/internal/config"
	"smart-mail-assistant-go/internal/workspace"
)

// Error codes stored on audit rows and returned to callers
const (
	CodeNotFound                = "not_found"
	CodeUnknownAction           = "unknown_action"
	CodeAlreadyExecuted         = "already_executed"
	CodeInsufficientPermissions = "insufficient_permissions"
	CodeTokenExpired            = "token_expired"
	CodeTransient               = "transient_error"
	CodeMissingDatetime         = "missing_datetime"
	CodeValidation              = "validation_error"
)

// Error is a local failure detected before or instead of a remote call
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MissingField reports a required payload field that was absent or empty
func MissingField(field string) *Error {
	return &Error{Code: "missing_" + field, Message: fmt.Sprintf("payload field %q is required", field)}
}

// InsufficientPermissions means the account has not granted the scope the action needs
type InsufficientPermissions struct {
	RequiredPermission workspace.Scope
	RemediationURL     string
	Err                error
}

func (e *InsufficientPermissions) Error() string {
	return fmt.Sprintf("%s: %s scope required", CodeInsufficientPermissions, e.RequiredPermission)
}

func (e *InsufficientPermissions) Unwrap() error {
	return e.Err
}

// TokenExpired means the stored credentials were rejected and the user must sign in again
type TokenExpired struct {
	ReauthURL string
	Err       error
}

func (e *TokenExpired) Error() string {
	return CodeTokenExpired + ": re-authentication required"
}

func (e *TokenExpired) Unwrap() error {
	return e.Err
}

// TransientError is any other remote failure; the caller may retry
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", CodeTransient, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Code returns the audit error code for err
func Code(err error) string {
	var local *Error
	var perm *InsufficientPermissions
	var expired *TokenExpired
	switch {
	case err == nil:
		return ""
	case errors.As(err, &local):
		return local.Code
	case errors.As(err, &perm):
		return CodeInsufficientPermissions
	case errors.As(err, &expired):
		return CodeTokenExpired
	default:
		return CodeTransient
	}
}

// classify maps a workspace failure to the error taxonomy
func classify(err error, scope workspace.Scope, links config.LinksConfig) error {
	var local *Error
	if errors.As(err, &local) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusForbidden && !rateLimited(apiErr):
			return &InsufficientPermissions{
				RequiredPermission: scope,
				RemediationURL:     remediationURL(links.ConsentURL, scope),
				Err:                err,
			}
		case apiErr.Code == http.StatusUnauthorized:
			return &TokenExpired{ReauthURL: links.ReauthURL, Err: err}
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &TokenExpired{ReauthURL: links.ReauthURL, Err: err}
	}

	return &TransientError{Err: err}
}

func rateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}

func remediationURL(base string, scope workspace.Scope) string {
	oauthScope, ok := workspace.OAuthScopes[scope]
	if !ok {
		return base
	}
	return base + "?scope=" + url.QueryEscape(oauthScope)
}
