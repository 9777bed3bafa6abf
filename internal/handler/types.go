package handler

import "time"

// PrepareRequest is the optional body of a prepare call
type PrepareRequest struct {
	SelectedAction string `json:"selectedAction"`
}

// ExecuteRequest is the body of an execute call
type ExecuteRequest struct {
	ActionType string         `json:"actionType" binding:"required"`
	Payload    map[string]any `json:"payload"`
	Actor      string         `json:"actor"`
}

// RetryRequest is the optional body of a retry call
type RetryRequest struct {
	UserID string `json:"userId"`
}

// SuggestionRequest asks for suggestions of any kind; an empty kind is routed
type SuggestionRequest struct {
	Kind        string         `json:"kind"`
	UserID      string         `json:"userId"`
	MessageID   uint           `json:"messageId"`
	Input       string         `json:"input"`
	Payload     map[string]any `json:"payload"`
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"maxTokens"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Scheduler string            `json:"scheduler"`
	Details   map[string]string `json:"details,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error              string `json:"error"`
	Message            string `json:"message"`
	Code               int    `json:"code"`
	RequiredPermission string `json:"requiredPermission,omitempty"`
	RemediationURL     string `json:"remediationUrl,omitempty"`
	ReauthURL          string `json:"reauthUrl,omitempty"`
}
