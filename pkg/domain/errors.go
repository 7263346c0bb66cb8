package domain

import "errors"

// Common domain errors
var (
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrRulesNotFound   = errors.New("policy rules not found")
	ErrRulesInvalid    = errors.New("invalid policy rules")
	ErrEngineDisabled  = errors.New("reasoning engine disabled")
	ErrEngineFailed    = errors.New("reasoning engine call failed")
	ErrInvalidRequest  = errors.New("invalid evaluation request")
	ErrMissingAPIKey   = errors.New("reasoning engine api key is not configured")
	ErrUnknownProvider = errors.New("unknown reasoning provider")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the evaluation API.
// TraceID carries the request identifier so operators can correlate logs.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., INVALID_REQUEST)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}
