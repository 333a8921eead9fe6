package model

import (
	"fmt"
	"net/http"
)

// Stable error codes. The set is open, but these are contract-fixed: clients
// match on code, never on message text.
const (
	ErrCodeInvalidInput     = "REQUEST_INVALID"
	ErrCodeUnauthorized     = "AUTH_UNAUTHORIZED"
	ErrCodeIdentityMismatch = "AUTH_IDENTITY_MISMATCH"
	ErrCodeForbidden        = "AUTH_FORBIDDEN"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"

	ErrCodeStrategyNotFound   = "STRATEGY_NOT_FOUND"
	ErrCodeBacktestNotFound   = "BACKTEST_NOT_FOUND"
	ErrCodeDeploymentNotFound = "DEPLOYMENT_NOT_FOUND"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeRunNotFound        = "RUN_NOT_FOUND"
	ErrCodeBaselineNotFound   = "BASELINE_NOT_FOUND"

	ErrCodeIdempotencyConflict   = "IDEMPOTENCY_KEY_CONFLICT"
	ErrCodeIdempotencyInProgress = "IDEMPOTENCY_KEY_IN_PROGRESS"

	ErrCodeRiskPolicyInvalid   = "RISK_POLICY_INVALID"
	ErrCodeRiskLimitBreach     = "RISK_LIMIT_BREACH"
	ErrCodeRiskKillSwitch      = "RISK_KILL_SWITCH_ACTIVE"
	ErrCodeResearchBudget      = "RESEARCH_PROVIDER_BUDGET_EXCEEDED"
	ErrCodeInvalidTransition   = "LIFECYCLE_TRANSITION_INVALID"
	ErrCodeReplayInputInvalid  = "REPLAY_INPUT_INVALID"
	ErrCodeValidationConflict  = "VALIDATION_CONFLICT"

	ErrCodeDatasetNotFound      = "DATASET_NOT_FOUND"
	ErrCodeDatasetNotPublished  = "DATASET_NOT_PUBLISHED"
	ErrCodeDatasetPublishFailed = "DATASET_PUBLISH_FAILED"

	ErrCodeLiveEngineBadResponse = "LIVE_ENGINE_BAD_RESPONSE_JSON"
	ErrCodeTraderBadResponse     = "TRADER_DATA_BAD_RESPONSE_JSON"
	ErrCodeLiveEngineUnavailable = "LIVE_ENGINE_UNAVAILABLE"
	ErrCodeTraderUnavailable     = "TRADER_PROVIDER_UNAVAILABLE"
)

// PlatformError is the typed error carried from services to the HTTP boundary.
// Services never write HTTP responses; they return a PlatformError and the
// envelope renderer does the rest.
type PlatformError struct {
	Code    string
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// NewPlatformError creates a PlatformError with the given code, status, and message.
func NewPlatformError(code string, status int, message string) *PlatformError {
	return &PlatformError{Code: code, Status: status, Message: message}
}

// WithDetails attaches structured details to the error and returns it.
func (e *PlatformError) WithDetails(details map[string]any) *PlatformError {
	e.Details = details
	return e
}

// NotFound builds the canonical 404 for a resource family.
func NotFound(code, resourceID string) *PlatformError {
	return NewPlatformError(code, http.StatusNotFound, fmt.Sprintf("resource %q not found", resourceID))
}

// Internal wraps an unexpected condition without leaking internals to clients.
// The underlying error is for logs only.
func Internal(err error) *PlatformError {
	return NewPlatformError(ErrCodeInternal, http.StatusInternalServerError, "an unexpected error occurred")
}
