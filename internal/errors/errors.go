package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategorySystem represents unexpected system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategorySource represents failures talking to the activity source
	CategorySource ErrorCategory = "source"
	// CategoryDatabase represents per-record persistence failures
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryInvariant represents a broken lifecycle invariant
	CategoryInvariant ErrorCategory = "invariant"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Response is the JSON error body returned by the API
type Response struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToResponse converts to the API error body
func (e *CategorizedError) ToResponse() Response {
	return Response{Code: e.Code, Message: e.Message, Details: e.Details}
}

// Validation errors (4xx)

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInvalidUsernameError reports a name that is not a valid Hive account
func NewInvalidUsernameError(username string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_USERNAME",
		Message:    fmt.Sprintf("invalid Hive username: %q", username),
		Details: map[string]interface{}{
			"username": username,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConfirmationRequiredError guards destructive operations
func NewConfirmationRequiredError(operation string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusPreconditionRequired,
		Code:       "CONFIRMATION_REQUIRED",
		Message:    fmt.Sprintf("%s requires explicit confirmation", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewRunInProgressError reports that another cycle holds the run lock
func NewRunInProgressError(holder string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "RUN_IN_PROGRESS",
		Message:    "another pulse cycle is already running",
		Details: map[string]interface{}{
			"holder": holder,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// System errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInvariantError reports a lifecycle state that should be impossible,
// e.g. resetting a member that has no row.
func NewInvariantError(username string, message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryInvariant,
		StatusCode: http.StatusInternalServerError,
		Code:       "INVARIANT_VIOLATION",
		Message:    message,
		Details: map[string]interface{}{
			"username": username,
		},
	}
}

// Activity source errors

// NewSourceError wraps a failed call to a Hive node
func NewSourceError(method string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySource,
		StatusCode: http.StatusBadGateway,
		Code:       "SOURCE_ERROR",
		Message:    fmt.Sprintf("activity source call failed: %s", method),
		Cause:      cause,
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// NewSourceTimeoutError reports a Hive call that hit its deadline
func NewSourceTimeoutError(method string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySource,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "SOURCE_TIMEOUT",
		Message:    fmt.Sprintf("activity source timeout: %s", method),
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// NewSourceRateLimitError reports a node answering 429
func NewSourceRateLimitError(node string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySource,
		StatusCode: http.StatusTooManyRequests,
		Code:       "SOURCE_RATE_LIMIT",
		Message:    fmt.Sprintf("activity source rate limit exceeded: %s", node),
		Details: map[string]interface{}{
			"node": node,
		},
	}
}

// Categorize categorizes an existing error. Wrapped categorized errors are
// found through the chain; anything else becomes an internal error.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategorySource, CategoryDatabase, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsInvariantViolation reports whether err carries CategoryInvariant
func IsInvariantViolation(err error) bool {
	return hasCategory(err, CategoryInvariant)
}

// IsNotFound reports whether err carries CategoryNotFound
func IsNotFound(err error) bool {
	return hasCategory(err, CategoryNotFound)
}

// IsConflict reports whether err carries CategoryConflict
func IsConflict(err error) bool {
	return hasCategory(err, CategoryConflict)
}

func hasCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	return stderrors.As(err, &catErr) && catErr.Category == category
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
