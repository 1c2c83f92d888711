package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Domain constructors ---

// MalformedToken reports a dependency token that cannot be parsed.
func MalformedToken(token, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeMalformedToken,
		Message: fmt.Sprintf("malformed dependency token %q: %s", token, reason),
		Details: map[string]any{"token": token},
	}
}

// CycleDetected reports a circular dependency. path lists the nodes on the
// cycle with the first node repeated at the end.
func CycleDetected(path []string) *AppError {
	return &AppError{
		Code:    ErrCodeCycleDetected,
		Message: "circular dependency: " + strings.Join(path, " -> "),
		Details: map[string]any{"path": path},
	}
}

// UnsatisfiedConstraint reports an installed version that violates a
// dependent's constraint when upgrades are disallowed.
func UnsatisfiedConstraint(node, installed, constraint, requiredBy string) *AppError {
	return &AppError{
		Code: ErrCodeUnsatisfiedConstraint,
		Message: fmt.Sprintf("%s %s does not satisfy %s%s required by %s and upgrades are disabled",
			node, installed, node, constraint, requiredBy),
		Details: map[string]any{
			"node":        node,
			"installed":   installed,
			"constraint":  constraint,
			"required_by": requiredBy,
		},
	}
}

// BuildFailed reports a node whose build failed after all attempts.
func BuildFailed(node string, attempts int, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeBuildFailed,
		Message: fmt.Sprintf("build of %s failed after %d attempt(s)", node, attempts),
		Details: map[string]any{"node": node, "attempts": attempts},
		Cause:   cause,
	}
}

// ResourceUnavailable reports a resource probe failure.
func ResourceUnavailable(cause error) *AppError {
	return &AppError{
		Code:      ErrCodeResourceUnavailable,
		Message:   "resource probe unavailable",
		Retryable: true,
		Cause:     cause,
	}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resource, id),
		Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// IOError wraps a filesystem failure on the given path.
func IOError(op, path string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeIO,
		Message:   fmt.Sprintf("%s %s", op, path),
		Retryable: true,
		Details:   map[string]any{"path": path},
		Cause:     cause,
	}
}

// Internal reports a broken invariant.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// --- Inspection helpers ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err wraps an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Is forwards to the standard library so callers need a single errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As forwards to the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }
