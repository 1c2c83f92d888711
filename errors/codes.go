package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Dependency metadata errors
const (
	// ErrCodeMalformedToken indicates a dependency token could not be parsed.
	ErrCodeMalformedToken ErrorCode = "MALFORMED_TOKEN"
	// ErrCodeNotFound indicates the requested port or descriptor was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidInput indicates the input or configuration is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Resolution errors
const (
	// ErrCodeCycleDetected indicates the dependency graph is not a DAG.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
	// ErrCodeUnsatisfiedConstraint indicates an installed version violates a
	// constraint and upgrading is not allowed.
	ErrCodeUnsatisfiedConstraint ErrorCode = "UNSATISFIED_CONSTRAINT"
)

// Execution errors
const (
	// ErrCodeBuildFailed indicates a build failed after all retries.
	ErrCodeBuildFailed ErrorCode = "BUILD_FAILED"
	// ErrCodeResourceUnavailable indicates the resource probe could not be read.
	ErrCodeResourceUnavailable ErrorCode = "RESOURCE_UNAVAILABLE"
	// ErrCodeIO indicates a filesystem error on the event log or status file.
	ErrCodeIO ErrorCode = "IO_ERROR"
	// ErrCodeInternal indicates a broken scheduler invariant.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeResourceUnavailable: true,
	ErrCodeIO:                  true,
	ErrCodeBuildFailed:         false,
	ErrCodeInternal:            false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// IsFatalCode reports whether the code terminates a whole run.
func IsFatalCode(code ErrorCode) bool {
	switch code {
	case ErrCodeCycleDetected, ErrCodeUnsatisfiedConstraint, ErrCodeBuildFailed, ErrCodeInternal:
		return true
	}
	return false
}
