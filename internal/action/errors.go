// File: internal/action/errors.go
package action

import "errors"

// ErrorCode is a string type used for structured error reporting from the
// executor. Using a custom type keeps free-form strings out of the taxonomy.
type ErrorCode string

const (
	// ErrCodeSurfaceUnavailable: the browsing surface was never initialized
	// or is not attached to a renderable context. Fatal for the action.
	ErrCodeSurfaceUnavailable ErrorCode = "SURFACE_UNAVAILABLE"
	// ErrCodeInvalidParameters: required fields missing or unparseable,
	// which signals a malformed model request. Fatal for the action.
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	// ErrCodeScriptExecution: a page script failed. Non-fatal; degrades to
	// descriptive output because the model judges page state, not us.
	ErrCodeScriptExecution ErrorCode = "SCRIPT_EXECUTION_ERROR"
	// ErrCodeNavigationFailed: the underlying page load errored.
	ErrCodeNavigationFailed ErrorCode = "NAVIGATION_FAILED"
	// ErrCodeCaptureFailed: screenshot validation failed after all retries.
	// Degrades to a diagnostic placeholder rather than propagating.
	ErrCodeCaptureFailed ErrorCode = "CAPTURE_FAILED"
)

// Sentinel errors matching the codes above. Wrapping these with %w keeps
// errors.Is checks working across package boundaries.
var (
	ErrSurfaceUnavailable = errors.New("browsing surface unavailable")
	ErrInvalidParameters  = errors.New("invalid action parameters")
	ErrNavigationFailed   = errors.New("navigation failed")
	ErrCaptureFailed      = errors.New("screenshot capture failed")
)

// CodeOf maps an error chain onto its taxonomy code. Anything unrecognized
// lands in the script-execution bucket, the non-fatal default.
func CodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrSurfaceUnavailable):
		return ErrCodeSurfaceUnavailable
	case errors.Is(err, ErrInvalidParameters):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrNavigationFailed):
		return ErrCodeNavigationFailed
	case errors.Is(err, ErrCaptureFailed):
		return ErrCodeCaptureFailed
	}
	return ErrCodeScriptExecution
}
