package errors

import (
	"fmt"
	"strings"
	"time"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *CtlError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *CtlError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// CommandFailed creates a controller command failure error.
// status is the HTTP status returned by the controller, 0 if the request never completed.
func CommandFailed(verb string, status int, err error) *CtlError {
	msg := fmt.Sprintf("command failed: %s", verb)
	if status != 0 {
		msg = fmt.Sprintf("command failed: %s (status %d)", verb, status)
	}

	ctlErr := Wrap(err, ErrCodeCommandFailed, msg).WithDetail("command", verb)
	if status != 0 {
		ctlErr = ctlErr.WithDetail("status", status)
	}
	return ctlErr
}

// PermissionDenied creates an error for commands rejected because of a bad password
func PermissionDenied(verb string) *CtlError {
	return New(ErrCodePermissionDenied, fmt.Sprintf("permission denied: %s", verb)).
		WithDetail("command", verb)
}

// NotConnected creates an error for operations that need a live controller connection
func NotConnected(op string) *CtlError {
	return New(ErrCodeNotConnected, fmt.Sprintf("not connected to controller: %s", op)).
		WithDetail("operation", op)
}

// ProtocolViolation creates an error for deltas that change the type stored at a path
func ProtocolViolation(paths []string) *CtlError {
	return New(ErrCodeProtocolViolation,
		fmt.Sprintf("delta changes value kind at %s", strings.Join(paths, ", "))).
		WithDetail("paths", paths)
}

// Reentrant creates an error for state mutation attempted from inside a notification
func Reentrant(op string) *CtlError {
	return New(ErrCodeInternal, fmt.Sprintf("%s called from a state notification", op)).
		WithDetail("operation", op)
}

// InvalidAxis creates an error for an unknown axis name
func InvalidAxis(axis string) *CtlError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid axis '%s' (expected one of x, y, z, a, b, c)", axis)).
		WithDetail("axis", axis)
}

// Timeout creates an error for an operation that did not finish in time
func Timeout(op string, after time.Duration) *CtlError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s did not complete within %s", op, after)).
		WithDetail("operation", op).
		WithDetail("timeout", after.String())
}
