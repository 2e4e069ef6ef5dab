package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Controller command errors
	ErrCodeCommandFailed    ErrorCode = "COMMAND_FAILED"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Connection and protocol errors
	ErrCodeNotConnected      ErrorCode = "NOT_CONNECTED"
	ErrCodeTransport         ErrorCode = "TRANSPORT"
	ErrCodeProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// CtlError represents a structured error with context
type CtlError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *CtlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *CtlError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *CtlError) WithDetail(key string, value interface{}) *CtlError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *CtlError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new CtlError
func New(code ErrorCode, message string) *CtlError {
	return &CtlError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a CtlError
func Wrap(err error, code ErrorCode, message string) *CtlError {
	return &CtlError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific CtlError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	ctlErr, ok := err.(*CtlError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return ctlErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	ctlErr, ok := err.(*CtlError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return ctlErr.Code
}

// As returns the first CtlError in err's chain.
func As(err error) (*CtlError, bool) {
	for err != nil {
		if ctlErr, ok := err.(*CtlError); ok {
			return ctlErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
