package pipelineerrors

import (
	"bytes"
	"fmt"
)

// Error is the concrete type behind every error the pipeline returns to a
// caller of Executor.Execute. It carries enough structure for callers to
// branch on Code without string matching, while still satisfying the error
// interface for ordinary logging.
type Error struct {
	Code           Code
	CommandType    string
	MiddlewareType string
	Message        string
	AdditionalInfo map[string]interface{}
	cause          error
}

// Newf constructs a new *Error with the given code, command type, and a
// formatted message.
func Newf(code Code, commandType string, format string, args ...interface{}) *Error {
	return &Error{
		Code:        code,
		CommandType: commandType,
		Message:     fmt.Sprintf(format, args...),
	}
}

// WithMiddleware annotates the error with the middleware type that raised it
// and returns the same *Error for chaining.
func (e *Error) WithMiddleware(middlewareType string) *Error {
	e.MiddlewareType = middlewareType
	return e
}

// WithInfo attaches a key/value pair to the error's AdditionalInfo map,
// allocating the map on first use, and returns the same *Error for chaining.
func (e *Error) WithInfo(key string, value interface{}) *Error {
	if e.AdditionalInfo == nil {
		e.AdditionalInfo = make(map[string]interface{}, 1)
	}
	e.AdditionalInfo[key] = value
	return e
}

// WithCause records an underlying error for Unwrap and returns the same
// *Error for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	buf := bytes.NewBuffer(nil)
	buf.WriteString("code:")
	buf.WriteString(e.Code.String())
	if e.CommandType != "" {
		buf.WriteString(" commandType:")
		buf.WriteString(e.CommandType)
	}
	if e.MiddlewareType != "" {
		buf.WriteString(" middleware:")
		buf.WriteString(e.MiddlewareType)
	}
	if e.Message != "" {
		buf.WriteString(" message:")
		buf.WriteString(e.Message)
	}
	return buf.String()
}

// Unwrap exposes the underlying cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsPipelineError reports whether err is a non-nil *Error.
func IsPipelineError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*Error)
	return ok
}

// ErrorCode returns the Code for err, or CodeUnknown if err is not a
// *Error (or is nil).
func ErrorCode(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	pe, ok := err.(*Error)
	if !ok {
		return CodeUnknown
	}
	return pe.Code
}

// Retryable reports whether the default retry policy should consider this
// error for another attempt. Validation/auth/cancellation/circuit-open are
// never retryable; timeouts, service-unavailable and execution failures are.
func Retryable(err error) bool {
	switch ErrorCode(err) {
	case CodeTimeout, CodeServiceUnavailable, CodeExecutionFailed:
		return true
	default:
		return false
	}
}
