package connection

import (
	"fmt"
	"time"
)

// ConfigurationError is returned when a node or pool is set up with invalid
// options. It is never retried.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// NewConfigurationError returns a ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ConnectionError wraps a low-level transport failure such as a refused or
// reset connection.
type ConnectionError struct {
	Message string
	Err     error
}

func (e *ConnectionError) Error() string { return e.Message }

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError is returned when a request exceeds its deadline.
type TimeoutError struct {
	Method  string
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s: %s %s", e.Timeout, e.Method, e.Path)
}

// RequestAbortedError is returned when a request is cancelled by its caller.
type RequestAbortedError struct{}

func (e *RequestAbortedError) Error() string { return "request aborted" }

// ValidationError is returned before any I/O when a request path contains
// bytes outside the range accepted on the wire.
type ValidationError struct {
	Path string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ERR_UNESCAPED_CHARACTERS: %s", e.Path)
}
