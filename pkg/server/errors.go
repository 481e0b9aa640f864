package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
)

// Error types for structured error handling
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeAuth       ErrorType = "authentication"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeNotFound   ErrorType = "not_found"
)

// ServerError is a startup or HTTP surface failure, as opposed to a tool
// invocation failure which is reported inside the tool result.
type ServerError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements the error interface
func (e *ServerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ServerError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ServerError
func NewError(errType ErrorType, message string, details string) *ServerError {
	return &ServerError{
		Type:      errType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
}

// LogError logs the error with appropriate level and context
func (e *ServerError) LogError(logger *log.Logger) {
	entry := logger.Error()
	if e.Type == ErrorTypeNotFound {
		entry = logger.Warn()
	}
	entry.Str("type", string(e.Type)).
		Str("details", e.Details).
		Msg(e.Message)
}

// Wrap wraps a standard error as a ServerError
func Wrap(err error, errType ErrorType, message string) *ServerError {
	if err == nil {
		return nil
	}
	e := NewError(errType, message, err.Error())
	e.Cause = err
	return e
}

// IsType checks if the error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Type == errType
	}
	return false
}

// GetType returns the error type if it's a ServerError, otherwise returns ErrorTypeInternal
func GetType(err error) ErrorType {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Type
	}
	return ErrorTypeInternal
}
