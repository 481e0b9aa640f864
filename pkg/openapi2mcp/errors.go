package openapi2mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phuslu/log"
)

// ErrorType classifies failures raised while loading a spec or serving a call.
type ErrorType string

const (
	// ErrorTypeSpecFormat: the document is neither OpenAPI 3.x nor Swagger 2.0.
	ErrorTypeSpecFormat ErrorType = "spec_format"
	// ErrorTypeUnknownTool: full mode invocation of a tool that does not exist.
	ErrorTypeUnknownTool ErrorType = "unknown_tool"
	// ErrorTypeEndpointNotFound: call_endpoint named no known endpoint.
	ErrorTypeEndpointNotFound ErrorType = "endpoint_not_found"
	// ErrorTypeAPICall: the outbound HTTP call failed or returned something unusable.
	ErrorTypeAPICall ErrorType = "api_call"
	// ErrorTypeInvalidArguments: the tool arguments could not be used.
	ErrorTypeInvalidArguments ErrorType = "invalid_arguments"
	ErrorTypeInternal         ErrorType = "internal"
)

// Error is a structured error carrying the failure class and, when served
// from a tool call, the request id of that call.
type Error struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Details     string    `json:"details,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Cause       error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage is the text shown to the model in an error-flagged tool result.
func (e *Error) UserMessage() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if len(e.Suggestions) > 0 {
		b.WriteString("\nDid you mean: ")
		b.WriteString(strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}

// NewError creates a new Error.
func NewError(errType ErrorType, message string, details string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Details: details,
	}
}

// NewErrorWithContext creates a new Error tagged with the request id stored
// in ctx, if any.
func NewErrorWithContext(ctx context.Context, errType ErrorType, message string, details string) *Error {
	err := NewError(errType, message, details)
	err.RequestID = RequestIDFromContext(ctx)
	return err
}

// Wrap wraps err as an Error. It returns nil when err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	e := NewError(errType, message, err.Error())
	e.Cause = err
	return e
}

// WrapWithContext is Wrap plus the request id from ctx.
func WrapWithContext(ctx context.Context, err error, errType ErrorType, message string) *Error {
	e := Wrap(err, errType, message)
	if e != nil {
		e.RequestID = RequestIDFromContext(ctx)
	}
	return e
}

// IsType reports whether any error in err's chain is an *Error of errType.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}
	return false
}

// GetType returns the type of the first *Error in err's chain, or
// ErrorTypeInternal.
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// LogError writes e to logger at a level matching its type. Caller mistakes
// are logged at warn, everything else at error.
func (e *Error) LogError(logger *log.Logger) {
	entry := logger.Error()
	switch e.Type {
	case ErrorTypeUnknownTool, ErrorTypeEndpointNotFound, ErrorTypeInvalidArguments:
		entry = logger.Warn()
	}
	entry.Str("type", string(e.Type)).
		Str("request_id", e.RequestID).
		Str("details", e.Details).
		Msg(e.Message)
}

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
