// Package syncerr defines the error taxonomy shared by the patch engine,
// sources and connectors.
package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes errors.
type Code string

const (
	// ErrCodePathNotFound indicates a patch path did not resolve.
	ErrCodePathNotFound Code = "PATH_NOT_FOUND"

	// ErrCodeTestFailed indicates a test operation inside a batch did not match.
	ErrCodeTestFailed Code = "TEST_FAILED"

	// ErrCodeBuilderNotRegistered indicates a builder callback was passed to a
	// source that has no transform builder configured.
	ErrCodeBuilderNotRegistered Code = "BUILDER_NOT_REGISTERED"

	// ErrCodeNoResolution indicates no listener produced a result for a resolve call.
	ErrCodeNoResolution Code = "NO_RESOLUTION"

	// ErrCodeTransformNotAllowed indicates a transform exceeded a configured cap.
	ErrCodeTransformNotAllowed Code = "TRANSFORM_NOT_ALLOWED"

	// ErrCodeQueryNotAllowed indicates a query exceeded a configured cap.
	ErrCodeQueryNotAllowed Code = "QUERY_NOT_ALLOWED"

	// ErrCodeReentrantTransform indicates a source was asked to transform
	// from inside its own queue turn, which would wait on itself.
	ErrCodeReentrantTransform Code = "REENTRANT_TRANSFORM"

	// ErrCodeNotSupported indicates the source backend lacks a capability.
	ErrCodeNotSupported Code = "NOT_SUPPORTED"

	// ErrCodeNetwork and ErrCodeClient wrap adapter-surfaced failures.
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeClient  Code = "CLIENT_ERROR"
)

// Error is the structured error returned across package boundaries.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Path is the document path involved, if any, as a JSON pointer.
	Path string

	// Details contains additional context.
	Details map[string]string

	// Err is the wrapped cause (adapter errors).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsPathNotFound returns true if err is a path addressing failure.
func IsPathNotFound(err error) bool {
	return CodeOf(err) == ErrCodePathNotFound
}

// IsBuilderNotRegistered returns true if err reports a missing builder.
func IsBuilderNotRegistered(err error) bool {
	return CodeOf(err) == ErrCodeBuilderNotRegistered
}

// IsNoResolution returns true if no listener resolved a request.
func IsNoResolution(err error) bool {
	return CodeOf(err) == ErrCodeNoResolution
}

// IsNotAllowed returns true for both transform and query cap violations.
func IsNotAllowed(err error) bool {
	c := CodeOf(err)
	return c == ErrCodeTransformNotAllowed || c == ErrCodeQueryNotAllowed
}

// IsReentrant returns true if err reports a self-waiting transform.
func IsReentrant(err error) bool {
	return CodeOf(err) == ErrCodeReentrantTransform
}

// PathNotFound creates an addressing error for the given pointer.
func PathNotFound(pointer string) *Error {
	return &Error{
		Code:    ErrCodePathNotFound,
		Message: "path could not be resolved",
		Path:    pointer,
	}
}

// TestFailed creates an error for a test operation that did not match.
func TestFailed(pointer string) *Error {
	return &Error{
		Code:    ErrCodeTestFailed,
		Message: "test operation did not match",
		Path:    pointer,
	}
}

// BuilderNotRegistered creates a misconfiguration error.
func BuilderNotRegistered() *Error {
	return &Error{
		Code:    ErrCodeBuilderNotRegistered,
		Message: "transform builder callback given but no builder is registered",
	}
}

// NoResolution creates an error for an exhausted resolve call.
func NoResolution(event string) *Error {
	return &Error{
		Code:    ErrCodeNoResolution,
		Message: fmt.Sprintf("no listener resolved %s", event),
		Details: map[string]string{"event": event},
	}
}

// TransformNotAllowed creates a cap violation error for transforms.
func TransformNotAllowed(count, limit int) *Error {
	return &Error{
		Code:    ErrCodeTransformNotAllowed,
		Message: fmt.Sprintf("transform has %d operations, limit is %d", count, limit),
		Details: map[string]string{
			"count": fmt.Sprintf("%d", count),
			"limit": fmt.Sprintf("%d", limit),
		},
	}
}

// QueryNotAllowed creates a cap violation error for queries.
func QueryNotAllowed(count, limit int) *Error {
	return &Error{
		Code:    ErrCodeQueryNotAllowed,
		Message: fmt.Sprintf("query has %d paths, limit is %d", count, limit),
		Details: map[string]string{
			"count": fmt.Sprintf("%d", count),
			"limit": fmt.Sprintf("%d", limit),
		},
	}
}

// ReentrantTransform creates an error for a source transforming inside its own turn.
func ReentrantTransform(source string) *Error {
	return &Error{
		Code:    ErrCodeReentrantTransform,
		Message: fmt.Sprintf("source %q cannot wait on a transform from inside its own queue turn", source),
		Details: map[string]string{"source": source},
	}
}

// NotSupported creates an error for a missing backend capability.
func NotSupported(source, capability string) *Error {
	return &Error{
		Code:    ErrCodeNotSupported,
		Message: fmt.Sprintf("source %q does not support %s", source, capability),
		Details: map[string]string{"source": source, "capability": capability},
	}
}

// Network wraps a transport failure surfaced by an adapter.
// The original error remains reachable through errors.Is/As.
func Network(err error) *Error {
	return &Error{Code: ErrCodeNetwork, Message: "adapter network failure", Err: err}
}

// Client wraps a request rejected by a remote peer.
func Client(err error) *Error {
	return &Error{Code: ErrCodeClient, Message: "adapter client failure", Err: err}
}
