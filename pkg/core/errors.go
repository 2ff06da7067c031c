package core

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for programmatic handling.
type Kind int

const (
	// KindUnknown is the zero value, used when no better class fits.
	KindUnknown Kind = iota

	// KindInvalidScope means the operation carried no tenant scope.
	KindInvalidScope

	// KindInvalidArgument means a caller-supplied value was rejected.
	KindInvalidArgument

	// KindNotFound means the addressed memory does not exist.
	KindNotFound

	// KindProvider means an LLM or embedding provider call failed.
	KindProvider

	// KindBackend means a storage backend call failed.
	KindBackend

	// KindInconsistent means stores disagree about a memory's state.
	KindInconsistent
)

func (k Kind) String() string {
	switch k {
	case KindInvalidScope:
		return "invalid_scope"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindProvider:
		return "provider"
	case KindBackend:
		return "backend"
	case KindInconsistent:
		return "inconsistent"
	default:
		return "unknown"
	}
}

// Sentinel errors returned by the client. Match with errors.Is.
var (
	// ErrNoScope is returned when an operation requires at least one
	// of user ID, agent ID, or run ID and none was provided.
	ErrNoScope = errors.New("at least one of user_id, agent_id, run_id is required")

	// ErrMemoryNotFound is returned when a memory ID does not exist.
	ErrMemoryNotFound = errors.New("memory not found")

	// ErrInvalidLimit is returned when a limit is negative or above
	// the maximum. A zero limit means the default.
	ErrInvalidLimit = errors.New("limit must be between 1 and the configured maximum")

	// ErrEmptyContent is returned when content to store is empty.
	ErrEmptyContent = errors.New("content must not be empty")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed is returned when the client has been closed.
	ErrClosed = errors.New("client is closed")
)

// Error wraps a failure with the operation that produced it and a
// Kind for classification. It unwraps to the underlying error so
// errors.Is works against the sentinels above.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the operation that failed, e.g. "Add" or "Search".
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error for the given operation.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
