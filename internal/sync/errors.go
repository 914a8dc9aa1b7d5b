package sync

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownMessage is returned when an operation names a message id that is
// not in the local log.
var ErrUnknownMessage = errors.New("unknown message id")

// ValidationError rejects malformed content locally, before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// RateLimitError rejects a send that exceeds the local sliding window. The
// caller can wait RetryAfter and try again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Millisecond))
}

// ModerationError rejects a send because the sender is banned or chat is
// disabled. Recoverable only by an external state change.
type ModerationError struct {
	Reason string
}

func (e *ModerationError) Error() string { return e.Reason }

// PermissionError rejects a moderation action that violates a hierarchy rule.
// Rule is the specific denial from the moderation policy table.
type PermissionError struct {
	Rule error
}

func (e *PermissionError) Error() string { return e.Rule.Error() }

func (e *PermissionError) Unwrap() error { return e.Rule }

// TransportError wraps a failed transport call. Connection-level failures
// never surface this way; they are visible only through the connection state.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
