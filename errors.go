package eventbus

import (
	"errors"
	"fmt"
)

// Bus lifecycle and input-validation errors. These are surfaced synchronously
// at the call site, never through a reply future.
var (
	ErrIllegalState    = errors.New("eventbus: illegal state")
	ErrAddressEmpty    = errors.New("eventbus: address must not be empty")
	ErrHandlerNil      = errors.New("eventbus: handler must not be nil")
	ErrCodecNotFound   = errors.New("eventbus: codec not found")
	ErrCodecNil        = errors.New("eventbus: codec must not be nil")
	ErrShutdownTimeout = errors.New("eventbus: shutdown timed out waiting for execution contexts to stop")
)

// ReplyFailureKind classifies why a request/reply future failed to resolve
// with a successful reply. It is the Go analogue of the reply-failure kinds
// exposed by the wire protocol (see spec §6/§7).
type ReplyFailureKind int

const (
	// ReplyFailureUnknown is the zero value and should never be observed.
	ReplyFailureUnknown ReplyFailureKind = iota
	// ReplyFailureNoHandlers means the request address had no live consumers.
	ReplyFailureNoHandlers
	// ReplyFailureTimeout means no reply arrived within the request's SendTimeout.
	ReplyFailureTimeout
	// ReplyFailureRecipient means the responder explicitly replied with a failure.
	ReplyFailureRecipient
	// ReplyFailureError covers any other bus-internal failure (codec error,
	// scheduling failure).
	ReplyFailureError
)

// String renders the kind using the wire names from spec §6.
func (k ReplyFailureKind) String() string {
	switch k {
	case ReplyFailureNoHandlers:
		return "NO_HANDLERS"
	case ReplyFailureTimeout:
		return "TIMEOUT"
	case ReplyFailureRecipient:
		return "RECIPIENT_FAILURE"
	case ReplyFailureError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ReplyError is returned by a ReplyFuture that failed to resolve with a
// successful reply. Callers distinguish the cause with errors.Is against the
// package-level sentinels below, or by inspecting Kind directly.
type ReplyError struct {
	Kind    ReplyFailureKind
	Address string
	Message string
}

func (e *ReplyError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("eventbus: request to %q failed: %s (%s)", e.Address, e.Kind, e.Message)
	}
	return fmt.Sprintf("eventbus: request to %q failed: %s", e.Address, e.Kind)
}

// Unwrap lets errors.Is(err, ErrNoHandlers) etc. work against a *ReplyError.
func (e *ReplyError) Unwrap() error {
	switch e.Kind {
	case ReplyFailureNoHandlers:
		return ErrNoHandlers
	case ReplyFailureTimeout:
		return ErrReplyTimeout
	case ReplyFailureRecipient:
		return ErrRecipientFailure
	default:
		return ErrReplyFailed
	}
}

// Sentinel errors matching the four reply-failure kinds, for errors.Is checks
// against a future's error without needing the concrete *ReplyError type.
var (
	ErrNoHandlers       = errors.New("eventbus: no handlers registered for address")
	ErrReplyTimeout     = errors.New("eventbus: request timed out waiting for reply")
	ErrRecipientFailure = errors.New("eventbus: recipient replied with failure")
	ErrReplyFailed      = errors.New("eventbus: request failed")
)
