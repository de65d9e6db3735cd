package eventbus

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler processes one delivered message. The dispatcher passes
// context.Background() as ctx: it carries neither per-message cancellation
// nor cancellation tied to the execution context's lifetime.
type Handler func(ctx context.Context, msg *Message)

// Registration is what a consumer façade owns: the address it is bound to,
// the user handler, and the execution context the handler runs on.
// Unregistering a Registration is idempotent (spec §4.1).
type Registration struct {
	ID        string
	Address   string
	Handler   Handler
	Context   ExecutionContext
	LocalOnly bool
	// ReplyHandler marks a one-shot registration created internally by
	// Request; such registrations are removed by the dispatcher immediately
	// after their single invocation (spec §4.5/I6).
	ReplyHandler bool
	// Wildcard marks a registration whose Address is a suffix-wildcard
	// pattern (e.g. "user.*") matched against every sent/published address
	// rather than looked up exactly (opt-in Consumer mode, SPEC_FULL.md §C).
	Wildcard bool
}

// HandlerHolder binds a Registration to its place inside exactly one
// CyclicSequence. The removed flag is the single authoritative
// "should-not-deliver" signal (spec design note: "the flag is authoritative,
// snapshot removal is the optimization").
type HandlerHolder struct {
	registration *Registration
	removed      atomic.Bool
}

func newHandlerHolder(reg *Registration) *HandlerHolder {
	return &HandlerHolder{registration: reg}
}

// Registration returns the bound registration.
func (h *HandlerHolder) Registration() *Registration {
	return h.registration
}

// Context returns the execution context the holder's handler runs on.
func (h *HandlerHolder) Context() ExecutionContext {
	return h.registration.Context
}

// IsReplyHandler reports whether this holder is the internal one-shot
// registration created by Request.
func (h *HandlerHolder) IsReplyHandler() bool {
	return h.registration.ReplyHandler
}

// Removed reports whether this holder has already been marked for removal.
// Reachability from the registry is defined to be exactly !Removed() (spec
// invariant I2).
func (h *HandlerHolder) Removed() bool {
	return h.removed.Load()
}

// markRemoved is a single-winner CAS: only the first caller observes true,
// every later caller observes false and must treat the unregister as already
// having happened (spec §4.1 "single-winner operation"; invariant I6 relies
// on this for at-most-once reply delivery).
func (h *HandlerHolder) markRemoved() (wonRace bool) {
	return h.removed.CompareAndSwap(false, true)
}

// newRegistrationID returns a process-unique registration identifier.
// Grounded on the teacher's uuid.New().String() subscription IDs; unlike the
// reply address (a monotonic counter, see reply.go) a registration ID has no
// wire significance and a UUID is the idiomatic choice here.
func newRegistrationID() string {
	return uuid.NewString()
}
