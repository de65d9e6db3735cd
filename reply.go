package eventbus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// replySequence is the process-wide monotonic counter backing synthetic
// reply addresses (spec I4). An atomic uint64 is sufficient since the
// addresses only need to be unique within this process's lifetime.
var replySequence atomic.Uint64

// defaultReplyAddressPrefix is used unless BusConfig.ReplyAddressPrefix
// overrides it (spec §6: "__reply.<monotonic-decimal>").
const defaultReplyAddressPrefix = "__reply."

func nextReplyAddress(prefix string) string {
	if prefix == "" {
		prefix = defaultReplyAddressPrefix
	}
	n := replySequence.Add(1)
	return prefix + strconv.FormatUint(n, 10)
}

// ReplyFuture is resolved exactly once, either with the first reply message
// or with a failure (no-handlers, timeout, recipient failure, or other
// error) — spec invariant I6.
type ReplyFuture struct {
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	message *Message
	err     error
}

func newReplyFuture() *ReplyFuture {
	return &ReplyFuture{done: make(chan struct{})}
}

// succeed resolves the future with msg. Only the first call has any effect.
func (f *ReplyFuture) succeed(msg *Message) {
	f.once.Do(func() {
		f.mu.Lock()
		f.message = msg
		f.mu.Unlock()
		close(f.done)
	})
}

// fail resolves the future with err. Only the first call has any effect.
func (f *ReplyFuture) fail(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx is cancelled, whichever comes
// first. A context cancellation before resolution does not itself resolve
// the future — it is equivalent to the caller giving up on a still-pending
// request (spec §5 "Cancellation/timeout": cancelling is the caller's
// business, not the bus's).
func (f *ReplyFuture) Wait(ctx context.Context) (*Message, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.message, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// replyCorrelator implements request/reply on top of ordinary sends plus a
// generated throwaway address (spec §4.5). One correlator instance exists
// per outstanding request.
type replyCorrelator struct {
	bus      *Bus
	address  string
	origin   string
	future   *ReplyFuture
	holder   *HandlerHolder
	timer    *time.Timer
	resolved atomic.Bool
}

// newRequest registers the one-shot reply handler, arms the timeout, and
// returns the correlator; its address field is the reply address to stamp
// onto the outbound message.
func newRequest(bus *Bus, originAddress string, timeout time.Duration) *replyCorrelator {
	c := &replyCorrelator{
		bus:     bus,
		origin:  originAddress,
		address: nextReplyAddress(bus.config.ReplyAddressPrefix),
		future:  newReplyFuture(),
	}

	reg := &Registration{
		ID:           newRegistrationID(),
		Address:      c.address,
		Context:      inlineContext{},
		LocalOnly:    true,
		ReplyHandler: true,
		Handler:      c.onDelivery,
	}
	c.holder = bus.registry.Register(reg)

	c.timer = time.AfterFunc(timeout, c.onTimeout)
	return c
}

// onDelivery is invoked by the dispatcher for every message landing on the
// reply address — by construction there is at most one, since the holder is
// a reply handler and the dispatcher unregisters it right after this call
// returns (spec §4.3 "if the holder is a reply handler, unregister it after
// invocation").
func (c *replyCorrelator) onDelivery(_ context.Context, msg *Message) {
	c.stopTimer()
	if !c.resolved.CompareAndSwap(false, true) {
		return
	}
	if msg.replyFailure != nil {
		c.future.fail(msg.replyFailure)
		return
	}
	c.future.succeed(msg)
}

func (c *replyCorrelator) onTimeout() {
	if !c.resolved.CompareAndSwap(false, true) {
		return
	}
	c.bus.registry.Unregister(c.holder)
	c.bus.logger.Debug("eventbus: request timed out waiting for reply", "address", c.origin, "reply_address", c.address)
	c.bus.notifyLifecycle(EventTypeReplyTimeout, map[string]any{"address": c.origin, "reply_address": c.address})
	c.future.fail(&ReplyError{
		Kind:    ReplyFailureTimeout,
		Address: c.origin,
		Message: fmt.Sprintf("no reply on %s within the configured timeout", c.address),
	})
}

// failImmediately is called by Bus.Request when building or dispatching the
// outbound message failed (NO_HANDLERS, or another error such as a codec
// failure) before the request ever reached a responder (spec §4.5 step 6).
func (c *replyCorrelator) failImmediately(kind ReplyFailureKind, detail string) {
	c.stopTimer()
	if !c.resolved.CompareAndSwap(false, true) {
		return
	}
	c.bus.registry.Unregister(c.holder)
	c.future.fail(&ReplyError{Kind: kind, Address: c.origin, Message: detail})
}

func (c *replyCorrelator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
}
