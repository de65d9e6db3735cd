package eventbus

import (
	"context"
)

// Consumer is the façade returned by Bus.Consumer / Bus.LocalConsumer. A
// handler is attached via Handle after construction, mirroring the teacher
// module's "register then attach handler" two-step and the wider pack's
// builder-style producer/consumer objects (spec §6).
type Consumer struct {
	bus       *Bus
	address   string
	localOnly bool
	context   ExecutionContext
	wildcard  bool

	holder *HandlerHolder
}

// ConsumerOption customises consumer registration.
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	context  ExecutionContext
	wildcard bool
}

// WithExecutionContext binds the consumer's handler to a caller-supplied
// ExecutionContext instead of the bus's shared default pool.
func WithExecutionContext(ctx ExecutionContext) ConsumerOption {
	return func(o *consumerOptions) { o.context = ctx }
}

// WithWildcard registers the consumer's address as a suffix-wildcard pattern
// (e.g. "user.*") matched against every sent/published address instead of
// looked up exactly, grounded on the teacher's matchesTopic suffix-wildcard
// convention (SPEC_FULL.md §C). The core exact-match dispatch path (spec
// §3/§4.1) is unaffected unless this option is used.
func WithWildcard() ConsumerOption {
	return func(o *consumerOptions) { o.wildcard = true }
}

// Handle registers handler and returns the live Registration. Calling
// Handle twice on the same Consumer replaces nothing — it registers a second
// independent holder — so callers should call it exactly once per Consumer,
// matching the teacher's Subscribe/SubscribeAsync one-shot usage.
func (c *Consumer) Handle(handler Handler) (*Registration, error) {
	if handler == nil {
		return nil, ErrHandlerNil
	}

	execCtx := c.context
	if execCtx == nil {
		execCtx = c.bus.defaultContext()
	}

	reg := &Registration{
		ID:        newRegistrationID(),
		Address:   c.address,
		Handler:   handler,
		Context:   execCtx,
		LocalOnly: c.localOnly,
		Wildcard:  c.wildcard,
	}
	if c.wildcard {
		c.holder = c.bus.registry.RegisterWildcard(reg)
	} else {
		c.holder = c.bus.registry.Register(reg)
	}
	c.bus.notifyLifecycle(EventTypeSubscriptionCreated, map[string]any{
		"address": c.address,
		"id":      reg.ID,
	})
	return reg, nil
}

// Reply replies to msg with body, using msg.ReplyAddress. It is a no-op
// (returning nil) if msg carries no reply address, e.g. because it arrived
// via Publish rather than Request.
func (c *Consumer) Reply(ctx context.Context, msg *Message, body any) error {
	if msg.ReplyAddress == "" {
		return nil
	}
	return c.bus.Send(ctx, msg.ReplyAddress, body, nil)
}

// Fail replies to msg with a RECIPIENT_FAILURE, the explicit failure path
// spec §4.5 step 5 describes.
func (c *Consumer) Fail(ctx context.Context, msg *Message, detail string) error {
	if msg.ReplyAddress == "" {
		return nil
	}
	failure := &ReplyError{Kind: ReplyFailureRecipient, Address: msg.Address, Message: detail}
	return c.bus.sendFailure(ctx, msg.ReplyAddress, failure)
}

// Address returns the bound address.
func (c *Consumer) Address() string { return c.address }

// Unregister cancels the consumer's registration. Idempotent (spec P9): a
// Consumer whose Handle was never called, or already unregistered, is a
// no-op.
func (c *Consumer) Unregister() error {
	if c.holder == nil {
		return nil
	}
	c.bus.registry.Unregister(c.holder)
	c.bus.notifyLifecycle(EventTypeSubscriptionRemoved, map[string]any{"address": c.address})
	return nil
}
