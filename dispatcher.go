package eventbus

import (
	"context"
	"log/slog"
)

// dispatchResult reports what happened to an emission at the moment of
// scheduling (spec §4.3 step 4: "signal success on the write-promise after
// scheduling, not after handlers run").
type dispatchResult struct {
	err        error
	suppressed bool
}

// dispatcher delivers one message to one holder (send) or every holder
// (publish) for its address, scheduling each delivery onto the holder's own
// execution context (spec §4.3).
type dispatcher struct {
	registry *HandlerRegistry
	codecs   *CodecRegistry
	outbound *InterceptorChain
	inbound  *InterceptorChain
	logger   *slog.Logger
}

func newDispatcher(registry *HandlerRegistry, codecs *CodecRegistry, outbound, inbound *InterceptorChain, logger *slog.Logger) *dispatcher {
	return &dispatcher{registry: registry, codecs: codecs, outbound: outbound, inbound: inbound, logger: logger}
}

// dispatch runs the outbound interceptor chain, then looks up the address
// and either selects one holder (send) or fans out to every holder
// (publish). Returns NO_HANDLERS as an error when the address has no live
// consumers at lookup or selection time (spec §4.3 step 1-2, design note on
// the TOCTOU race).
func (d *dispatcher) dispatch(ctx context.Context, msg *Message, opts *DeliveryOptions) dispatchResult {
	if !d.outbound.Run(msg, opts) {
		return dispatchResult{suppressed: true}
	}

	seq := d.registry.Lookup(msg.Address)
	if seq.Size() == 0 {
		return dispatchResult{err: &ReplyError{Kind: ReplyFailureNoHandlers, Address: msg.Address}}
	}

	if msg.Send {
		holder := seq.Next()
		if holder == nil {
			// Race: the sequence emptied out between Lookup and Next.
			// Resolved explicitly as NO_HANDLERS rather than silently
			// dropping (spec §9 "Open question").
			return dispatchResult{err: &ReplyError{Kind: ReplyFailureNoHandlers, Address: msg.Address}}
		}
		if opts.localOnly() && !holder.Registration().LocalOnly {
			return dispatchResult{err: &ReplyError{Kind: ReplyFailureNoHandlers, Address: msg.Address}}
		}
		d.scheduleDelivery(holder, msg)
		return dispatchResult{}
	}

	for _, holder := range seq.Holders() {
		if opts.localOnly() && !holder.Registration().LocalOnly {
			continue
		}
		d.scheduleDelivery(holder, msg)
	}
	return dispatchResult{}
}

// scheduleDelivery makes a defensive per-holder copy of msg and submits a
// task to the holder's owning context. The task re-checks the removed flag
// after the context actually gets around to running it, closing the gap
// between "selected at dispatch time" and "executed on the context" (spec
// §4.3 "per-holder scheduling").
func (d *dispatcher) scheduleDelivery(holder *HandlerHolder, msg *Message) {
	delivery := msg.Copy()
	delivery.CodecName = msg.CodecName
	if codec, err := d.codecs.Resolve(msg.CodecName, delivery.Body); err == nil {
		if encoded, encErr := codec.Encode(delivery.Body); encErr == nil {
			if decoded, decErr := codec.Decode(encoded); decErr == nil {
				delivery.Body = decoded
			}
		}
	}

	holder.Context().Run(func() {
		d.deliver(holder, delivery)
	})
}

// deliver runs on the holder's execution context. It re-checks removal,
// runs the inbound interceptor chain, invokes the user handler with panic
// containment, and — for one-shot reply handlers — unregisters the holder
// immediately afterwards (spec §4.3, invariant I6).
func (d *dispatcher) deliver(holder *HandlerHolder, msg *Message) {
	if holder.Removed() {
		return
	}

	if holder.IsReplyHandler() {
		defer d.registry.Unregister(holder)
	}

	if !d.inbound.Run(msg, nil) {
		return
	}

	d.invokeHandler(holder, msg)
}

// invokeHandler calls the user handler, recovering a panic so one failing
// handler never takes down delivery to any other holder in a publish
// fan-out, and never propagates back to the sender (spec §7 propagation
// policy).
func (d *dispatcher) invokeHandler(holder *HandlerHolder, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("eventbus: handler panicked", "address", msg.Address, "recovered", r)
		}
	}()
	holder.Registration().Handler(context.Background(), msg)
}
