package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Bus is the public façade: the operations a producer or consumer actually
// calls (send/publish/request, consumer registration, codec and interceptor
// registration, lifecycle) — spec §4.6.
//
// Bus wires together a HandlerRegistry, a dispatcher, a CodecRegistry, two
// InterceptorChains, and a shared default ExecutionContext pool. It has no
// goroutines of its own beyond those pools; every handler invocation happens
// on the execution context its registration was bound to (spec §5).
type Bus struct {
	config *BusConfig
	logger *slog.Logger

	registry   *HandlerRegistry
	codecs     *CodecRegistry
	outbound   *InterceptorChain
	inbound    *InterceptorChain
	dispatcher *dispatcher

	pool     *loopPool
	observer Observer

	startedOnce sync.Once
	started     atomic.Bool
	closed      atomic.Bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus constructs a Bus from config. The bus is not usable until Start is
// called (spec §4.6).
func NewBus(config *BusConfig, opts ...BusOption) *Bus {
	if config == nil {
		config = DefaultConfig()
	}

	b := &Bus{
		config:   config,
		logger:   slog.Default(),
		registry: NewHandlerRegistry(),
		codecs:   NewCodecRegistry(),
		outbound: NewInterceptorChain(),
		inbound:  NewInterceptorChain(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.dispatcher = newDispatcher(b.registry, b.codecs, b.outbound, b.inbound, b.logger)
	return b
}

// BusOption customises a Bus at construction time.
type BusOption func(*Bus)

// WithLogger overrides the bus's *slog.Logger (default slog.Default()).
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver attaches an Observer that receives the bus's own lifecycle
// events (spec §1 metrics-SPI collaborator).
func WithObserver(observer Observer) BusOption {
	return func(b *Bus) { b.observer = observer }
}

// Start transitions the bus from not-started to started exactly once;
// calling Start again returns ErrIllegalState (spec §4.6).
func (b *Bus) Start(ctx context.Context) error {
	if b.closed.Load() {
		return fmt.Errorf("eventbus: start after close: %w", ErrIllegalState)
	}
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("eventbus: already started: %w", ErrIllegalState)
	}

	if err := b.config.Validate(); err != nil {
		b.started.Store(false)
		return err
	}

	b.pool = newLoopPool(b.config.WorkerCount, b.config.DefaultBufferSize, b.logger, b.onContextDrop)
	b.notifyLifecycle(EventTypeBusStarted, map[string]any{"workers": b.config.WorkerCount})
	b.logger.Info("eventbus started", "workers", b.config.WorkerCount)
	return nil
}

// Close unregisters every holder across every address, then stops the
// default execution-context pool. Idempotent: closing an already-closed or
// never-started bus completes immediately (spec §4.6).
func (b *Bus) Close(ctx context.Context) error {
	if !b.started.Load() {
		b.closed.Store(true)
		return nil
	}
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, holder := range b.registry.AllHolders() {
		b.registry.Unregister(holder)
	}

	if b.pool != nil {
		done := make(chan struct{})
		go func() {
			b.pool.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return ErrShutdownTimeout
		}
	}

	b.notifyLifecycle(EventTypeBusClosed, nil)
	b.logger.Info("eventbus closed")
	return nil
}

func (b *Bus) checkStarted() error {
	if !b.started.Load() || b.closed.Load() {
		return fmt.Errorf("eventbus: not started: %w", ErrIllegalState)
	}
	return nil
}

func (b *Bus) defaultContext() ExecutionContext {
	return b.pool.pick()
}

// createMessage resolves the codec for body (name override, then per-type
// default, then the system fallback) and assembles the outbound Message
// (spec §4.6 createMessage).
func (b *Bus) createMessage(send bool, address string, body any, opts *DeliveryOptions) (*Message, error) {
	if address == "" {
		return nil, ErrAddressEmpty
	}

	codec, err := b.codecs.Resolve(opts.codecName(), body)
	if err != nil {
		return nil, err
	}

	encoded, err := codec.Encode(body)
	if err != nil {
		return nil, fmt.Errorf("eventbus: encoding body for %q: %w", address, err)
	}
	decoded, err := codec.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("eventbus: decoding body for %q: %w", address, err)
	}

	headers := opts.headers()
	if headers == nil {
		headers = Headers{}
	}

	return &Message{
		Address:   address,
		Headers:   headers,
		Body:      decoded,
		CodecName: codec.Name(),
		Send:      send,
	}, nil
}

// Send emits body to address, point-to-point: exactly one registered
// handler is chosen via round-robin and invoked (spec §4.3, I3).
func (b *Bus) Send(ctx context.Context, address string, body any, opts *DeliveryOptions) error {
	if err := b.checkStarted(); err != nil {
		return err
	}
	msg, err := b.createMessage(true, address, body, opts)
	if err != nil {
		b.recordDispatch(dispatchResult{err: err})
		return err
	}
	result := b.dispatcher.dispatch(ctx, msg, opts)
	b.recordDispatch(result)
	return result.err
}

// Publish emits body to address, fanning out to every registered handler
// (spec §4.3, P3).
func (b *Bus) Publish(ctx context.Context, address string, body any, opts *DeliveryOptions) error {
	if err := b.checkStarted(); err != nil {
		return err
	}
	msg, err := b.createMessage(false, address, body, opts)
	if err != nil {
		b.recordDispatch(dispatchResult{err: err})
		return err
	}
	result := b.dispatcher.dispatch(ctx, msg, opts)
	b.recordDispatch(result)
	return result.err
}

// Request emits body to address and waits for a single reply or failure,
// built on Send plus a generated throwaway reply address (spec §4.5).
//
// Request blocks the caller (unlike Send/Publish) because that is the whole
// point of the operation; ctx governs how long the caller is willing to
// wait on top of the request's own SendTimeout — whichever fires first wins.
func (b *Bus) Request(ctx context.Context, address string, body any, opts *DeliveryOptions) (*Message, error) {
	if err := b.checkStarted(); err != nil {
		return nil, err
	}

	timeout := opts.sendTimeout(b.config.DefaultSendTimeout)
	correlator := newRequest(b, address, timeout)

	msg, err := b.createMessage(true, address, body, opts)
	if err != nil {
		b.recordDispatch(dispatchResult{err: err})
		correlator.failImmediately(ReplyFailureError, err.Error())
		return nil, err
	}
	msg.ReplyAddress = correlator.address

	result := b.dispatcher.dispatch(ctx, msg, opts)
	b.recordDispatch(result)
	if result.err != nil {
		var replyErr *ReplyError
		kind := ReplyFailureError
		if asReplyError(result.err, &replyErr) {
			kind = replyErr.Kind
		}
		correlator.failImmediately(kind, result.err.Error())
	}

	return correlator.future.Wait(ctx)
}

// sendFailure is used internally by Consumer.Fail to deliver a
// RECIPIENT_FAILURE onto a reply address without going through the ordinary
// codec-resolution path (the body here is a sentinel, never user data).
func (b *Bus) sendFailure(ctx context.Context, replyAddress string, failure *ReplyError) error {
	msg := newReplyFailureMessage(replyAddress, failure)
	msg.Send = true
	result := b.dispatcher.dispatch(ctx, msg, nil)
	b.recordDispatch(result)
	return result.err
}

// recordDispatch updates Stats() (gated by BusConfig.MetricsEnabled) and logs
// dropped dispatches at Debug (ungated — ambient logging, not metrics,
// SPEC_FULL.md §A.1 "dropped deliveries ... at Debug level").
func (b *Bus) recordDispatch(result dispatchResult) {
	if result.suppressed {
		return
	}
	if result.err != nil {
		b.logDrop(result.err)
		if b.config.MetricsEnabled {
			b.dropped.Add(1)
		}
		return
	}
	if b.config.MetricsEnabled {
		b.delivered.Add(1)
	}
}

// onContextDrop is handed to every lane of the default loopPool (see Start)
// so a full-buffer or closed-context drop inside loopContext.Run — which
// happens after dispatch already returned success — still shows up in
// Stats().Dropped, not just in the Debug log line loopContext itself emits.
func (b *Bus) onContextDrop() {
	if b.config.MetricsEnabled {
		b.dropped.Add(1)
	}
}

// logDrop logs a dropped dispatch and, for the no-handlers case specifically,
// emits EventTypeNoHandlers to the bus's observer.
func (b *Bus) logDrop(err error) {
	var re *ReplyError
	if asReplyError(err, &re) && re.Kind == ReplyFailureNoHandlers {
		b.logger.Debug("eventbus: dropped message, no handlers", "address", re.Address)
		b.notifyLifecycle(EventTypeNoHandlers, map[string]any{"address": re.Address})
		return
	}
	b.logger.Debug("eventbus: dropped message", "error", err)
}

func asReplyError(err error, out **ReplyError) bool {
	re, ok := err.(*ReplyError)
	if !ok {
		return false
	}
	*out = re
	return true
}

// Consumer registers a new consumer façade on address. Call Handle on the
// result to attach the handler (spec §6). Pass WithWildcard() to register
// address as a suffix-wildcard pattern (e.g. "user.*") instead of an exact
// address (SPEC_FULL.md §C).
func (b *Bus) Consumer(address string, opts ...ConsumerOption) (*Consumer, error) {
	return b.newConsumer(address, false, opts)
}

// LocalConsumer registers a consumer eligible to receive deliveries marked
// DeliveryOptions.LocalOnly, in addition to ordinary ones — the local
// analogue of the spec's "forces local-only" note on localConsumer. A
// transport bridge's own forward-side consumer should use Consumer instead,
// so a message relayed in from the remote side (LocalOnly-marked, to break
// the echo loop) never reaches the forward path that would re-publish it.
func (b *Bus) LocalConsumer(address string, opts ...ConsumerOption) (*Consumer, error) {
	return b.newConsumer(address, true, opts)
}

func (b *Bus) newConsumer(address string, localOnly bool, opts []ConsumerOption) (*Consumer, error) {
	if err := b.checkStarted(); err != nil {
		return nil, err
	}
	if address == "" {
		return nil, ErrAddressEmpty
	}

	co := &consumerOptions{}
	for _, opt := range opts {
		opt(co)
	}

	return &Consumer{bus: b, address: address, localOnly: localOnly, context: co.context, wildcard: co.wildcard}, nil
}

// Sender returns a producer façade bound to address for repeated Send/Request
// calls (spec §6).
func (b *Bus) Sender(address string, opts *DeliveryOptions) *Sender {
	return &Sender{bus: b, address: address, opts: opts}
}

// Publisher returns a producer façade bound to address for repeated Publish
// calls (spec §6).
func (b *Bus) Publisher(address string, opts *DeliveryOptions) *Publisher {
	return &Publisher{bus: b, address: address, opts: opts}
}

// RegisterCodec adds or replaces a named codec.
func (b *Bus) RegisterCodec(codec Codec) error { return b.codecs.Register(codec) }

// UnregisterCodec removes a named codec by name.
func (b *Bus) UnregisterCodec(name string) { b.codecs.Unregister(name) }

// RegisterDefaultCodec binds codec as the default for sample's Go type.
func (b *Bus) RegisterDefaultCodec(sample any, codec Codec) error {
	return b.codecs.RegisterDefault(sample, codec)
}

// UnregisterDefaultCodec removes the default codec binding for sample's type.
func (b *Bus) UnregisterDefaultCodec(sample any) { b.codecs.UnregisterDefault(sample) }

// AddOutboundInterceptor appends fn to the outbound chain, run on the
// sender's side before an address lookup happens (spec §4.4).
func (b *Bus) AddOutboundInterceptor(fn Interceptor) *InterceptorToken {
	return b.outbound.Add(fn)
}

// RemoveOutboundInterceptor removes a previously added outbound interceptor.
func (b *Bus) RemoveOutboundInterceptor(tok *InterceptorToken) { b.outbound.Remove(tok) }

// AddInboundInterceptor appends fn to the inbound chain, run on the
// receiver's side after per-holder scheduling (spec §4.4).
func (b *Bus) AddInboundInterceptor(fn Interceptor) *InterceptorToken {
	return b.inbound.Add(fn)
}

// RemoveInboundInterceptor removes a previously added inbound interceptor.
func (b *Bus) RemoveInboundInterceptor(tok *InterceptorToken) { b.inbound.Remove(tok) }

// Addresses returns every address that currently has at least one consumer.
func (b *Bus) Addresses() []string { return b.registry.Addresses() }

// SubscriberCount returns the number of live consumers on address.
func (b *Bus) SubscriberCount(address string) int { return b.registry.SubscriberCount(address) }
