package eventbus

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybus/eventbus/internal/busmock"
)

func newTestDispatcher() *dispatcher {
	return newDispatcher(NewHandlerRegistry(), NewCodecRegistry(), NewInterceptorChain(), NewInterceptorChain(), slog.Default())
}

// registerSync registers a holder bound to a SyncExecutionContext, so
// dispatch's scheduled delivery runs inline on the calling goroutine instead
// of racing a real loop goroutine.
func registerSync(t *testing.T, d *dispatcher, address string, localOnly bool, handler Handler) *HandlerHolder {
	t.Helper()
	return d.registry.Register(&Registration{
		ID:        newRegistrationID(),
		Address:   address,
		Handler:   handler,
		Context:   busmock.SyncExecutionContext{},
		LocalOnly: localOnly,
	})
}

func noHandlersErr(t *testing.T, err error) *ReplyError {
	t.Helper()
	var re *ReplyError
	require.True(t, asReplyError(err, &re))
	return re
}

func TestDispatchLocalOnlyMessageSkipsNonLocalSendHolder(t *testing.T) {
	d := newTestDispatcher()

	var delivered bool
	registerSync(t, d, "addr", false, func(ctx context.Context, msg *Message) { delivered = true })

	result := d.dispatch(context.Background(), &Message{Address: "addr", Send: true}, &DeliveryOptions{LocalOnly: true})
	assert.Equal(t, ReplyFailureNoHandlers, noHandlersErr(t, result.err).Kind)
	assert.False(t, delivered)
}

func TestDispatchLocalOnlyMessageReachesLocalOnlyHolder(t *testing.T) {
	d := newTestDispatcher()

	var delivered bool
	registerSync(t, d, "addr", true, func(ctx context.Context, msg *Message) { delivered = true })

	result := d.dispatch(context.Background(), &Message{Address: "addr", Send: true}, &DeliveryOptions{LocalOnly: true})
	require.Nil(t, result.err)
	assert.True(t, delivered)
}

func TestDispatchOrdinaryPublishReachesBothLocalAndNonLocalHolders(t *testing.T) {
	d := newTestDispatcher()

	var nonLocalRan, localRan bool
	registerSync(t, d, "addr", false, func(ctx context.Context, msg *Message) { nonLocalRan = true })
	registerSync(t, d, "addr", true, func(ctx context.Context, msg *Message) { localRan = true })

	result := d.dispatch(context.Background(), &Message{Address: "addr", Send: false}, nil)
	require.Nil(t, result.err)
	assert.True(t, nonLocalRan)
	assert.True(t, localRan)
}

func TestDispatchPublishFiltersNonLocalHoldersWhenLocalOnly(t *testing.T) {
	d := newTestDispatcher()

	var nonLocalRan, localRan bool
	registerSync(t, d, "addr", false, func(ctx context.Context, msg *Message) { nonLocalRan = true })
	registerSync(t, d, "addr", true, func(ctx context.Context, msg *Message) { localRan = true })

	result := d.dispatch(context.Background(), &Message{Address: "addr", Send: false}, &DeliveryOptions{LocalOnly: true})
	require.Nil(t, result.err)
	assert.False(t, nonLocalRan)
	assert.True(t, localRan)
}

func TestDispatchSendWithNoHandlersReturnsNoHandlersError(t *testing.T) {
	d := newTestDispatcher()

	result := d.dispatch(context.Background(), &Message{Address: "missing", Send: true}, nil)
	assert.Equal(t, ReplyFailureNoHandlers, noHandlersErr(t, result.err).Kind)
}

func TestDispatchOutboundInterceptorSuppressionSkipsRegistryLookup(t *testing.T) {
	d := newTestDispatcher()
	d.outbound.Add(func(dc *DeliveryContext) bool { return false })

	var ran bool
	registerSync(t, d, "addr", false, func(ctx context.Context, msg *Message) { ran = true })

	result := d.dispatch(context.Background(), &Message{Address: "addr", Send: true}, nil)
	assert.True(t, result.suppressed)
	assert.Nil(t, result.err)
	assert.False(t, ran)
}

func TestDeliverSkipsAlreadyRemovedHolder(t *testing.T) {
	d := newTestDispatcher()

	var ran bool
	holder := registerSync(t, d, "addr", false, func(ctx context.Context, msg *Message) { ran = true })
	d.registry.Unregister(holder)

	d.deliver(holder, &Message{Address: "addr"})
	assert.False(t, ran)
}

func TestInvokeHandlerRecoversPanic(t *testing.T) {
	d := newTestDispatcher()
	holder := registerSync(t, d, "addr", false, func(ctx context.Context, msg *Message) { panic("boom") })

	assert.NotPanics(t, func() {
		d.invokeHandler(holder, &Message{Address: "addr"})
	})
}
