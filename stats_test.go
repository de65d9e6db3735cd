package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybus/eventbus"
)

func TestStatsTracksDeliveredAndDropped(t *testing.T) {
	bus := newStartedBus(t)

	consumer, err := bus.Consumer("stats.addr")
	require.NoError(t, err)
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {})
	require.NoError(t, err)

	require.NoError(t, bus.Send(context.Background(), "stats.addr", 1, nil))
	_ = bus.Send(context.Background(), "stats.missing", 1, nil)
	time.Sleep(50 * time.Millisecond)

	stats := bus.Stats()
	assert.GreaterOrEqual(t, stats.Delivered, uint64(1))
	assert.GreaterOrEqual(t, stats.Dropped, uint64(1))
}

func TestStatsCountsCodecResolutionFailureAsDropped(t *testing.T) {
	bus := newStartedBus(t)

	err := bus.Send(context.Background(), "codec.addr", 1, &eventbus.DeliveryOptions{CodecName: "does-not-exist"})
	require.Error(t, err)

	assert.GreaterOrEqual(t, bus.Stats().Dropped, uint64(1))
}

func TestStatsStayZeroWhenMetricsDisabled(t *testing.T) {
	config := eventbus.DefaultConfig()
	config.MetricsEnabled = false
	bus := eventbus.NewBus(config)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Close(context.Background())

	consumer, err := bus.Consumer("stats.addr")
	require.NoError(t, err)
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {})
	require.NoError(t, err)

	require.NoError(t, bus.Send(context.Background(), "stats.addr", 1, nil))
	time.Sleep(50 * time.Millisecond)

	stats := bus.Stats()
	assert.Zero(t, stats.Delivered)
	assert.Zero(t, stats.Dropped)
}
