package nats_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/require"

	"github.com/relaybus/eventbus"
	bridge "github.com/relaybus/eventbus/transport/nats"
)

// runTestNATSServer starts an embedded, ephemeral-port NATS server for the
// duration of the test, grounded on the quadgatefoundation fluxor project's
// own NATS test helper (eventbus_cluster_nats_test.go).
func runTestNATSServer(t *testing.T) *natssrv.Server {
	t.Helper()
	s, err := natssrv.NewServer(&natssrv.Options{Port: -1})
	require.NoError(t, err)
	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestRelayPublishDeliversNATSMessagesToLocalBus(t *testing.T) {
	server := runTestNATSServer(t)

	bus := eventbus.NewBus(eventbus.DefaultConfig())
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Close(context.Background())

	var received atomic.Int64
	consumer, err := bus.LocalConsumer("remote.orders")
	require.NoError(t, err)
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
		received.Add(1)
	})
	require.NoError(t, err)

	br, err := bridge.New(bus, bridge.Config{URL: server.ClientURL(), Prefix: "test"}, nil)
	require.NoError(t, err)
	defer br.Close()

	stop, err := br.RelayPublish("remote.orders")
	require.NoError(t, err)
	defer stop()

	raw, err := natsgo.Connect(server.ClientURL())
	require.NoError(t, err)
	defer raw.Close()

	body, _ := json.Marshal(42)
	env, _ := json.Marshal(map[string]any{"address": "remote.orders", "body": json.RawMessage(body)})
	require.NoError(t, raw.Publish("test.pub.remote.orders", env))

	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestForwardPublishSendsLocalDeliveriesOverNATS(t *testing.T) {
	server := runTestNATSServer(t)

	bus := eventbus.NewBus(eventbus.DefaultConfig())
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Close(context.Background())

	br, err := bridge.New(bus, bridge.Config{URL: server.ClientURL(), Prefix: "test"}, nil)
	require.NoError(t, err)
	defer br.Close()

	require.NoError(t, br.ForwardPublish("local.orders"))

	raw, err := natsgo.Connect(server.ClientURL())
	require.NoError(t, err)
	defer raw.Close()

	var received atomic.Int64
	_, err = raw.Subscribe("test.pub.local.orders", func(msg *natsgo.Msg) {
		received.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "local.orders", "hello", nil))

	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 10*time.Millisecond)
}
