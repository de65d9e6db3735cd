// Package nats bridges a local Bus to a NATS server, grounded on the
// quadgatefoundation fluxor project's clusterNATSEventBus
// (eventbus_cluster_nats.go): the same "<prefix>.pub.<address>" /
// "<prefix>.send.<address>" subject mapping, reinterpreted here as an
// optional bridge layered on top of a local Bus rather than an alternate
// clustered EventBus implementation — the core bus stays in-process only.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	natsgo "github.com/nats-io/nats.go"
	"github.com/relaybus/eventbus"
)

// Config holds the bridge's NATS connection settings.
type Config struct {
	URL    string
	Prefix string
	Name   string
}

type wireEnvelope struct {
	Address string              `json:"address"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    json.RawMessage     `json:"body"`
}

// Bridge forwards local sends/publishes to NATS subjects under a common
// prefix and relays NATS messages back onto the local Bus.
type Bridge struct {
	bus    *eventbus.Bus
	conn   *natsgo.Conn
	prefix string
	logger *slog.Logger
}

// New connects to config.URL and returns a Bridge for bus.
func New(bus *eventbus.Bus, config Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	url := config.URL
	if url == "" {
		url = natsgo.DefaultURL
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = "eventbus"
	}

	conn, err := natsgo.Connect(url, func(o *natsgo.Options) error {
		if config.Name != "" {
			o.Name = config.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus/nats: connecting: %w", err)
	}

	return &Bridge{bus: bus, conn: conn, prefix: prefix, logger: logger}, nil
}

func (br *Bridge) publishSubject(address string) string { return br.prefix + ".pub." + address }
func (br *Bridge) sendSubject(address string) string    { return br.prefix + ".send." + address }

// ForwardPublish subscribes address locally and republishes every delivery
// onto the NATS publish subject for that address.
func (br *Bridge) ForwardPublish(address string) error {
	return br.forward(address, br.publishSubject(address))
}

// ForwardSend subscribes address locally and republishes every delivery onto
// the NATS send subject for that address (other bridge instances sharing a
// queue group only deliver it to one remote subscriber, mirroring local
// point-to-point semantics).
func (br *Bridge) ForwardSend(address string) error {
	return br.forward(address, br.sendSubject(address))
}

func (br *Bridge) forward(address, subject string) error {
	consumer, err := br.bus.Consumer(address)
	if err != nil {
		return fmt.Errorf("eventbus/nats: registering forward consumer: %w", err)
	}
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
		br.publish(subject, address, msg)
	})
	if err != nil {
		return fmt.Errorf("eventbus/nats: attaching forward handler: %w", err)
	}
	return nil
}

func (br *Bridge) publish(subject, address string, msg *eventbus.Message) {
	body, err := json.Marshal(msg.Body)
	if err != nil {
		br.logger.Error("eventbus/nats: encoding outbound body", "address", address, "error", err)
		return
	}
	env := wireEnvelope{Address: address, Headers: map[string][]string(msg.Headers), Body: body}
	raw, err := json.Marshal(env)
	if err != nil {
		br.logger.Error("eventbus/nats: encoding envelope", "address", address, "error", err)
		return
	}
	if err := br.conn.Publish(subject, raw); err != nil {
		br.logger.Error("eventbus/nats: publishing", "subject", subject, "error", err)
	}
}

// RelayPublish subscribes to the NATS publish subject for address and
// republishes every message onto the local Bus via Publish.
func (br *Bridge) RelayPublish(address string) (func(), error) {
	return br.relay(br.publishSubject(address))
}

// RelaySend subscribes, with a queue group named after the bridge's prefix,
// to the NATS send subject for address, so only one bridge process among
// many consumes a given remote send, then republishes it locally via Send.
func (br *Bridge) RelaySend(address string) (func(), error) {
	subject := br.sendSubject(address)
	sub, err := br.conn.QueueSubscribe(subject, br.prefix+".workers", func(msg *natsgo.Msg) {
		br.relayOne(context.Background(), msg.Data, true)
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus/nats: queue-subscribing %q: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (br *Bridge) relay(subject string) (func(), error) {
	sub, err := br.conn.Subscribe(subject, func(msg *natsgo.Msg) {
		br.relayOne(context.Background(), msg.Data, false)
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus/nats: subscribing %q: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (br *Bridge) relayOne(ctx context.Context, raw []byte, send bool) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		br.logger.Error("eventbus/nats: decoding envelope", "error", err)
		return
	}
	var body any
	if err := json.Unmarshal(env.Body, &body); err != nil {
		br.logger.Error("eventbus/nats: decoding body", "address", env.Address, "error", err)
		return
	}
	opts := &eventbus.DeliveryOptions{Headers: eventbus.Headers(env.Headers), LocalOnly: true}
	var err error
	if send {
		err = br.bus.Send(ctx, env.Address, body, opts)
	} else {
		err = br.bus.Publish(ctx, env.Address, body, opts)
	}
	if err != nil {
		br.logger.Warn("eventbus/nats: relaying to local bus", "address", env.Address, "error", err)
	}
}

// Close closes the underlying NATS connection without draining it.
func (br *Bridge) Close() error {
	br.conn.Close()
	return nil
}
