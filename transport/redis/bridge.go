// Package redis bridges a local Bus to Redis pub/sub, so a message sent or
// published locally can also reach other processes, and messages published
// on a Redis channel by another process can be re-published onto the local
// Bus. It is grounded on the teacher module's RedisEventBus (redis.go),
// reinterpreted from an alternate EventBus implementation into an optional
// bridge layered on top of a local Bus — the spec's core dispatch engine
// stays local-only and in-process (see the package's generalised role
// documented in SPEC_FULL.md).
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"github.com/relaybus/eventbus"
)

// Config holds the bridge's Redis connection settings.
type Config struct {
	Addr     string
	DB       int
	Username string
	Password string
	PoolSize int
}

// wireEnvelope is the JSON shape published onto a Redis channel.
type wireEnvelope struct {
	Address string            `json:"address"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body"`
}

// Bridge forwards outbound local messages to a Redis channel and relays
// inbound channel messages back onto the local Bus via Publish.
type Bridge struct {
	bus    *eventbus.Bus
	client *goredis.Client
	logger *slog.Logger

	mu     sync.Mutex
	cancel map[string]context.CancelFunc
}

// New dials Redis per config and returns a Bridge for bus. bus must already
// be started.
func New(bus *eventbus.Bus, config Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     config.Addr,
		DB:       config.DB,
		Username: config.Username,
		Password: config.Password,
		PoolSize: config.PoolSize,
	})
	return &Bridge{bus: bus, client: client, logger: logger, cancel: make(map[string]context.CancelFunc)}
}

// Forward subscribes the local address to the bus and republishes every
// delivery onto the Redis channel of the same name, so remote processes see
// local traffic (the local handler sees it too — Forward never removes the
// message from local dispatch).
func (br *Bridge) Forward(address string) error {
	consumer, err := br.bus.Consumer(address)
	if err != nil {
		return fmt.Errorf("eventbus/redis: registering forward consumer: %w", err)
	}
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
		br.publish(ctx, address, msg)
	})
	if err != nil {
		return fmt.Errorf("eventbus/redis: attaching forward handler: %w", err)
	}
	return nil
}

func (br *Bridge) publish(ctx context.Context, address string, msg *eventbus.Message) {
	body, err := json.Marshal(msg.Body)
	if err != nil {
		br.logger.Error("eventbus/redis: encoding outbound body", "address", address, "error", err)
		return
	}
	env := wireEnvelope{Address: address, Headers: map[string][]string(msg.Headers), Body: body}
	raw, err := json.Marshal(env)
	if err != nil {
		br.logger.Error("eventbus/redis: encoding envelope", "address", address, "error", err)
		return
	}
	if err := br.client.Publish(ctx, address, raw).Err(); err != nil {
		br.logger.Error("eventbus/redis: publishing to channel", "address", address, "error", err)
	}
}

// Relay subscribes to the Redis channel named address and republishes every
// message received onto the local Bus via Publish, until ctx is cancelled.
func (br *Bridge) Relay(ctx context.Context, address string) error {
	runCtx, cancel := context.WithCancel(ctx)
	br.mu.Lock()
	br.cancel[address] = cancel
	br.mu.Unlock()

	sub := br.client.Subscribe(runCtx, address)
	ch := sub.Channel()

	go func() {
		defer sub.Close()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				br.relayOne(runCtx, msg.Payload)
			}
		}
	}()
	return nil
}

func (br *Bridge) relayOne(ctx context.Context, payload string) {
	var env wireEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		br.logger.Error("eventbus/redis: decoding envelope", "error", err)
		return
	}
	var body any
	if err := json.Unmarshal(env.Body, &body); err != nil {
		br.logger.Error("eventbus/redis: decoding body", "address", env.Address, "error", err)
		return
	}
	opts := &eventbus.DeliveryOptions{Headers: eventbus.Headers(env.Headers), LocalOnly: true}
	if err := br.bus.Publish(ctx, env.Address, body, opts); err != nil {
		br.logger.Warn("eventbus/redis: relaying to local bus", "address", env.Address, "error", err)
	}
}

// StopRelay cancels a running Relay for address, if any.
func (br *Bridge) StopRelay(address string) {
	br.mu.Lock()
	cancel, ok := br.cancel[address]
	delete(br.cancel, address)
	br.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close closes the underlying Redis client and stops every active relay.
func (br *Bridge) Close() error {
	br.mu.Lock()
	for _, cancel := range br.cancel {
		cancel()
	}
	br.cancel = map[string]context.CancelFunc{}
	br.mu.Unlock()

	if err := br.client.Close(); err != nil {
		return fmt.Errorf("eventbus/redis: closing client: %w", err)
	}
	return nil
}
