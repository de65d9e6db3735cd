// Package kafka bridges a local Bus to Apache Kafka, grounded on the teacher
// module's KafkaEventBus (kafka.go), reinterpreted from an alternate EventBus
// implementation into an optional forward/relay bridge layered on top of a
// local Bus (see transport/redis for the sibling pattern this package
// mirrors).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/relaybus/eventbus"
)

// Config holds the bridge's Kafka connection settings.
type Config struct {
	Brokers []string
	GroupID string
}

type wireEnvelope struct {
	Address string              `json:"address"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    json.RawMessage     `json:"body"`
}

// Bridge forwards local messages to Kafka topics and relays consumed
// records back onto the local Bus.
type Bridge struct {
	bus      *eventbus.Bus
	producer sarama.SyncProducer
	config   Config
	logger   *slog.Logger
}

// New constructs a synchronous Kafka producer for config.Brokers and returns
// a Bridge for bus.
func New(bus *eventbus.Bus, config Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("eventbus/kafka: creating producer: %w", err)
	}
	return &Bridge{bus: bus, producer: producer, config: config, logger: logger}, nil
}

// Forward subscribes address on the local bus and publishes every delivery
// to the identically-named Kafka topic.
func (br *Bridge) Forward(address string) error {
	consumer, err := br.bus.Consumer(address)
	if err != nil {
		return fmt.Errorf("eventbus/kafka: registering forward consumer: %w", err)
	}
	_, err = consumer.Handle(func(ctx context.Context, msg *eventbus.Message) {
		br.send(address, msg)
	})
	if err != nil {
		return fmt.Errorf("eventbus/kafka: attaching forward handler: %w", err)
	}
	return nil
}

func (br *Bridge) send(address string, msg *eventbus.Message) {
	body, err := json.Marshal(msg.Body)
	if err != nil {
		br.logger.Error("eventbus/kafka: encoding outbound body", "address", address, "error", err)
		return
	}
	env := wireEnvelope{Address: address, Headers: map[string][]string(msg.Headers), Body: body}
	raw, err := json.Marshal(env)
	if err != nil {
		br.logger.Error("eventbus/kafka: encoding envelope", "address", address, "error", err)
		return
	}
	_, _, err = br.producer.SendMessage(&sarama.ProducerMessage{
		Topic: address,
		Value: sarama.ByteEncoder(raw),
	})
	if err != nil {
		br.logger.Error("eventbus/kafka: producing message", "address", address, "error", err)
	}
}

// Relay runs a consumer group against topics and republishes every consumed
// record onto the local Bus at the record's own topic name, until ctx is
// cancelled.
func (br *Bridge) Relay(ctx context.Context, topics []string) error {
	group, err := sarama.NewConsumerGroup(br.config.Brokers, br.config.GroupID, sarama.NewConfig())
	if err != nil {
		return fmt.Errorf("eventbus/kafka: creating consumer group: %w", err)
	}

	go func() {
		defer group.Close()
		handler := &relayHandler{bridge: br}
		for {
			if ctx.Err() != nil {
				return
			}
			if err := group.Consume(ctx, topics, handler); err != nil {
				br.logger.Error("eventbus/kafka: consume loop error", "error", err)
			}
		}
	}()
	return nil
}

type relayHandler struct {
	bridge *Bridge
}

func (relayHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (relayHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *relayHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case record, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.bridge.relayOne(session.Context(), record.Value)
			session.MarkMessage(record, "")
		}
	}
}

func (br *Bridge) relayOne(ctx context.Context, raw []byte) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		br.logger.Error("eventbus/kafka: decoding envelope", "error", err)
		return
	}
	var body any
	if err := json.Unmarshal(env.Body, &body); err != nil {
		br.logger.Error("eventbus/kafka: decoding body", "address", env.Address, "error", err)
		return
	}
	opts := &eventbus.DeliveryOptions{Headers: eventbus.Headers(env.Headers), LocalOnly: true}
	if err := br.bus.Publish(ctx, env.Address, body, opts); err != nil {
		br.logger.Warn("eventbus/kafka: relaying to local bus", "address", env.Address, "error", err)
	}
}

// Close closes the underlying producer.
func (br *Bridge) Close() error {
	if err := br.producer.Close(); err != nil {
		return fmt.Errorf("eventbus/kafka: closing producer: %w", err)
	}
	return nil
}
