// Package kinesis bridges a local Bus to a single AWS Kinesis stream,
// grounded on the teacher module's KinesisEventBus (kinesis.go),
// reinterpreted from an alternate EventBus implementation into an optional
// forward bridge layered on top of a local Bus. Unlike Redis/Kafka, Kinesis
// has no native topic concept within a stream, so this bridge carries the
// local address inside the record's partition key and envelope, and Relay
// polls shards directly rather than running a consumer-group abstraction.
package kinesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/relaybus/eventbus"
)

// Config holds the bridge's Kinesis stream settings.
type Config struct {
	StreamName string
	PollEvery  time.Duration
}

type wireEnvelope struct {
	Address string              `json:"address"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    json.RawMessage     `json:"body"`
}

// Bridge forwards local messages as Kinesis records and relays records
// polled from every shard of the configured stream back onto the local Bus.
type Bridge struct {
	bus    *eventbus.Bus
	client *kinesis.Client
	config Config
	logger *slog.Logger
}

// New returns a Bridge for bus using an already-configured Kinesis client
// (construct it with aws-sdk-go-v2/config.LoadDefaultConfig in the caller, so
// this package never dictates credential resolution).
func New(bus *eventbus.Bus, client *kinesis.Client, config Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PollEvery <= 0 {
		config.PollEvery = time.Second
	}
	return &Bridge{bus: bus, client: client, config: config, logger: logger}
}

// Forward subscribes address on the local bus and puts every delivery onto
// the configured stream, partitioned by address.
func (br *Bridge) Forward(ctx context.Context, address string) error {
	consumer, err := br.bus.Consumer(address)
	if err != nil {
		return fmt.Errorf("eventbus/kinesis: registering forward consumer: %w", err)
	}
	_, err = consumer.Handle(func(handlerCtx context.Context, msg *eventbus.Message) {
		br.put(handlerCtx, address, msg)
	})
	if err != nil {
		return fmt.Errorf("eventbus/kinesis: attaching forward handler: %w", err)
	}
	return nil
}

func (br *Bridge) put(ctx context.Context, address string, msg *eventbus.Message) {
	body, err := json.Marshal(msg.Body)
	if err != nil {
		br.logger.Error("eventbus/kinesis: encoding outbound body", "address", address, "error", err)
		return
	}
	env := wireEnvelope{Address: address, Headers: map[string][]string(msg.Headers), Body: body}
	raw, err := json.Marshal(env)
	if err != nil {
		br.logger.Error("eventbus/kinesis: encoding envelope", "address", address, "error", err)
		return
	}
	_, err = br.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(br.config.StreamName),
		PartitionKey: aws.String(address),
		Data:         raw,
	})
	if err != nil {
		br.logger.Error("eventbus/kinesis: putting record", "address", address, "error", err)
	}
}

// Relay polls every shard of the configured stream and republishes each
// record onto the local Bus, until ctx is cancelled.
func (br *Bridge) Relay(ctx context.Context) error {
	shards, err := br.client.ListShards(ctx, &kinesis.ListShardsInput{
		StreamName: aws.String(br.config.StreamName),
	})
	if err != nil {
		return fmt.Errorf("eventbus/kinesis: listing shards: %w", err)
	}

	for _, shard := range shards.Shards {
		go br.pollShard(ctx, shard)
	}
	return nil
}

func (br *Bridge) pollShard(ctx context.Context, shard types.Shard) {
	iterOut, err := br.client.GetShardIterator(ctx, &kinesis.GetShardIteratorInput{
		StreamName:        aws.String(br.config.StreamName),
		ShardId:           shard.ShardId,
		ShardIteratorType: types.ShardIteratorTypeLatest,
	})
	if err != nil {
		br.logger.Error("eventbus/kinesis: getting shard iterator", "shard", aws.ToString(shard.ShardId), "error", err)
		return
	}

	iterator := iterOut.ShardIterator
	ticker := time.NewTicker(br.config.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if iterator == nil {
				return
			}
			out, err := br.client.GetRecords(ctx, &kinesis.GetRecordsInput{ShardIterator: iterator})
			if err != nil {
				br.logger.Error("eventbus/kinesis: getting records", "shard", aws.ToString(shard.ShardId), "error", err)
				return
			}
			for _, record := range out.Records {
				br.relayOne(ctx, record.Data)
			}
			iterator = out.NextShardIterator
		}
	}
}

func (br *Bridge) relayOne(ctx context.Context, raw []byte) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		br.logger.Error("eventbus/kinesis: decoding envelope", "error", err)
		return
	}
	var body any
	if err := json.Unmarshal(env.Body, &body); err != nil {
		br.logger.Error("eventbus/kinesis: decoding body", "address", env.Address, "error", err)
		return
	}
	opts := &eventbus.DeliveryOptions{Headers: eventbus.Headers(env.Headers), LocalOnly: true}
	if err := br.bus.Publish(ctx, env.Address, body, opts); err != nil {
		br.logger.Warn("eventbus/kinesis: relaying to local bus", "address", env.Address, "error", err)
	}
}
