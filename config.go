package eventbus

import (
	"fmt"
	"time"
)

// BusConfig configures a Bus. Field tags follow the teacher module's
// EventBusConfig convention (json/yaml for file-based config, env for
// environment-variable feeders, validate for structural constraints).
type BusConfig struct {
	// DefaultSendTimeout bounds Request calls that don't set
	// DeliveryOptions.SendTimeout explicitly.
	DefaultSendTimeout time.Duration `json:"defaultSendTimeout" yaml:"defaultSendTimeout" env:"DEFAULT_SEND_TIMEOUT" validate:"min=1"`

	// DefaultBufferSize is the task queue depth of every lane in the bus's
	// shared default execution-context pool.
	DefaultBufferSize int `json:"defaultBufferSize" yaml:"defaultBufferSize" env:"DEFAULT_BUFFER_SIZE" validate:"min=1"`

	// WorkerCount is the number of lanes in the shared default execution
	// context pool handed to consumers that don't supply their own context.
	WorkerCount int `json:"workerCount" yaml:"workerCount" env:"WORKER_COUNT" validate:"min=1"`

	// ReplyAddressPrefix overrides the synthetic reply-address prefix
	// (default "__reply.").
	ReplyAddressPrefix string `json:"replyAddressPrefix" yaml:"replyAddressPrefix" env:"REPLY_ADDRESS_PREFIX"`

	// RotateFanoutOrder is carried in the configuration but is not read by
	// the dispatcher: publish fan-out always schedules holders in
	// registration order, whatever its value. Send selection
	// (CyclicSequence.Next) rotates independently of it. Grounded on the
	// teacher's RotateSubscriberOrder knob.
	RotateFanoutOrder bool `json:"rotateFanoutOrder" yaml:"rotateFanoutOrder" env:"ROTATE_FANOUT_ORDER"`

	// MetricsEnabled toggles whether the bus tracks delivered/dropped
	// counters exposed by Stats(). Counting is cheap (two atomics) so
	// disabling it only matters for the strictest hot paths.
	MetricsEnabled bool `json:"metricsEnabled" yaml:"metricsEnabled" env:"METRICS_ENABLED"`
}

// DefaultConfig returns the configuration the teacher module documents as
// its out-of-the-box defaults, adapted to this bus's fields.
func DefaultConfig() *BusConfig {
	return &BusConfig{
		DefaultSendTimeout: 30 * time.Second,
		DefaultBufferSize:  16,
		WorkerCount:        5,
		ReplyAddressPrefix: defaultReplyAddressPrefix,
		RotateFanoutOrder:  false,
		MetricsEnabled:     true,
	}
}

// Validate checks structural constraints, mirroring the teacher's
// config.ValidateConfig() call from Init.
func (c *BusConfig) Validate() error {
	if c.DefaultSendTimeout <= 0 {
		return fmt.Errorf("eventbus: %w: defaultSendTimeout must be positive", ErrIllegalState)
	}
	if c.DefaultBufferSize < 1 {
		return fmt.Errorf("eventbus: %w: defaultBufferSize must be >= 1", ErrIllegalState)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("eventbus: %w: workerCount must be >= 1", ErrIllegalState)
	}
	return nil
}
