package eventbus

import (
	"context"
	"time"
)

// HealthStatus classifies the outcome of a Bus.HealthCheck, mirroring the
// status strings the teacher module's health.go reports.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusDegraded HealthStatus = "degraded"
)

// HealthReport is the result of Bus.HealthCheck: enough detail for an
// operator dashboard or a liveness probe to decide whether to restart the
// process, grounded on the teacher module's module-level HealthCheck result
// shape.
type HealthReport struct {
	Status    HealthStatus
	Message   string
	Addresses int
	CheckedAt time.Time
	RoundTrip time.Duration
}

// healthCheckAddress is a private address on which only HealthCheck's own
// throwaway consumer registers; it exists purely so HealthCheck can prove the
// dispatch path is alive end to end without depending on any user-registered
// consumer.
const healthCheckAddress = "__health.ping"

// HealthCheck round-trips a synthetic request through the bus's own dispatch
// path to confirm Start has been called and the default execution-context
// pool is still servicing tasks. It registers and tears down a throwaway
// consumer on every call, so it is not meant to be called on a hot path.
func (b *Bus) HealthCheck(ctx context.Context) HealthReport {
	started := time.Now()

	if !b.started.Load() {
		return HealthReport{Status: HealthStatusDown, Message: "bus not started", CheckedAt: started}
	}
	if b.closed.Load() {
		return HealthReport{Status: HealthStatusDown, Message: "bus closed", CheckedAt: started}
	}

	consumer, err := b.LocalConsumer(healthCheckAddress)
	if err != nil {
		return HealthReport{Status: HealthStatusDegraded, Message: err.Error(), CheckedAt: started}
	}
	defer consumer.Unregister()

	if _, err := consumer.Handle(func(ctx context.Context, msg *Message) {
		_ = consumer.Reply(ctx, msg, "pong")
	}); err != nil {
		return HealthReport{Status: HealthStatusDegraded, Message: err.Error(), CheckedAt: started}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	opts := &DeliveryOptions{LocalOnly: true}
	if _, err := b.Request(checkCtx, healthCheckAddress, "ping", opts); err != nil {
		return HealthReport{
			Status:    HealthStatusDegraded,
			Message:   err.Error(),
			Addresses: len(b.Addresses()),
			CheckedAt: started,
			RoundTrip: time.Since(started),
		}
	}

	return HealthReport{
		Status:    HealthStatusUp,
		Addresses: len(b.Addresses()),
		CheckedAt: started,
		RoundTrip: time.Since(started),
	}
}
