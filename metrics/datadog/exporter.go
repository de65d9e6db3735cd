// Package datadog periodically flushes a Bus's delivery statistics to a
// DogStatsD-compatible endpoint, grounded on the teacher module's
// DatadogStatsdExporter (metrics_exporters.go), simplified from its
// per-engine tagging down to this bus's single delivered/dropped pair.
package datadog

import (
	"context"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/relaybus/eventbus"
)

var (
	errNilBus          = fmt.Errorf("eventbus/datadog: nil bus supplied")
	errInvalidInterval = fmt.Errorf("eventbus/datadog: interval must be > 0")
)

// Exporter polls Bus.Stats() on a fixed interval and submits the counters as
// gauges to DogStatsD.
type Exporter struct {
	bus      *eventbus.Bus
	client   *statsd.Client
	interval time.Duration
	tags     []string
}

// NewExporter dials addr (e.g. "127.0.0.1:8125") and returns an Exporter for
// bus. prefix defaults to "eventbus" if empty.
func NewExporter(bus *eventbus.Bus, prefix, addr string, interval time.Duration, tags []string) (*Exporter, error) {
	if bus == nil {
		return nil, errNilBus
	}
	if interval <= 0 {
		return nil, errInvalidInterval
	}
	if prefix == "" {
		prefix = "eventbus"
	}

	client, err := statsd.New(addr, statsd.WithNamespace(prefix+"."))
	if err != nil {
		return nil, fmt.Errorf("eventbus/datadog: creating statsd client: %w", err)
	}

	return &Exporter{bus: bus, client: client, interval: interval, tags: tags}, nil
}

// Run flushes stats every interval until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.flush()
		}
	}
}

func (e *Exporter) flush() {
	stats := e.bus.Stats()
	_ = e.client.Gauge("delivered_total", float64(stats.Delivered), e.tags, 1)
	_ = e.client.Gauge("dropped_total", float64(stats.Dropped), e.tags, 1)
}

// Close closes the underlying statsd client.
func (e *Exporter) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	if err := e.client.Close(); err != nil {
		return fmt.Errorf("eventbus/datadog: closing statsd client: %w", err)
	}
	return nil
}
