// Package prometheus exposes a Bus's delivery statistics as a
// prometheus.Collector, the same shape the teacher module offers its own
// consumers: a thin adapter pulling from Bus.Stats() on scrape, with no
// instrumentation added to the dispatch hot path.
package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relaybus/eventbus"
)

// Collector implements prometheus.Collector for a single Bus's delivered and
// dropped dispatch counters.
type Collector struct {
	bus *eventbus.Bus

	deliveredDesc *prometheus.Desc
	droppedDesc   *prometheus.Desc
}

// NewCollector returns a Collector for bus. namespace prefixes the metric
// names; it defaults to "eventbus" if empty.
func NewCollector(bus *eventbus.Bus, namespace string) *Collector {
	if namespace == "" {
		namespace = "eventbus"
	}
	return &Collector{
		bus: bus,
		deliveredDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_delivered_total", namespace),
			"Total messages dispatched to a live handler.",
			nil, nil,
		),
		droppedDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_dropped_total", namespace),
			"Total messages that failed dispatch (no handlers, codec error).",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.deliveredDesc
	ch <- c.droppedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.bus.Stats()
	ch <- prometheus.MustNewConstMetric(c.deliveredDesc, prometheus.CounterValue, float64(stats.Delivered))
	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(stats.Dropped))
}
