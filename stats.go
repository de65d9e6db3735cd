package eventbus

// Stats reports the bus's lifetime delivered/dropped dispatch counts. Counts
// are kept whenever BusConfig.MetricsEnabled is true; an idle bus with
// metrics disabled always reports zeros. Grounded on the teacher module's
// metrics_exporters.go counters, generalised from Prometheus/Datadog-specific
// fields into two plain atomics the bus always owns, with exporters (see
// metrics/prometheus, metrics/datadog) reading them from the outside.
type Stats struct {
	// Delivered counts dispatches that found at least one live handler and
	// were scheduled onto an execution context without error.
	Delivered uint64
	// Dropped counts dispatches that failed before scheduling (no handlers,
	// codec error, or any other error returned by Send/Publish/Request
	// before a delivery was scheduled), plus every delivery task that a
	// default-pool execution context dropped because its buffer was full or
	// it was closed; such a dispatch has already been counted in Delivered.
	// Interceptor suppression is NOT counted here — a suppressed send is
	// neither delivered nor dropped, it is intercepted.
	Dropped uint64
}

// Stats returns a snapshot of the bus's lifetime dispatch counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}
