// Package metrics provides the coordination engine's in-process
// instrumentation: a private prometheus.Registry gathered on demand by the
// Coordinator status operation (§6), never bound to an HTTP scrape
// endpoint — external push/pull transport is out of scope (§1 Non-goals).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps a private prometheus.Registry plus the specific
// counters/gauges the coordination engine exposes through Coordinator.Status.
type Registry struct {
	reg *prometheus.Registry

	EventsAppended   prometheus.Counter
	AppendErrors     prometheus.Counter
	ActiveLocks      prometheus.Gauge
	PendingMessages  prometheus.Gauge
	SchedulerTickDur prometheus.Histogram
	BlockerEscalated prometheus.Counter
	CheckpointsTaken prometheus.Counter
	StreamsCompacted prometheus.Counter
}

// New builds a Registry with every metric registered against a fresh,
// package-private prometheus.Registry (never the global DefaultRegisterer,
// so multiple Core instances in the same process — e.g. in tests — never
// collide on metric name registration).
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		EventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettools_events_appended_total",
			Help: "Total events appended to the event store.",
		}),
		AppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettools_append_errors_total",
			Help: "Total Append calls that failed.",
		}),
		ActiveLocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleettools_active_locks",
			Help: "Current count of active CTK reservations.",
		}),
		PendingMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleettools_pending_messages",
			Help: "Current count of undelivered mailbox messages.",
		}),
		SchedulerTickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleettools_scheduler_tick_seconds",
			Help:    "Duration of one dispatch scheduler tick.",
			Buckets: prometheus.DefBuckets,
		}),
		BlockerEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettools_blockers_escalated_total",
			Help: "Total blocked sorties escalated after timeout.",
		}),
		CheckpointsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettools_checkpoints_total",
			Help: "Total checkpoints written.",
		}),
		StreamsCompacted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettools_streams_compacted_total",
			Help: "Total streams compacted into snapshots.",
		}),
	}
	reg.MustRegister(r.EventsAppended, r.AppendErrors, r.ActiveLocks, r.PendingMessages,
		r.SchedulerTickDur, r.BlockerEscalated, r.CheckpointsTaken, r.StreamsCompacted)
	return r
}

// Snapshot gathers every registered metric family into a flat map of
// name->value, the shape Coordinator.Status embeds in its data payload (§6)
// without exposing a prometheus wire format.
func (r *Registry) Snapshot() (map[string]float64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[fam.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[fam.GetName()] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[fam.GetName()+"_count"] = float64(m.GetHistogram().GetSampleCount())
				out[fam.GetName()+"_sum"] = m.GetHistogram().GetSampleSum()
			}
		}
	}
	return out, nil
}
