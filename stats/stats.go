// Package stats implements the named counters spec.md §7 requires for
// transport errors, back-pressure, and bounded-backlog rollback accounting,
// backed by github.com/prometheus/client_golang the way the teacher's
// observability package backs its module/RPC counters.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is a lazily-registered set of Prometheus counters, grouped the
// way spec.md §7 names them: a category (tcp_silent_connection_drop,
// tcp_io_timeout_drop, bounded_backlog.rollback, ...) plus a free-form
// "detail" label (direction, reason) rather than one struct field per
// named counter — the taxonomy in §7 is open-ended, so a single CounterVec
// keyed by (category, detail) gives every named stat a home without
// hand-declaring dozens of near-identical fields.
type Registry struct {
	counts *prometheus.CounterVec
	gauges *prometheus.GaugeVec

	mu         sync.Mutex
	registered bool
}

// New constructs a Registry. Call MustRegister once per process before use.
func New() *Registry {
	return &Registry{
		counts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nano",
			Subsystem: "node",
			Name:      "stat_total",
			Help:      "Named event counters for transport, ledger, and backlog accounting.",
		}, []string{"category", "detail"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nano",
			Subsystem: "node",
			Name:      "gauge",
			Help:      "Named instantaneous gauges (queue depths, index sizes).",
		}, []string{"category", "detail"}),
	}
}

// MustRegister registers the underlying collectors with the default
// Prometheus registry. Safe to call once; a second call is a no-op.
func (r *Registry) MustRegister() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		return
	}
	prometheus.MustRegister(r.counts, r.gauges)
	r.registered = true
}

// Inc increments the named counter by one. category matches spec.md §7's
// taxonomy (e.g. "tcp_silent_connection_drop", "bounded_backlog.rollback");
// detail disambiguates direction or reason (e.g. "in", "out", "skipped").
func (r *Registry) Inc(category, detail string) {
	r.counts.WithLabelValues(category, detail).Inc()
}

// Set records the current value of a named gauge.
func (r *Registry) Set(category, detail string, v float64) {
	r.gauges.WithLabelValues(category, detail).Set(v)
}

// Default is the process-wide registry used by components that don't
// receive one explicitly wired (tests construct their own via New).
var Default = New()
