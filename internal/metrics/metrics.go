// Package metrics exposes the gateway and storage-node Prometheus
// instrumentation behind one Registry type, grounded on the teacher's own
// core/system_health_logging.go: a prometheus.Registry built and registered
// once in a constructor, typed counter/gauge/histogram fields rather than
// ad-hoc label lookups at every call site, and a promhttp handler for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric this module emits. The zero value is not
// usable; construct with New. A nil *Registry is safe to call methods on —
// every recording method no-ops when r is nil, so components that don't
// wire metrics in (unit tests, a minimal embedding) never need to guard
// every call site with its own nil check.
type Registry struct {
	registry *prometheus.Registry

	storeOutcomes    *prometheus.CounterVec
	retrieveOutcomes *prometheus.CounterVec
	auditOutcomes    *prometheus.CounterVec
	deleteOutcomes   *prometheus.CounterVec

	connectedPeers prometheus.Gauge

	roundTripLatency *prometheus.HistogramVec
}

// New builds and registers the full metric set.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		storeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftmesh_store_outcomes_total",
			Help: "Outcomes of outbound shard store dispatches, labeled by result.",
		}, []string{"outcome"}),
		retrieveOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftmesh_retrieve_outcomes_total",
			Help: "Outcomes of outbound shard retrieve dispatches, labeled by result.",
		}, []string{"outcome"}),
		auditOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftmesh_audit_outcomes_total",
			Help: "Outcomes of outbound proof-of-possession challenges, labeled by result.",
		}, []string{"outcome"}),
		deleteOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftmesh_delete_outcomes_total",
			Help: "Outcomes of outbound shard delete dispatches, labeled by result.",
		}, []string{"outcome"}),
		connectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "driftmesh_connected_peers",
			Help: "Number of libp2p peers currently connected to the multiplexer.",
		}),
		roundTripLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "driftmesh_multiplexer_round_trip_seconds",
			Help:    "Round-trip latency of a multiplexer dispatch, labeled by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		r.storeOutcomes,
		r.retrieveOutcomes,
		r.auditOutcomes,
		r.deleteOutcomes,
		r.connectedPeers,
		r.roundTripLatency,
	)
	return r
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// SetConnectedPeers records the multiplexer's current peer-table size.
func (r *Registry) SetConnectedPeers(n int) {
	if r == nil {
		return
	}
	r.connectedPeers.Set(float64(n))
}

// ObserveRoundTrip records how long one dispatch of the given operation took.
func (r *Registry) ObserveRoundTrip(operation string, seconds float64) {
	if r == nil {
		return
	}
	r.roundTripLatency.WithLabelValues(operation).Observe(seconds)
}

// Outcome labels shared across every *Outcomes counter.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
)

func (r *Registry) recordStore(outcome string) {
	if r == nil {
		return
	}
	r.storeOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Registry) recordRetrieve(outcome string) {
	if r == nil {
		return
	}
	r.retrieveOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Registry) recordAudit(outcome string) {
	if r == nil {
		return
	}
	r.auditOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Registry) recordDelete(outcome string) {
	if r == nil {
		return
	}
	r.deleteOutcomes.WithLabelValues(outcome).Inc()
}

// RecordStoreOutcome increments the store-outcome counter for a completed
// (non-timeout) dispatch: succeeded when the node returned a verified
// receipt, failed otherwise.
func (r *Registry) RecordStoreOutcome(succeeded bool) {
	if succeeded {
		r.recordStore(OutcomeSucceeded)
	} else {
		r.recordStore(OutcomeFailed)
	}
}

// RecordStoreTimeout increments the store-outcome counter for a dispatch
// that never completed before its deadline.
func (r *Registry) RecordStoreTimeout() { r.recordStore(OutcomeTimedOut) }

// RecordRetrieveOutcome increments the retrieve-outcome counter for a
// completed dispatch.
func (r *Registry) RecordRetrieveOutcome(succeeded bool) {
	if succeeded {
		r.recordRetrieve(OutcomeSucceeded)
	} else {
		r.recordRetrieve(OutcomeFailed)
	}
}

// RecordRetrieveTimeout increments the retrieve-outcome counter for a
// dispatch that never completed before its deadline.
func (r *Registry) RecordRetrieveTimeout() { r.recordRetrieve(OutcomeTimedOut) }

// RecordAuditOutcome increments the audit-outcome counter for a completed
// challenge dispatch.
func (r *Registry) RecordAuditOutcome(succeeded bool) {
	if succeeded {
		r.recordAudit(OutcomeSucceeded)
	} else {
		r.recordAudit(OutcomeFailed)
	}
}

// RecordAuditTimeout increments the audit-outcome counter for a challenge
// that never completed before its deadline.
func (r *Registry) RecordAuditTimeout() { r.recordAudit(OutcomeTimedOut) }

// RecordDeleteOutcome increments the delete-outcome counter for a completed
// dispatch.
func (r *Registry) RecordDeleteOutcome(succeeded bool) {
	if succeeded {
		r.recordDelete(OutcomeSucceeded)
	} else {
		r.recordDelete(OutcomeFailed)
	}
}

// RecordDeleteTimeout increments the delete-outcome counter for a dispatch
// that never completed before its deadline.
func (r *Registry) RecordDeleteTimeout() { r.recordDelete(OutcomeTimedOut) }
