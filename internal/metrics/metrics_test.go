package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordStoreOutcomeIncrementsCorrectLabel(t *testing.T) {
	r := New()
	r.RecordStoreOutcome(true)
	r.RecordStoreOutcome(false)
	r.RecordStoreTimeout()

	require.Equal(t, float64(1), testutil.ToFloat64(r.storeOutcomes.WithLabelValues(OutcomeSucceeded)))
	require.Equal(t, float64(1), testutil.ToFloat64(r.storeOutcomes.WithLabelValues(OutcomeFailed)))
	require.Equal(t, float64(1), testutil.ToFloat64(r.storeOutcomes.WithLabelValues(OutcomeTimedOut)))
}

func TestSetConnectedPeersUpdatesGauge(t *testing.T) {
	r := New()
	r.SetConnectedPeers(7)
	require.Equal(t, float64(7), testutil.ToFloat64(r.connectedPeers))
}

func TestNilRegistryRecordingMethodsNoop(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() {
		r.RecordStoreOutcome(true)
		r.RecordRetrieveOutcome(false)
		r.RecordAuditTimeout()
		r.RecordDeleteOutcome(true)
		r.SetConnectedPeers(3)
		r.ObserveRoundTrip("store", 0.1)
	})
}

func TestHandlerServesMetricsEndpoint(t *testing.T) {
	r := New()
	r.RecordAuditOutcome(true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "driftmesh_audit_outcomes_total")
}

func TestNilRegistryHandlerReturnsNotFound(t *testing.T) {
	var r *Registry
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(w, req)
	require.Equal(t, 404, w.Code)
}
