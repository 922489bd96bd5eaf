package repair

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func healthyTelemetry(peer string) Telemetry {
	return Telemetry{
		Peer:             peer,
		LatencyMs:        50,
		UptimePct:        99.9,
		VerifySuccessPct: 100,
		BandwidthMbps:    100,
	}
}

func TestEngineScoresHealthyPeerNearCeiling(t *testing.T) {
	e := NewEngine(0.2, DefaultSLOs(), 0.01)
	var last Result
	for i := 0; i < 5; i++ {
		last = e.Observe(healthyTelemetry("peerA"))
	}
	require.Greater(t, last.SmoothedReputation, 90.0)
	require.Equal(t, AnomalyNone, last.Anomaly)
}

func TestEngineDegradesPeerWithPoorUptime(t *testing.T) {
	e := NewEngine(0.3, DefaultSLOs(), 0.01)
	var healthy Result
	for i := 0; i < 5; i++ {
		healthy = e.Observe(healthyTelemetry("peerB"))
	}
	unhealthy := e.Observe(Telemetry{
		Peer:             "peerB",
		LatencyMs:        50,
		UptimePct:        40,
		VerifySuccessPct: 100,
		BandwidthMbps:    100,
	})
	require.Less(t, unhealthy.SmoothedReputation, healthy.SmoothedReputation)
}

func TestEngineVerificationGateSuppressesScoreOnRepeatedFailures(t *testing.T) {
	e := NewEngine(0.3, DefaultSLOs(), 0.01)
	t0 := healthyTelemetry("peerC")
	t0.VerifySuccessPct = 0
	result := e.Observe(t0)
	require.Less(t, result.CompositeScore, 10.0)
}

func TestEngineActionEscalatesToEvictAfterRepeatedCriticalAnomalies(t *testing.T) {
	e := NewEngine(0.4, DefaultSLOs(), 0.01)
	for i := 0; i < 6; i++ {
		e.Observe(healthyTelemetry("peerD"))
	}
	var last Result
	for i := 0; i < 6; i++ {
		last = e.Observe(Telemetry{
			Peer:             "peerD",
			LatencyMs:        5000,
			UptimePct:        5,
			VerifySuccessPct: 0,
			BandwidthMbps:    0,
		})
	}
	require.Contains(t, []Action{ActionEvict, ActionQuarantine, ActionProactiveEvict}, last.Action)
}

func TestEngineConfidenceGrowsWithObservationCount(t *testing.T) {
	e := NewEngine(0.2, DefaultSLOs(), 0.01)
	first := e.Observe(healthyTelemetry("peerE"))
	var later Result
	for i := 0; i < minObservations+5; i++ {
		later = e.Observe(healthyTelemetry("peerE"))
	}
	require.GreaterOrEqual(t, later.Confidence, first.Confidence)
}

func TestEnginePerPeerStateIsIndependent(t *testing.T) {
	e := NewEngine(0.2, DefaultSLOs(), 0.01)
	for i := 0; i < 5; i++ {
		e.Observe(healthyTelemetry("peerF"))
	}
	fresh := e.Observe(Telemetry{Peer: "peerG", LatencyMs: 5000, UptimePct: 10, VerifySuccessPct: 0, BandwidthMbps: 0})
	require.Less(t, fresh.SmoothedReputation, 50.0)

	healthyAgain := e.Observe(healthyTelemetry("peerF"))
	require.Greater(t, healthyAgain.SmoothedReputation, 50.0)
}

func TestScoreLatencyIsMonotonicNonIncreasing(t *testing.T) {
	slo := 200.0
	prev := scoreLatency(0, slo)
	for _, v := range []float64{50, 200, 400, 800, 2000} {
		cur := scoreLatency(v, slo)
		require.LessOrEqual(t, cur, prev+1e-9)
		prev = cur
	}
}

func TestScoreLatencyBreakpointsMatchHalfSLOAndSLO(t *testing.T) {
	slo := 200.0
	require.Equal(t, 1.0, scoreLatency(100, slo))
	require.InDelta(t, 0.7, scoreLatency(200, slo), 1e-9)
	require.Less(t, scoreLatency(200, slo), 1.0)
	require.Greater(t, scoreLatency(150, slo), 0.7)
	require.Less(t, scoreLatency(150, slo), 1.0)
	require.Less(t, scoreLatency(400, slo), 0.7)
}

func TestScoreUptimeFallsOffBelow95(t *testing.T) {
	require.Equal(t, 1.0, scoreUptime(99.9, 99.5))
	require.Less(t, scoreUptime(90, 99.5), scoreUptime(96, 99.5))
	require.Less(t, scoreUptime(50, 99.5), scoreUptime(90, 99.5))
}

func TestScoreVerifyIsCubic(t *testing.T) {
	require.InDelta(t, 0.125, scoreVerify(50), 1e-9)
	require.InDelta(t, 1.0, scoreVerify(100), 1e-9)
	require.InDelta(t, 0.0, scoreVerify(0), 1e-9)
}

func TestScoreRegionalQoSPenalizesQuadratically(t *testing.T) {
	require.InDelta(t, 1.0, scoreRegionalQoS(0), 1e-9)
	require.InDelta(t, 0.75, scoreRegionalQoS(0.5), 1e-9)
	require.InDelta(t, 0.0, scoreRegionalQoS(1), 1e-9)
}
