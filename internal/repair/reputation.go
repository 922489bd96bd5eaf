// Package repair implements the gateway's degraded-object sweeper and its
// per-peer reputation engine. Grounded on the teacher's
// core/fault_tolerance.go sweeper shape and, for the reputation model's
// exported Score/Update idiom, on the pack's storj-storj reputation/ and
// node_reputation/ test directories.
package repair

import (
	"math"
	"sync"
)

// Telemetry is one observation of a peer's recent behavior, the reputation
// engine's sole input.
type Telemetry struct {
	Peer               string
	LatencyMs          float64
	UptimePct          float64
	VerifySuccessPct   float64
	BandwidthMbps      float64
	ObjectHeatIndex    float64
	RegionalQoSPenalty float64
}

// Action is the engine's recommendation for a peer after one observation.
type Action string

const (
	ActionHold           Action = "hold"
	ActionPromote        Action = "promote"
	ActionProbation      Action = "probation"
	ActionQuarantine     Action = "quarantine"
	ActionProactiveEvict Action = "proactive_evict"
	ActionEvict          Action = "evict"
)

// AnomalyLevel classifies how far a peer's latest metrics sit from its own
// historical baseline.
type AnomalyLevel string

const (
	AnomalyNone     AnomalyLevel = "none"
	AnomalyWarn     AnomalyLevel = "warn"
	AnomalyCritical AnomalyLevel = "critical"
)

// SLOs are the per-metric service-level targets the scorer measures
// against. Spec leaves exact values unspecified ("e.g." language
// throughout); these are the engine's defaults, override via
// Engine.SLOs.
type SLOs struct {
	LatencyMs     float64
	UptimePct     float64
	BandwidthMbps float64
}

// DefaultSLOs returns reasonable defaults: 200ms latency, 99.5% uptime,
// 50Mbps bandwidth.
func DefaultSLOs() SLOs {
	return SLOs{LatencyMs: 200, UptimePct: 99.5, BandwidthMbps: 50}
}

const (
	minObservations  = 10
	heatThreshold    = 50.0 // ObjectHeatIndex sum at which redundancy maxes out
	warnZScore       = 2.5
	criticalZScore   = 3.75
	consecutiveEvict = 3
)

// MinRedundancyMultiplier and MaxRedundancyMultiplier bound
// Result.RedundancyMultiplier. The sweeper's thundering-herd object
// expansion (internal/repair.Sweeper, wired in internal/orchestrator)
// reuses MaxRedundancyMultiplier as the scale-up factor a hot object is
// expanded by, since the multiplier itself is computed per reporting peer
// and has no single well-defined value for an object served by many peers.
const (
	MinRedundancyMultiplier = 1.0
	MaxRedundancyMultiplier = 2.5
)

// Weights for the composite score (latency 25%, uptime 30%, verify 20%,
// bandwidth 15%, regional QoS 10%), per spec §4.8.
const (
	weightLatency   = 0.25
	weightUptime    = 0.30
	weightVerify    = 0.20
	weightBandwidth = 0.15
	weightQoS       = 0.10
)

// Result is everything the engine reports back for one observation.
type Result struct {
	Peer                 string
	CompositeScore       float64 // this observation's raw composite, [0,100]
	SmoothedReputation   float64 // EMA-smoothed composite, [0,100]
	Anomaly              AnomalyLevel
	AnomalyMagnitude     float64
	Trend                string // "improving", "degrading", "flat"
	Velocity             float64
	Action               Action
	ChurnProbability     float64
	PayoutPerGB          float64
	Confidence           float64
	Observations         int
	SLOViolations        int
	RedundancyMultiplier float64
}

// peerModel is one peer's running statistics. alpha is the EMA smoothing
// constant, fixed per engine instance within [0.01, 0.5].
type peerModel struct {
	observations int

	emaComposite float64
	varComposite float64 // EMA of squared deviation from emaComposite

	emaLatency, varLatency       float64
	emaUptime, varUptime         float64
	emaVerify, varVerify         float64
	emaBandwidth, varBandwidth   float64
	emaQoSPenalty, varQoSPenalty float64

	velocity     float64
	acceleration float64

	consecutiveCritical int
	consecutiveAnomaly  int
	sloViolations       int
	heatAccumulator     float64
}

// Engine holds per-peer state and the smoothing constant used to update it.
// Safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	peers    map[string]*peerModel
	alpha    float64
	slos     SLOs
	baseRate float64 // payout base rate per GB at reputation 100, action "hold"
}

// NewEngine constructs a reputation Engine. alpha is clamped to [0.01, 0.5]
// per spec. baseRatePerGB is the payout rate a perfectly-scored, held peer
// earns.
func NewEngine(alpha float64, slos SLOs, baseRatePerGB float64) *Engine {
	if alpha < 0.01 {
		alpha = 0.01
	}
	if alpha > 0.5 {
		alpha = 0.5
	}
	return &Engine{peers: make(map[string]*peerModel), alpha: alpha, slos: slos, baseRate: baseRatePerGB}
}

// Observe folds in one telemetry row and returns the engine's full verdict
// for that peer.
func (e *Engine) Observe(t Telemetry) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.peers[t.Peer]
	if !ok {
		m = &peerModel{}
		e.peers[t.Peer] = m
	}

	latencyScore := scoreLatency(t.LatencyMs, e.slos.LatencyMs)
	uptimeScore := scoreUptime(t.UptimePct, e.slos.UptimePct)
	verifyScore := scoreVerify(t.VerifySuccessPct)
	bandwidthScore := scoreBandwidth(t.BandwidthMbps, e.slos.BandwidthMbps)
	qosScore := scoreRegionalQoS(t.RegionalQoSPenalty)

	raw := weightLatency*latencyScore + weightUptime*uptimeScore + weightVerify*verifyScore +
		weightBandwidth*bandwidthScore + weightQoS*qosScore
	gate := math.Min(t.VerifySuccessPct/100*1.2, 1)
	composite := clamp(raw*gate*100, 0, 100)

	prevEMA := m.emaComposite
	first := m.observations == 0
	m.emaComposite, m.varComposite = ema(m.emaComposite, m.varComposite, composite, e.alpha, first)
	m.emaLatency, m.varLatency = ema(m.emaLatency, m.varLatency, t.LatencyMs, e.alpha, first)
	m.emaUptime, m.varUptime = ema(m.emaUptime, m.varUptime, t.UptimePct, e.alpha, first)
	m.emaVerify, m.varVerify = ema(m.emaVerify, m.varVerify, t.VerifySuccessPct, e.alpha, first)
	m.emaBandwidth, m.varBandwidth = ema(m.emaBandwidth, m.varBandwidth, t.BandwidthMbps, e.alpha, first)
	m.emaQoSPenalty, m.varQoSPenalty = ema(m.emaQoSPenalty, m.varQoSPenalty, t.RegionalQoSPenalty, e.alpha, first)
	m.heatAccumulator = e.alpha*t.ObjectHeatIndex + (1-e.alpha)*m.heatAccumulator

	newVelocity := 0.0
	if !first {
		newVelocity = m.emaComposite - prevEMA
	}
	acceleration := newVelocity - m.velocity
	m.velocity = newVelocity
	m.acceleration = acceleration
	m.observations++

	anomalyMagnitude := anomalyNorm(t, m)
	anomaly := AnomalyNone
	switch {
	case anomalyMagnitude >= criticalZScore:
		anomaly = AnomalyCritical
	case anomalyMagnitude >= warnZScore:
		anomaly = AnomalyWarn
	}

	if anomaly == AnomalyCritical {
		m.consecutiveCritical++
	} else {
		m.consecutiveCritical = 0
	}
	if anomaly != AnomalyNone {
		m.consecutiveAnomaly++
	} else {
		m.consecutiveAnomaly = 0
	}
	if uptimeScore < 1 || latencyScore < 0.7 || bandwidthScore < 0.7 {
		m.sloViolations++
	}

	churnProb := clamp(0.5*badZ(t.UptimePct, m.emaUptime, m.varUptime, false)/criticalZScore+
		0.5*math.Max(0, -m.velocity)/10, 0, 1)

	confidence := clamp(
		0.6*(math.Min(float64(m.observations), minObservations)/minObservations)+
			0.4*(1-math.Sqrt(m.varComposite)/50),
		0.05, 0.99)

	action := decideAction(m, anomaly, m.emaComposite, churnProb, confidence)

	heatFrac := clamp(m.heatAccumulator/heatThreshold, 0, 1)
	redundancy := clamp(1.0+1.5*heatFrac*(1.1-m.emaComposite/100), MinRedundancyMultiplier, MaxRedundancyMultiplier)

	trend := "flat"
	switch {
	case m.velocity > 0.5:
		trend = "improving"
	case m.velocity < -0.5:
		trend = "degrading"
	}

	return Result{
		Peer:                 t.Peer,
		CompositeScore:       composite,
		SmoothedReputation:   m.emaComposite,
		Anomaly:              anomaly,
		AnomalyMagnitude:     anomalyMagnitude,
		Trend:                trend,
		Velocity:             m.velocity,
		Action:               action,
		ChurnProbability:     churnProb,
		PayoutPerGB:          e.baseRate * actionMultiplier(action) * (m.emaComposite / 100),
		Confidence:           confidence,
		Observations:         m.observations,
		SLOViolations:        m.sloViolations,
		RedundancyMultiplier: redundancy,
	}
}

// decideAction implements spec §4.8's ordered action-decision tree.
func decideAction(m *peerModel, anomaly AnomalyLevel, reputation, churnProb, confidence float64) Action {
	switch {
	case m.consecutiveCritical >= consecutiveEvict && confidence > 0.6:
		return ActionEvict
	case churnProb > 0.8:
		return ActionProactiveEvict
	case anomaly == AnomalyCritical || reputation < 20:
		return ActionQuarantine
	case anomaly == AnomalyWarn || (m.velocity < 0 && reputation < 60):
		return ActionProbation
	case m.sloViolations >= 3 && reputation < 70:
		return ActionProbation
	case reputation >= 80 && anomaly == AnomalyNone && confidence > 0.5:
		return ActionPromote
	default:
		return ActionHold
	}
}

func actionMultiplier(a Action) float64 {
	switch a {
	case ActionEvict:
		return 0
	case ActionProactiveEvict:
		return 0.1
	case ActionQuarantine:
		return 0.25
	case ActionProbation:
		return 0.5
	case ActionPromote:
		return 1.2
	default:
		return 1.0
	}
}

// ema folds x into a running EMA and an EMA of squared deviation
// (a biased but responsive running-variance estimator). On the first
// observation both seed directly from x with zero variance.
func ema(prevEMA, prevVar, x, alpha float64, first bool) (newEMA, newVar float64) {
	if first {
		return x, 0
	}
	newEMA = alpha*x + (1-alpha)*prevEMA
	dev := x - prevEMA
	newVar = alpha*dev*dev + (1-alpha)*prevVar
	return newEMA, newVar
}

// anomalyNorm computes the Euclidean norm of the "bad-direction-only"
// z-scores across every metric: for latency and QoS penalty, only high
// values count as anomalous; for uptime, verification, and bandwidth, only
// low values do.
func anomalyNorm(t Telemetry, m *peerModel) float64 {
	zLatency := badZ(t.LatencyMs, m.emaLatency, m.varLatency, true)
	zUptime := badZ(t.UptimePct, m.emaUptime, m.varUptime, false)
	zVerify := badZ(t.VerifySuccessPct, m.emaVerify, m.varVerify, false)
	zBandwidth := badZ(t.BandwidthMbps, m.emaBandwidth, m.varBandwidth, false)
	zQoS := badZ(t.RegionalQoSPenalty, m.emaQoSPenalty, m.varQoSPenalty, true)
	return math.Sqrt(zLatency*zLatency + zUptime*zUptime + zVerify*zVerify + zBandwidth*zBandwidth + zQoS*zQoS)
}

// badZ returns the signed z-score of x against (mean, variance), clipped to
// zero in the "good" direction. highIsBad selects which direction counts.
func badZ(x, mean, variance float64, highIsBad bool) float64 {
	std := math.Sqrt(variance)
	if std < 1e-9 {
		return 0
	}
	z := (x - mean) / std
	if highIsBad {
		return math.Max(0, z)
	}
	return math.Max(0, -z)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
