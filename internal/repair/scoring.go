package repair

// The five per-factor scoring functions, each mapping a raw telemetry value
// onto [0,1] via the non-linear shape spec'd for that factor. Every
// function is pure so the engine's weighting stays testable without a
// running peer.

// scoreLatency rewards latency at or under half the SLO with a flat 1.0
// (there is no extra bonus for being faster still), decays linearly from
// 1.0 down to 0.7 between half the SLO and the SLO itself, then falls off
// quadratically beyond the SLO.
func scoreLatency(latencyMs, sloMs float64) float64 {
	if sloMs <= 0 {
		sloMs = 1
	}
	half := sloMs / 2
	switch {
	case latencyMs <= half:
		return 1
	case latencyMs <= sloMs:
		return 1 - 0.3*(latencyMs-half)/half
	default:
		over := (latencyMs - sloMs) / sloMs
		return clamp(0.7/(1+over*over), 0, 0.7)
	}
}

// scoreUptime treats anything at or above the SLO as a perfect 1.0, dips
// steeply (linearly) between the SLO and 95%, and falls off quadratically
// below 95% — uptime is the heaviest-weighted factor and the scorer
// reflects that a sub-95% node is in genuinely bad shape, not merely
// imperfect.
func scoreUptime(uptimePct, sloPct float64) float64 {
	switch {
	case uptimePct >= sloPct:
		return 1
	case uptimePct >= 95:
		span := sloPct - 95
		if span <= 0 {
			return 1
		}
		return 0.7 + 0.3*(uptimePct-95)/span
	default:
		frac := uptimePct / 95
		return clamp(0.7*frac*frac, 0, 0.7)
	}
}

// scoreVerify is the cube of the verification success rate: a peer that
// fails even a small fraction of audits loses score fast, since
// verification failures are the strongest individual signal of data loss.
func scoreVerify(verifySuccessPct float64) float64 {
	frac := clamp(verifySuccessPct/100, 0, 1)
	return frac * frac * frac
}

// scoreBandwidth is linear above the SLO with a 0.7 floor (extra bandwidth
// past the target buys only a little more score) and falls off steeply
// (cubic) below it.
func scoreBandwidth(bandwidthMbps, sloMbps float64) float64 {
	if sloMbps <= 0 {
		sloMbps = 1
	}
	if bandwidthMbps >= sloMbps {
		bonus := clamp((bandwidthMbps-sloMbps)/sloMbps, 0, 1)
		return clamp(0.7+0.3*bonus, 0.7, 1)
	}
	frac := clamp(bandwidthMbps/sloMbps, 0, 1)
	return clamp(frac*frac*frac, 0, 1)
}

// scoreRegionalQoS converts a [0,1] penalty (latency/packet-loss derived,
// computed upstream from the node's region) into a score via 1-penalty^2,
// so small penalties cost little but the factor still collapses toward 0
// for a badly-served region.
func scoreRegionalQoS(penalty float64) float64 {
	p := clamp(penalty, 0, 1)
	return clamp(1-p*p, 0, 1)
}
