package repair

import "sync"

// heatTracker counts recent GETs per object CID, the sweeper's signal for
// "thundering herd" detection: an object whose heat crosses expandAt gets
// its shard count expanded by MaxRedundancyMultiplier, and its counter
// resets so the bump reflects a fresh burst rather than lifetime
// popularity.
type heatTracker struct {
	mu       sync.Mutex
	counts   map[string]int
	expandAt int
}

func newHeatTracker(expandAt int) *heatTracker {
	if expandAt <= 0 {
		expandAt = 100
	}
	return &heatTracker{counts: make(map[string]int), expandAt: expandAt}
}

// NewHeatTracker constructs the sweeper's GET-heat counter for callers
// outside this package (cmd/gateway wires one in alongside the Sweeper).
// expandAt is the number of GETs since the last drain that triggers a
// redundancy bump; non-positive values fall back to 100.
func NewHeatTracker(expandAt int) *heatTracker {
	return newHeatTracker(expandAt)
}

// Hook returns the callback to install via Orchestrator.SetRetrieveHook so
// every successful GET feeds this tracker.
func (h *heatTracker) Hook() func(string) {
	return h.bump
}

// bump is wired into Orchestrator.SetRetrieveHook and called on every
// successful GET.
func (h *heatTracker) bump(objectCID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[objectCID]++
}

// drainExpanding returns every object CID whose counter has crossed
// expandAt since the last drain, resetting each to zero as it is reported.
func (h *heatTracker) drainExpanding() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for cid, n := range h.counts {
		if n >= h.expandAt {
			out = append(out, cid)
			h.counts[cid] = 0
		}
	}
	return out
}

// heatIndex returns objectCID's current count. The sweeper does not use it
// when scoring reputation; it reports ObjectHeatIndex as 0.
func (h *heatTracker) heatIndex(objectCID string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return float64(h.counts[objectCID])
}
