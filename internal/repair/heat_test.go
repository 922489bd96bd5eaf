package repair

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeatTrackerDrainsOnlyObjectsPastThreshold(t *testing.T) {
	h := newHeatTracker(3)
	for i := 0; i < 3; i++ {
		h.bump("hot-object")
	}
	h.bump("cold-object")

	expanding := h.drainExpanding()
	require.ElementsMatch(t, []string{"hot-object"}, expanding)
}

func TestHeatTrackerResetsAfterDraining(t *testing.T) {
	h := newHeatTracker(2)
	h.bump("cid")
	h.bump("cid")
	require.NotEmpty(t, h.drainExpanding())
	require.Empty(t, h.drainExpanding())
}

func TestHeatTrackerBumpIsConcurrencySafe(t *testing.T) {
	h := newHeatTracker(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.bump("shared")
		}()
	}
	wg.Wait()
	require.Equal(t, float64(50), h.heatIndex("shared"))
}
