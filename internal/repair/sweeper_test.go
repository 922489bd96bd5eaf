package repair

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeRepairer struct {
	expanded map[string]float64
}

func (f *fakeRepairer) RepairObject(ctx context.Context, objectCID string) error {
	return nil
}

func (f *fakeRepairer) ExpandObject(ctx context.Context, objectCID string, multiplier float64) error {
	if f.expanded == nil {
		f.expanded = make(map[string]float64)
	}
	f.expanded[objectCID] = multiplier
	return nil
}

func TestExpandHotObjectsCallsExpandObjectWithMaxMultiplier(t *testing.T) {
	heat := newHeatTracker(3)
	heat.bump("hot-object")
	heat.bump("hot-object")
	heat.bump("hot-object")
	heat.bump("cold-object")

	fr := &fakeRepairer{}
	sw := NewSweeper(nil, fr, NewEngine(0.2, DefaultSLOs(), 0.01), heat, logrus.NewEntry(logrus.New()))

	sw.expandHotObjects(context.Background())

	require.Equal(t, map[string]float64{"hot-object": MaxRedundancyMultiplier}, fr.expanded)
}
