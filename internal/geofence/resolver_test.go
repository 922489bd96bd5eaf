package geofence

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/catalog"
)

type fakeLister struct {
	nodes []catalog.Node
}

func (f fakeLister) ListActiveNodes(ctx context.Context) ([]catalog.Node, error) {
	return f.nodes, nil
}

func TestCountryOfResolvesFromMultiaddr(t *testing.T) {
	s := New(context.Background(), fakeLister{nodes: []catalog.Node{
		{PeerID: "p0", IPAddress: "10.0.0.5", CountryCode: "DE"},
	}}, logrus.NewEntry(logrus.New()))

	require.Equal(t, "DE", s.CountryOf("/ip4/10.0.0.5/tcp/4001"))
	require.Equal(t, "", s.CountryOf("/ip4/10.0.0.9/tcp/4001"))
}

func TestAutonomousSystemOfGroupsSameSlash24(t *testing.T) {
	s := New(context.Background(), fakeLister{}, logrus.NewEntry(logrus.New()))

	a := s.AutonomousSystemOf("/ip4/10.0.0.5/tcp/4001")
	b := s.AutonomousSystemOf("/ip4/10.0.0.200/tcp/4001")
	c := s.AutonomousSystemOf("/ip4/10.0.1.5/tcp/4001")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestAutonomousSystemOfUnparseableAddrReturnsUnknown(t *testing.T) {
	s := New(context.Background(), fakeLister{}, logrus.NewEntry(logrus.New()))
	require.Equal(t, "unknown", s.AutonomousSystemOf("not-an-address"))
}
