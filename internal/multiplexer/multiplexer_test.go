package multiplexer_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/blockstore"
	"github.com/driftmesh/driftmesh/internal/identity"
	"github.com/driftmesh/driftmesh/internal/multiplexer"
	"github.com/driftmesh/driftmesh/internal/nodeserver"
)

type constantResolver struct {
	country string
	as      string
}

func (c constantResolver) CountryOf(string) string          { return c.country }
func (c constantResolver) AutonomousSystemOf(string) string { return c.as }

func mustHost(t *testing.T, id *identity.Identity) host.Host {
	t.Helper()
	h, err := libp2p.New(libp2p.Identity(id.Libp2pPrivateKey()), libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestStoreDispatchesToGeofenceAuthorizedPeerAndVerifies(t *testing.T) {
	nodeID, err := identity.Generate()
	require.NoError(t, err)
	var key [32]byte
	store, err := blockstore.Open(filepath.Join(t.TempDir(), "node.db"), 1<<20, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := logrus.NewEntry(logrus.New())
	handler := nodeserver.New(nodeID, store, log, nil)
	nodeHost := mustHost(t, nodeID)
	nodeserver.Serve(handler, nodeHost)

	gatewayID, err := identity.Generate()
	require.NoError(t, err)
	gatewayHost := mustHost(t, gatewayID)

	nodeInfo := peer.AddrInfo{ID: nodeHost.ID(), Addrs: nodeHost.Addrs()}
	require.NoError(t, gatewayHost.Connect(context.Background(), nodeInfo))

	// allow the notifiee's connection event to land before dispatch.
	time.Sleep(50 * time.Millisecond)

	mux := multiplexer.New(gatewayHost, constantResolver{country: "DE", as: "AS1"}, nil, log, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Run(ctx)

	ack, err := mux.Store(context.Background(), "cid1", "object1", []byte("shard payload"), "EU")
	require.NoError(t, err)
	require.True(t, ack.Stored)
	require.True(t, ack.SignatureValid)
	require.Equal(t, nodeHost.ID(), ack.PeerID)

	retrieveAck, err := mux.Retrieve(context.Background(), "cid1", "")
	require.NoError(t, err)
	require.True(t, retrieveAck.Found)
	require.True(t, retrieveAck.Verified)
	require.Equal(t, []byte("shard payload"), retrieveAck.Bytes)
}

func TestStoreRejectsWhenNoGeofenceAuthorizedPeer(t *testing.T) {
	nodeID, err := identity.Generate()
	require.NoError(t, err)
	var key [32]byte
	store, err := blockstore.Open(filepath.Join(t.TempDir(), "node.db"), 1<<20, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := logrus.NewEntry(logrus.New())
	handler := nodeserver.New(nodeID, store, log, nil)
	nodeHost := mustHost(t, nodeID)
	nodeserver.Serve(handler, nodeHost)

	gatewayID, err := identity.Generate()
	require.NoError(t, err)
	gatewayHost := mustHost(t, gatewayID)

	nodeInfo := peer.AddrInfo{ID: nodeHost.ID(), Addrs: nodeHost.Addrs()}
	require.NoError(t, gatewayHost.Connect(context.Background(), nodeInfo))
	time.Sleep(50 * time.Millisecond)

	// The only connected peer is "US"; a "DE"-only geofence tag must reject it.
	mux := multiplexer.New(gatewayHost, constantResolver{country: "US", as: "AS1"}, nil, log, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Run(ctx)

	ack, err := mux.Store(context.Background(), "cid2", "object2", []byte("x"), "DE")
	require.NoError(t, err)
	require.False(t, ack.Stored)
}

func TestStoreEnforcesASCapAcrossShardsOfTheSameObject(t *testing.T) {
	var nodeHosts []host.Host
	for i := 0; i < 2; i++ {
		nodeID, err := identity.Generate()
		require.NoError(t, err)
		var key [32]byte
		store, err := blockstore.Open(filepath.Join(t.TempDir(), "node.db"), 1<<20, key)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })

		log := logrus.NewEntry(logrus.New())
		handler := nodeserver.New(nodeID, store, log, nil)
		nodeHost := mustHost(t, nodeID)
		nodeserver.Serve(handler, nodeHost)
		nodeHosts = append(nodeHosts, nodeHost)
	}

	gatewayID, err := identity.Generate()
	require.NoError(t, err)
	gatewayHost := mustHost(t, gatewayID)
	for _, nodeHost := range nodeHosts {
		nodeInfo := peer.AddrInfo{ID: nodeHost.ID(), Addrs: nodeHost.Addrs()}
		require.NoError(t, gatewayHost.Connect(context.Background(), nodeInfo))
	}
	time.Sleep(50 * time.Millisecond)

	log := logrus.NewEntry(logrus.New())
	// Both peers resolve to the same AS, and the cap allows only one shard
	// of a given object per AS.
	mux := multiplexer.New(gatewayHost, constantResolver{country: "DE", as: "AS1"}, nil, log, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Run(ctx)

	first, err := mux.Store(context.Background(), "shard1", "object1", []byte("a"), "GLOBAL")
	require.NoError(t, err)
	require.True(t, first.Stored)

	// A second shard of the SAME object must be rejected even though a
	// second, otherwise-eligible peer is still connected: the AS cap is
	// keyed per object, not per shard.
	second, err := mux.Store(context.Background(), "shard2", "object1", []byte("b"), "GLOBAL")
	require.NoError(t, err)
	require.False(t, second.Stored)

	// A shard of a DIFFERENT object is unaffected by object1's cap.
	third, err := mux.Store(context.Background(), "shard3", "object2", []byte("c"), "GLOBAL")
	require.NoError(t, err)
	require.True(t, third.Stored)
}
