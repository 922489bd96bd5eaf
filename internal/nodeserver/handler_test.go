package nodeserver_test

import (
	"path/filepath"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/blockstore"
	"github.com/driftmesh/driftmesh/internal/identity"
	"github.com/driftmesh/driftmesh/internal/nodeserver"
	"github.com/driftmesh/driftmesh/internal/protocol"
)

func newHandler(t *testing.T) (*nodeserver.Handler, *identity.Identity) {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	var key [32]byte
	store, err := blockstore.Open(filepath.Join(t.TempDir(), "node.db"), 1<<20, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	log := logrus.NewEntry(logrus.New())
	return nodeserver.New(id, store, log, nil), id
}

func TestStoreThenRetrieveVerifies(t *testing.T) {
	h, id := newHandler(t)
	requester, err := identity.Generate()
	require.NoError(t, err)

	storeResp := h.HandleStore(requester.PeerID(), protocol.StoreRequest{CID: "cid1", Bytes: []byte("shard bytes")})
	require.True(t, storeResp.Stored)
	require.True(t, storeResp.VerifyReceipt(id.PeerID(), "cid1", len("shard bytes")))

	getResp := h.HandleRetrieve(requester.PeerID(), protocol.RetrieveRequest{CID: "cid1"})
	require.True(t, getResp.Found)
	require.Equal(t, []byte("shard bytes"), getResp.Bytes)
	require.True(t, getResp.VerifyProof(id.PeerID(), "cid1"))
}

func TestAuditReplayRejectedWithinTTL(t *testing.T) {
	h, id := newHandler(t)
	requester, err := identity.Generate()
	require.NoError(t, err)

	h.HandleStore(requester.PeerID(), protocol.StoreRequest{CID: "cid1", Bytes: []byte("shard bytes")})

	first := h.HandleAudit(requester.PeerID(), protocol.AuditRequest{CID: "cid1", ChallengeHex: "aa", NonceHex: "bb"})
	require.True(t, first.Accepted)
	require.True(t, first.VerifyAudit(id.PeerID(), "cid1", "aa", "bb"))

	second := h.HandleAudit(requester.PeerID(), protocol.AuditRequest{CID: "cid1", ChallengeHex: "aa", NonceHex: "bb"})
	require.False(t, second.Accepted)
	require.Empty(t, second.ResponseHash)
}

func TestAllowlistDeniesWithNegativeUnsignedReply(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)
	allowed, err := identity.Generate()
	require.NoError(t, err)
	denied, err := identity.Generate()
	require.NoError(t, err)

	var key [32]byte
	store, err := blockstore.Open(filepath.Join(t.TempDir(), "node.db"), 1<<20, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := nodeserver.New(id, store, logrus.NewEntry(logrus.New()), []peer.ID{allowed.PeerID()})

	resp := h.HandleStore(denied.PeerID(), protocol.StoreRequest{CID: "cid1", Bytes: []byte("x")})
	require.False(t, resp.Stored)
	require.Empty(t, resp.Signature)
	require.Empty(t, resp.PublicKey)
}
