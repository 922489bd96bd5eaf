package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/identity"
	"github.com/driftmesh/driftmesh/internal/protocol"
)

func TestStoreReceiptRoundTrip(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	cid := "deadbeef"
	length := 1024
	ts := int64(1_700_000_000_000)

	sig, err := id.Sign(protocol.StorePayload(cid, length, ts))
	require.NoError(t, err)

	resp := protocol.StoreResponse{
		Stored:      true,
		TimestampMs: ts,
		Signature:   sig,
		PublicKey:   id.PublicKeyBytes(),
	}

	require.True(t, resp.VerifyReceipt(id.PeerID(), cid, length))
	require.False(t, resp.VerifyReceipt(id.PeerID(), cid, length+1))

	other, err := identity.Generate()
	require.NoError(t, err)
	require.False(t, resp.VerifyReceipt(other.PeerID(), cid, length))
}

func TestRetrieveProofRejectsNotFound(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	resp := protocol.RetrieveResponse{Found: false}
	require.False(t, resp.VerifyProof(id.PeerID(), "cid"))
}

func TestAuditResponseRejectsUnacceptedOrNotFound(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	require.False(t, (protocol.AuditResponse{Found: true, Accepted: false}).VerifyAudit(id.PeerID(), "c", "a", "b"))
	require.False(t, (protocol.AuditResponse{Found: false, Accepted: true}).VerifyAudit(id.PeerID(), "c", "a", "b"))
}

func TestIsFreshSaturates(t *testing.T) {
	require.True(t, protocol.IsFresh(1000, 1000, 0))
	require.True(t, protocol.IsFresh(1000, 2000, 0)) // future timestamp clamps to zero age
	require.True(t, protocol.IsFresh(2000, 1000, 1000))
	require.False(t, protocol.IsFresh(2001, 1000, 1000))
}
