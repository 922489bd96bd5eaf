package proof

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/protocol"
)

type fakeSubmissionStore struct {
	challenge       catalog.Challenge
	found           bool
	getErr          error
	completedCalls  []bool
	verifiedCalls   int
	completeErr     error
	verificationErr error
}

func (f *fakeSubmissionStore) GetChallenge(ctx context.Context, challengeID string) (catalog.Challenge, bool, error) {
	return f.challenge, f.found, f.getErr
}

func (f *fakeSubmissionStore) CompleteChallenge(ctx context.Context, challengeID string, verified bool, responseHash, signatureHex, publicKeyHex, failureReason string, at time.Time) error {
	f.completedCalls = append(f.completedCalls, verified)
	return f.completeErr
}

func (f *fakeSubmissionStore) RecordVerification(ctx context.Context, objectCID string, shardIndex int, challengeID string, at time.Time) error {
	f.verifiedCalls++
	return f.verificationErr
}

func validSubmission(t *testing.T) (Submission, *fakeSubmissionStore) {
	t.Helper()
	priv, pub, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	pubBytes, err := crypto.MarshalPublicKey(pub)
	require.NoError(t, err)

	now := time.Now()
	challenge := catalog.Challenge{
		ChallengeID:  "chal-1",
		ObjectCID:    "QmObject",
		ShardCID:     "shard-cid-1",
		ShardIndex:   3,
		PeerID:       id.String(),
		ChallengeHex: "aa",
		NonceHex:     "bb",
		Status:       catalog.ChallengeStatusPending,
		ExpiresAt:    now.Add(time.Minute),
	}

	responseHash := "resp-hash"
	tsMs := now.UnixMilli()
	payload := protocol.AuditPayload(challenge.ShardCID, challenge.ChallengeHex, challenge.NonceHex, responseHash, tsMs)
	sig, err := priv.Sign(payload)
	require.NoError(t, err)

	sub := Submission{
		ChallengeID:  challenge.ChallengeID,
		NodeID:       id.String(),
		ChallengeHex: challenge.ChallengeHex,
		NonceHex:     challenge.NonceHex,
		ResponseHash: responseHash,
		TimestampMs:  tsMs,
		Signature:    sig,
		PublicKey:    pubBytes,
	}
	return sub, &fakeSubmissionStore{challenge: challenge, found: true}
}

func TestSubmitFinalizesValidProof(t *testing.T) {
	sub, store := validSubmission(t)
	err := Submit(context.Background(), store, sub)
	require.NoError(t, err)
	require.Equal(t, []bool{true}, store.completedCalls)
	require.Equal(t, 1, store.verifiedCalls)
}

func TestSubmitRejectsStaleTimestamp(t *testing.T) {
	sub, store := validSubmission(t)
	sub.TimestampMs = time.Now().Add(-10 * time.Minute).UnixMilli()
	err := Submit(context.Background(), store, sub)
	require.Error(t, err)
	require.Empty(t, store.completedCalls)
}

func TestSubmitRejectsUnknownChallenge(t *testing.T) {
	sub, store := validSubmission(t)
	store.found = false
	err := Submit(context.Background(), store, sub)
	require.Error(t, err)
}

func TestSubmitRejectsNonPendingChallenge(t *testing.T) {
	sub, store := validSubmission(t)
	store.challenge.Status = catalog.ChallengeStatusVerified
	err := Submit(context.Background(), store, sub)
	require.Error(t, err)
}

func TestSubmitRejectsExpiredChallenge(t *testing.T) {
	sub, store := validSubmission(t)
	store.challenge.ExpiresAt = time.Now().Add(-time.Second)
	err := Submit(context.Background(), store, sub)
	require.Error(t, err)
}

func TestSubmitRejectsChallengeOrNonceMismatch(t *testing.T) {
	sub, store := validSubmission(t)
	sub.NonceHex = "tampered"
	err := Submit(context.Background(), store, sub)
	require.Error(t, err)
	require.Empty(t, store.verifiedCalls)
}

func TestSubmitRejectsNodeIDMismatch(t *testing.T) {
	sub, store := validSubmission(t)
	store.challenge.PeerID = "12D3KooWDifferentPeerIdPlaceholder"
	err := Submit(context.Background(), store, sub)
	require.Error(t, err)
}

func TestSubmitRejectsInvalidSignatureAndMarksFailed(t *testing.T) {
	sub, store := validSubmission(t)
	sub.Signature[0] ^= 0xFF
	err := Submit(context.Background(), store, sub)
	require.Error(t, err)
	require.Equal(t, []bool{false}, store.completedCalls)
	require.Equal(t, 0, store.verifiedCalls)
}
