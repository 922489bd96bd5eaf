package proof

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/identity"
	"github.com/driftmesh/driftmesh/internal/protocol"
)

const submissionFreshnessMs = 120_000

// submissionStore is the narrow slice of *catalog.Store the submission path
// needs, so Submit's validation logic can be exercised without a live
// database.
type submissionStore interface {
	GetChallenge(ctx context.Context, challengeID string) (catalog.Challenge, bool, error)
	CompleteChallenge(ctx context.Context, challengeID string, verified bool, responseHash, signatureHex, publicKeyHex, failureReason string, at time.Time) error
	RecordVerification(ctx context.Context, objectCID string, shardIndex int, challengeID string, at time.Time) error
}

// Submission is the body of an authenticated external proof submission, the
// alternative path to the gateway's own dispatch-and-verify loop for a node
// that wants to push a proof rather than wait to be polled.
type Submission struct {
	ChallengeID  string
	NodeID       string // peer.ID string form; must equal the challenge's stored peer_id
	ChallengeHex string
	NonceHex     string
	ResponseHash string
	TimestampMs  int64
	Signature    []byte
	PublicKey    []byte
}

// Submit validates and finalizes an externally-submitted proof. It enforces,
// in order: timestamp freshness, a pending/non-expired challenge row,
// (challenge_hex, nonce_hex) equal to what was actually issued, the node id
// matching the stored peer id, and a valid signature over the canonical
// audit payload. Only a failed signature check marks the challenge failed;
// a submission rejected by any earlier check leaves the row unchanged.
func Submit(ctx context.Context, store submissionStore, sub Submission) error {
	now := time.Now()
	if !protocol.IsFresh(now.UnixMilli(), sub.TimestampMs, submissionFreshnessMs) {
		return apierr.Verification.New("submission timestamp outside freshness window")
	}

	c, found, err := store.GetChallenge(ctx, sub.ChallengeID)
	if err != nil {
		return err
	}
	if !found {
		return apierr.NotFound.New("unknown challenge %q", sub.ChallengeID)
	}
	if c.Status != catalog.ChallengeStatusPending {
		return apierr.Verification.New("challenge %q is not pending", sub.ChallengeID)
	}
	if now.After(c.ExpiresAt) {
		return apierr.Verification.New("challenge %q has expired", sub.ChallengeID)
	}
	if c.ChallengeHex != sub.ChallengeHex || c.NonceHex != sub.NonceHex {
		return apierr.Verification.New("challenge/nonce mismatch for %q", sub.ChallengeID)
	}
	if c.PeerID != sub.NodeID {
		return apierr.Verification.New("submission node id does not match issued target")
	}

	nodePeerID, err := peer.Decode(sub.NodeID)
	if err != nil {
		return apierr.Verification.Wrap(err)
	}

	payload := protocol.AuditPayload(c.ShardCID, sub.ChallengeHex, sub.NonceHex, sub.ResponseHash, sub.TimestampMs)
	if !identity.Verify(nodePeerID, sub.PublicKey, sub.Signature, payload) {
		_ = store.CompleteChallenge(ctx, c.ChallengeID, false, "", "", "", "signature verification failed", now)
		return apierr.Verification.New("signature verification failed for %q", sub.ChallengeID)
	}

	if err := store.CompleteChallenge(ctx, c.ChallengeID, true, sub.ResponseHash,
		hex.EncodeToString(sub.Signature), hex.EncodeToString(sub.PublicKey), "", now); err != nil {
		return err
	}
	return store.RecordVerification(ctx, c.ObjectCID, c.ShardIndex, c.ChallengeID, now)
}
