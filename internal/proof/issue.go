package proof

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/driftmesh/driftmesh/internal/catalog"
)

// challengeStore is the catalog slice IssueChallenge needs: nonce-chain
// lookup plus the insert itself.
type challengeStore interface {
	responseHashLookup
	InsertChallenge(ctx context.Context, c catalog.Challenge) error
}

// IssueChallenge builds and persists one fresh challenge for target,
// expiring after deadline. It implements the nonce-chain rule described on
// deriveNonce: chained_entropy links to the last verified response for this
// (shard_cid, peer_id), or a genesis block of entropy if there is none.
// Exported so both the audit Loop's own scheduled issuance and an
// out-of-band admin trigger (the HTTP /zk/issue-challenge route) share one
// implementation instead of duplicating the chaining logic.
func IssueChallenge(ctx context.Context, store challengeStore, target catalog.ShardPlacement, deadline time.Duration) (catalog.Challenge, error) {
	nonceHex, err := deriveNonce(ctx, store, target.ShardCID, target.PeerID)
	if err != nil {
		return catalog.Challenge{}, err
	}
	challengeHex, err := randomHexBytes(32)
	if err != nil {
		return catalog.Challenge{}, err
	}

	c := catalog.Challenge{
		ChallengeID:  uuid.NewString(),
		ObjectCID:    target.ObjectCID,
		ShardCID:     target.ShardCID,
		ShardIndex:   target.ShardIndex,
		PeerID:       target.PeerID,
		CountryCode:  target.CountryCode,
		ChallengeHex: challengeHex,
		NonceHex:     nonceHex,
		ExpiresAt:    time.Now().Add(deadline),
	}
	if err := store.InsertChallenge(ctx, c); err != nil {
		return catalog.Challenge{}, err
	}
	return c, nil
}
