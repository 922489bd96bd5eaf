package catalog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// Challenge is one row of the zk_proof_challenges table.
type Challenge struct {
	ChallengeID    string
	ObjectCID      string
	ShardCID       string
	ShardIndex     int
	PeerID         string
	CountryCode    string
	ChallengeHex   string
	NonceHex       string
	Status         string
	ExpiresAt      time.Time
	ResponseHash   string
	SignatureHex   string
	PublicKeyHex   string
	VerifiedAt     *time.Time
	FailureReason  string
}

const (
	ChallengeStatusPending  = "pending"
	ChallengeStatusVerified = "verified"
	ChallengeStatusFailed   = "failed"
	ChallengeStatusExpired  = "expired"
)

// InsertChallenge records a newly issued proof-of-possession challenge.
func (s *Store) InsertChallenge(ctx context.Context, c Challenge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO zk_proof_challenges (challenge_id, object_cid, shard_cid, shard_index, peer_id, country_code, challenge_hex, nonce_hex, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ChallengeID, c.ObjectCID, c.ShardCID, c.ShardIndex, c.PeerID, c.CountryCode, c.ChallengeHex, c.NonceHex, ChallengeStatusPending, c.ExpiresAt)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// GetChallenge fetches one challenge row by id, used by the external
// proof-submission HTTP endpoint to validate a submission against what was
// actually issued.
func (s *Store) GetChallenge(ctx context.Context, challengeID string) (Challenge, bool, error) {
	var c Challenge
	err := s.pool.QueryRow(ctx, `
		SELECT challenge_id, object_cid, shard_cid, shard_index, peer_id, country_code, challenge_hex, nonce_hex, status, expires_at
		FROM zk_proof_challenges WHERE challenge_id = $1
	`, challengeID).Scan(&c.ChallengeID, &c.ObjectCID, &c.ShardCID, &c.ShardIndex, &c.PeerID, &c.CountryCode, &c.ChallengeHex, &c.NonceHex, &c.Status, &c.ExpiresAt)
	if err == pgx.ErrNoRows {
		return Challenge{}, false, nil
	}
	if err != nil {
		return Challenge{}, false, apierr.Catalog.Wrap(err)
	}
	return c, true, nil
}

// CompleteChallenge marks a challenge verified or failed and, on success,
// appends the corresponding residency evidence row in the same transaction.
func (s *Store) CompleteChallenge(ctx context.Context, challengeID string, verified bool, responseHash, signatureHex, publicKeyHex, failureReason string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	defer tx.Rollback(ctx)

	status := ChallengeStatusFailed
	if verified {
		status = ChallengeStatusVerified
	}
	_, err = tx.Exec(ctx, `
		UPDATE zk_proof_challenges SET status = $1, response_hash = $2, signature_hex = $3, public_key_hex = $4, verified_at = $5, failure_reason = $6
		WHERE challenge_id = $7
	`, status, responseHash, signatureHex, publicKeyHex, at, failureReason, challengeID)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}

	if verified {
		var objectCID, shardCID, peerID string
		err := tx.QueryRow(ctx, `SELECT object_cid, shard_cid, peer_id FROM zk_proof_challenges WHERE challenge_id = $1`, challengeID).
			Scan(&objectCID, &shardCID, &peerID)
		if err != nil {
			return apierr.Catalog.Wrap(err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO shard_residency_evidence (challenge_id, object_cid, shard_cid, peer_id, verified_at, response_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, challengeID, objectCID, shardCID, peerID, at, responseHash)
		if err != nil {
			return apierr.Catalog.Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// PeerVerificationStats returns peerID's resolved (verified or failed)
// challenge counts over the trailing window: challenges whose expires_at is
// at or after since. It is the reputation engine's VerifySuccessPct input.
func (s *Store) PeerVerificationStats(ctx context.Context, peerID string, since time.Time) (total, verified int, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1)
		FROM zk_proof_challenges
		WHERE peer_id = $2 AND status IN ($1, $3) AND expires_at >= $4
	`, ChallengeStatusVerified, peerID, ChallengeStatusFailed, since).Scan(&total, &verified)
	if err != nil {
		return 0, 0, apierr.Catalog.Wrap(err)
	}
	return total, verified, nil
}

// ExpirePendingChallenges marks every pending challenge whose deadline has
// passed as expired, called by the proof loop's sweep tick.
func (s *Store) ExpirePendingChallenges(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE zk_proof_challenges SET status = $1, failure_reason = 'deadline exceeded'
		WHERE status = $2 AND expires_at < $3
	`, ChallengeStatusExpired, ChallengeStatusPending, now)
	if err != nil {
		return 0, apierr.Catalog.Wrap(err)
	}
	return tag.RowsAffected(), nil
}
