package catalog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// ShardPlacement is one row of the object_shards table.
type ShardPlacement struct {
	ObjectCID             string
	ShardIndex            int
	ShardCID              string
	PeerID                string
	CountryCode           string
	ReceiptTimestampMs    int64
	ReceiptSignatureValid bool
	LastVerifiedAt        *time.Time
	LastChallengeID       string
}

// InsertShardPlacement records one successful store dispatch.
func (s *Store) InsertShardPlacement(ctx context.Context, p ShardPlacement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO object_shards (object_cid, shard_index, shard_cid, peer_id, country_code, receipt_timestamp_ms, receipt_signature_valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (object_cid, shard_index) DO UPDATE SET
			shard_cid = excluded.shard_cid,
			peer_id = excluded.peer_id,
			country_code = excluded.country_code,
			receipt_timestamp_ms = excluded.receipt_timestamp_ms,
			receipt_signature_valid = excluded.receipt_signature_valid
	`, p.ObjectCID, p.ShardIndex, p.ShardCID, p.PeerID, p.CountryCode, p.ReceiptTimestampMs, p.ReceiptSignatureValid)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// ShardsForObject returns every known placement row for objectCID, ordered
// by shard index.
func (s *Store) ShardsForObject(ctx context.Context, objectCID string) ([]ShardPlacement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT object_cid, shard_index, shard_cid, peer_id, country_code, receipt_timestamp_ms, receipt_signature_valid, last_verified_at, COALESCE(last_challenge_id, '')
		FROM object_shards WHERE object_cid = $1 ORDER BY shard_index
	`, objectCID)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	defer rows.Close()

	var out []ShardPlacement
	for rows.Next() {
		var p ShardPlacement
		if err := rows.Scan(&p.ObjectCID, &p.ShardIndex, &p.ShardCID, &p.PeerID, &p.CountryCode, &p.ReceiptTimestampMs, &p.ReceiptSignatureValid, &p.LastVerifiedAt, &p.LastChallengeID); err != nil {
			return nil, apierr.Catalog.Wrap(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordVerification stamps a placement row's last-verified time and
// challenge id after a successful audit.
func (s *Store) RecordVerification(ctx context.Context, objectCID string, shardIndex int, challengeID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE object_shards SET last_verified_at = $1, last_challenge_id = $2
		WHERE object_cid = $3 AND shard_index = $4
	`, at, challengeID, objectCID, shardIndex)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// DegradedObjects returns object CIDs whose placement-row count has fallen
// below their recorded recovery threshold, the repair sweeper's work queue
// source.
func (s *Store) DegradedObjects(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.cid
		FROM objects o
		JOIN (
			SELECT object_cid, COUNT(*) AS present FROM object_shards GROUP BY object_cid
		) counts ON counts.object_cid = o.cid
		WHERE counts.present < o.recovery_threshold
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, apierr.Catalog.Wrap(err)
		}
		out = append(out, cid)
	}
	return out, rows.Err()
}

// AuditTargets selects up to limit placement rows for the next proof round,
// oldest-verified (and never-verified) shards first, randomized within that
// ordering so a slow node's shards don't always land in the same batch.
func (s *Store) AuditTargets(ctx context.Context, limit int) ([]ShardPlacement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT object_cid, shard_index, shard_cid, peer_id, country_code, receipt_timestamp_ms, receipt_signature_valid, last_verified_at, COALESCE(last_challenge_id, '')
		FROM object_shards
		ORDER BY last_verified_at ASC NULLS FIRST, RANDOM()
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	defer rows.Close()

	var out []ShardPlacement
	for rows.Next() {
		var p ShardPlacement
		if err := rows.Scan(&p.ObjectCID, &p.ShardIndex, &p.ShardCID, &p.PeerID, &p.CountryCode, &p.ReceiptTimestampMs, &p.ReceiptSignatureValid, &p.LastVerifiedAt, &p.LastChallengeID); err != nil {
			return nil, apierr.Catalog.Wrap(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LastVerifiedResponseHash returns the response_hash of the most recently
// verified challenge for (shardCID, peerID), the nonce chain's link back to
// the prior audit round. Returns ("", false, nil) for a genesis shard.
func (s *Store) LastVerifiedResponseHash(ctx context.Context, shardCID, peerID string) (string, bool, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT response_hash FROM zk_proof_challenges
		WHERE shard_cid = $1 AND peer_id = $2 AND status = $3
		ORDER BY verified_at DESC LIMIT 1
	`, shardCID, peerID, ChallengeStatusVerified).Scan(&hash)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apierr.Catalog.Wrap(err)
	}
	return hash, true, nil
}

// WarmReplicationGaps returns object CIDs that are still reconstructible
// (placement count at or above recovery_threshold) but have fallen below
// their full target shard count, the repair sweeper's proactive
// re-replication queue, distinct from DegradedObjects' more urgent
// below-threshold queue.
func (s *Store) WarmReplicationGaps(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.cid
		FROM objects o
		JOIN (
			SELECT object_cid, COUNT(*) AS present FROM object_shards GROUP BY object_cid
		) counts ON counts.object_cid = o.cid
		WHERE counts.present >= o.recovery_threshold AND counts.present < o.shards
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, apierr.Catalog.Wrap(err)
		}
		out = append(out, cid)
	}
	return out, rows.Err()
}

// TopSuperNodes implements multiplexer.SuperNodeLister: the up-to-limit
// current super-nodes, ordered by declared bandwidth capacity.
func (s *Store) TopSuperNodes(ctx context.Context, limit int) ([]peer.ID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT peer_id FROM nodes WHERE is_super_node = true AND is_active = true
		ORDER BY bandwidth_capacity_mbps DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	defer rows.Close()

	var out []peer.ID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apierr.Catalog.Wrap(err)
		}
		id, err := peer.Decode(raw)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
