package catalog

import (
	"context"
	"time"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// Node is one row of the nodes table.
type Node struct {
	PeerID                string
	IPAddress             string
	CountryCode           string
	StorageCapacityGB     float64
	BandwidthCapacityMbps float64
	UptimePercentage      float64
	IsSuperNode           bool
	IsActive              bool
	Reputation            float64
	LastSeen              time.Time
}

// RegisterNode upserts a node row from a self-reported registration
// payload. The caller is expected to still treat the row as provisional
// until the proof loop's first successful audit of that peer.
func (s *Store) RegisterNode(ctx context.Context, n Node) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nodes (peer_id, ip_address, country_code, storage_capacity_gb, bandwidth_capacity_mbps, last_seen)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (peer_id) DO UPDATE SET
			ip_address = excluded.ip_address,
			country_code = excluded.country_code,
			storage_capacity_gb = excluded.storage_capacity_gb,
			bandwidth_capacity_mbps = excluded.bandwidth_capacity_mbps,
			last_seen = now()
	`, n.PeerID, n.IPAddress, n.CountryCode, n.StorageCapacityGB, n.BandwidthCapacityMbps)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// TouchLastSeen records a connection observation from the multiplexer's
// notifiee.
func (s *Store) TouchLastSeen(ctx context.Context, peerID, ipAddress, countryCode string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nodes (peer_id, ip_address, country_code, storage_capacity_gb, bandwidth_capacity_mbps, last_seen)
		VALUES ($1, $2, $3, 0, 0, now())
		ON CONFLICT (peer_id) DO UPDATE SET
			ip_address = excluded.ip_address,
			country_code = excluded.country_code,
			last_seen = now()
	`, peerID, ipAddress, countryCode)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// UpdateReputation persists a reputation engine score for peerID.
func (s *Store) UpdateReputation(ctx context.Context, peerID string, score float64) error {
	_, err := s.pool.Exec(ctx, `UPDATE nodes SET reputation = $1 WHERE peer_id = $2`, score, peerID)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// ListActiveNodes returns every node currently marked active, the
// reputation sweeper's per-tick input set.
func (s *Store) ListActiveNodes(ctx context.Context) ([]Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT peer_id, ip_address, country_code, storage_capacity_gb, bandwidth_capacity_mbps, uptime_percentage, is_super_node, is_active, reputation, last_seen
		FROM nodes WHERE is_active = true
	`)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.PeerID, &n.IPAddress, &n.CountryCode, &n.StorageCapacityGB, &n.BandwidthCapacityMbps, &n.UptimePercentage, &n.IsSuperNode, &n.IsActive, &n.Reputation, &n.LastSeen); err != nil {
			return nil, apierr.Catalog.Wrap(err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SetActive flips a node's activity flag, used when the repair engine
// decides to evict or reinstate a peer.
func (s *Store) SetActive(ctx context.Context, peerID string, active bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE nodes SET is_active = $1 WHERE peer_id = $2`, active, peerID)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}
