package catalog

import (
	"context"

	"github.com/jackc/pgx/v4"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// CreateBucket inserts a new bucket row, or does nothing if name is already
// taken — PUT provisions a container for the caller on first use rather
// than requiring a separate create step.
func (s *Store) CreateBucket(ctx context.Context, name, ownerEmail string, dedupEnabled bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO buckets (name, owner_email, dedup_enabled) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`, name, ownerEmail, dedupEnabled)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// BucketExists reports whether a bucket with name exists.
func (s *Store) BucketExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM buckets WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, apierr.Catalog.Wrap(err)
	}
	return exists, nil
}

// BucketDedupEnabled reports whether bucket has cross-user content
// deduplication enabled. Missing buckets report false.
func (s *Store) BucketDedupEnabled(ctx context.Context, name string) (bool, error) {
	var enabled bool
	err := s.pool.QueryRow(ctx, `SELECT dedup_enabled FROM buckets WHERE name = $1`, name).Scan(&enabled)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apierr.Catalog.Wrap(err)
	}
	return enabled, nil
}

// SetBucketDedup flips a bucket's cross-user deduplication setting. Only
// affects objects written after the change; already-stored content hashes
// are never recomputed.
func (s *Store) SetBucketDedup(ctx context.Context, name string, enabled bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE buckets SET dedup_enabled = $1 WHERE name = $2`, enabled, name)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// CountryDistribution is one row of a sovereignty/compliance report: the
// number of a bucket's shard placements that landed in one country.
type CountryDistribution struct {
	CountryCode string
	ShardCount  int64
}

// SovereigntyReport aggregates the country_code distribution across every
// placement row for every object in bucket.
func (s *Store) SovereigntyReport(ctx context.Context, bucket string) ([]CountryDistribution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT os.country_code, COUNT(*)
		FROM object_shards os
		JOIN objects o ON o.cid = os.object_cid
		WHERE o.bucket = $1
		GROUP BY os.country_code
		ORDER BY COUNT(*) DESC
	`, bucket)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	defer rows.Close()

	var out []CountryDistribution
	for rows.Next() {
		var d CountryDistribution
		if err := rows.Scan(&d.CountryCode, &d.ShardCount); err != nil {
			return nil, apierr.Catalog.Wrap(err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
