package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// Object is one row of the objects table.
type Object struct {
	Bucket             string
	Key                string
	ETag               string
	CID                string
	Shards             int
	RecoveryThreshold  int
	Size               int64
	MetadataJSON       json.RawMessage
	ManifestMigratedFrom string
	CreatedAt          time.Time
}

// PutObject inserts or replaces the catalog row for one object. A replace
// happens on overwrite PUT of an existing (bucket, key).
func (s *Store) PutObject(ctx context.Context, o Object) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO objects (bucket, key, etag, cid, shards, recovery_threshold, size, metadata_json, manifest_migrated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (bucket, key) DO UPDATE SET
			etag = excluded.etag,
			cid = excluded.cid,
			shards = excluded.shards,
			recovery_threshold = excluded.recovery_threshold,
			size = excluded.size,
			metadata_json = excluded.metadata_json,
			manifest_migrated_from = excluded.manifest_migrated_from
	`, o.Bucket, o.Key, o.ETag, o.CID, o.Shards, o.RecoveryThreshold, o.Size, o.MetadataJSON, nullableString(o.ManifestMigratedFrom))
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// GetObject fetches one object's catalog row.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (Object, bool, error) {
	var o Object
	var migratedFrom *string
	err := s.pool.QueryRow(ctx, `
		SELECT bucket, key, etag, cid, shards, recovery_threshold, size, metadata_json, manifest_migrated_from, created_at
		FROM objects WHERE bucket = $1 AND key = $2
	`, bucket, key).Scan(&o.Bucket, &o.Key, &o.ETag, &o.CID, &o.Shards, &o.RecoveryThreshold, &o.Size, &o.MetadataJSON, &migratedFrom, &o.CreatedAt)
	if err == pgx.ErrNoRows {
		return Object{}, false, nil
	}
	if err != nil {
		return Object{}, false, apierr.Catalog.Wrap(err)
	}
	if migratedFrom != nil {
		o.ManifestMigratedFrom = *migratedFrom
	}
	return o, true, nil
}

// GetObjectByCID fetches an object's catalog row by its content-addressed
// CID rather than its (bucket, key) pair, used by the repair sweeper which
// only ever learns about degraded objects by CID.
func (s *Store) GetObjectByCID(ctx context.Context, cid string) (Object, bool, error) {
	var o Object
	var migratedFrom *string
	err := s.pool.QueryRow(ctx, `
		SELECT bucket, key, etag, cid, shards, recovery_threshold, size, metadata_json, manifest_migrated_from, created_at
		FROM objects WHERE cid = $1
	`, cid).Scan(&o.Bucket, &o.Key, &o.ETag, &o.CID, &o.Shards, &o.RecoveryThreshold, &o.Size, &o.MetadataJSON, &migratedFrom, &o.CreatedAt)
	if err == pgx.ErrNoRows {
		return Object{}, false, nil
	}
	if err != nil {
		return Object{}, false, apierr.Catalog.Wrap(err)
	}
	if migratedFrom != nil {
		o.ManifestMigratedFrom = *migratedFrom
	}
	return o, true, nil
}

// UpdateObjectMetadata overwrites only the metadata blob column, used by
// the cryptographic-shred step of delete to destroy the wrapped content key
// before the row itself is removed.
func (s *Store) UpdateObjectMetadata(ctx context.Context, bucket, key string, metadataJSON json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `UPDATE objects SET metadata_json = $1 WHERE bucket = $2 AND key = $3`, metadataJSON, bucket, key)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// UpdateObjectShardCount raises an object's target shard count, used when
// the repair sweeper widens a hot object's redundancy beyond its original
// placement. It is a one-way ratchet at the call site (repair never shrinks
// a shard count), but the column itself accepts any value.
func (s *Store) UpdateObjectShardCount(ctx context.Context, cid string, shards int) error {
	_, err := s.pool.Exec(ctx, `UPDATE objects SET shards = $1 WHERE cid = $2`, shards, cid)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// DeleteObject removes the catalog row and its shard placement rows.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	defer tx.Rollback(ctx)

	var cid string
	err = tx.QueryRow(ctx, `SELECT cid FROM objects WHERE bucket = $1 AND key = $2`, bucket, key).Scan(&cid)
	if err == pgx.ErrNoRows {
		return apierr.NotFound.New("object %s/%s", bucket, key)
	}
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM object_shards WHERE object_cid = $1`, cid); err != nil {
		return apierr.Catalog.Wrap(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM objects WHERE bucket = $1 AND key = $2`, bucket, key); err != nil {
		return apierr.Catalog.Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// ListObjects returns up to maxKeys objects in bucket whose key starts with
// prefix, ordered by key, starting strictly after startAfter. This backs
// the path-style GET /{bucket} listing surface.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix, startAfter string, maxKeys int) ([]Object, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT bucket, key, etag, cid, shards, recovery_threshold, size, metadata_json, created_at
		FROM objects
		WHERE bucket = $1 AND key LIKE $2 || '%' AND key > $3
		ORDER BY key
		LIMIT $4
	`, bucket, prefix, startAfter, maxKeys)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.Bucket, &o.Key, &o.ETag, &o.CID, &o.Shards, &o.RecoveryThreshold, &o.Size, &o.MetadataJSON, &o.CreatedAt); err != nil {
			return nil, apierr.Catalog.Wrap(err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	return out, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
