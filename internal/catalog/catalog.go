// Package catalog is the relational record of what exists where: objects,
// their shard placements, known nodes, proof-of-possession challenges, and
// the append-only residency evidence log. It is a thin layer over
// hand-written SQL — no ORM, matching the style of the rest of this
// module's storage code.
package catalog

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// Store is a pooled connection to the catalog database.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn (a standard postgres connection string) and returns
// a Store backed by a connection pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies connectivity, used by the gateway's /readyz handler.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}
