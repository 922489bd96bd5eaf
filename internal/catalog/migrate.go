package catalog

import (
	"context"
	_ "embed"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies schema.sql against the connected database. Every
// statement in schema.sql is CREATE TABLE/INDEX IF NOT EXISTS, so this is
// safe to run repeatedly against an already-migrated database.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}
