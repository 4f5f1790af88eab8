package blob

import (
	"context"

	"idcore/internal/infra/persistence/postgres"
	"idcore/internal/infra/persistence/sqlite"
)

// NewSQLite opens an SQLite-backed blob.Store at path.
func NewSQLite(ctx context.Context, path string) (Store, error) {
	return sqlite.NewStore(ctx, path)
}

// NewPostgres opens a PostgreSQL-backed blob.Store using dsn.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	return postgres.NewStore(ctx, dsn)
}
