// Package sqlite provides the embedded SQLite blob store backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"idcore/internal/blob/core"
	"idcore/internal/infra/persistence/sqlobjects"
)

const defaultPath = "idcore.db"

// Dialect is the SQLite flavour of the objects table.
var Dialect = sqlobjects.Dialect{Driver: core.DriverSQLite, PayloadType: "BLOB"}

// NewStore opens (creating if needed) the database at path and returns a blob
// store over its objects table. A single connection serializes writers, which
// keeps conditional updates free of SQLITE_BUSY retries.
func NewStore(ctx context.Context, path string) (*sqlobjects.Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	store, err := sqlobjects.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
