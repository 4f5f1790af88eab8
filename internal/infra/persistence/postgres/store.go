// Package postgres provides the PostgreSQL blob store backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"idcore/internal/blob/core"
	"idcore/internal/infra/persistence/sqlobjects"
)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with the storage factory defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/idcore?sslmode=disable"
)

// Dialect is the PostgreSQL flavour of the objects table.
var Dialect = sqlobjects.Dialect{Driver: core.DriverPostgres, PayloadType: "BYTEA", Numbered: true}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// NewStore opens a Postgres-backed blob store using the provided DSN (falls back
// to defaultDSN) and ensures the objects table exists.
func NewStore(ctx context.Context, dsn string) (*sqlobjects.Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := sqlobjects.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
