// Package db provides the sqlite-backed storage layer for probes,
// activities and Strava upload state. The schema is owned by the numbered
// migrations under migrations/ and applied through golang-migrate.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/ride.report/internal/monitoring"
)

// ErrNotFound reports a lookup that matched no row. Store methods wrap it
// with the entity and id so handlers can map it to 404 with errors.Is.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the database at path and brings the
// schema up to date. A fresh database is migrated to the latest version
// automatically; an existing database that is behind returns an error
// directing the operator to run 'ride-report migrate up'.
func NewDB(path string) (*DB, error) {
	return NewDBWithMigrationCheck(path, true)
}

// NewDBWithMigrationCheck opens the database at path. When checkMigrations
// is false an out-of-date schema is tolerated; fresh databases still get
// the full schema applied.
func NewDBWithMigrationCheck(path string, checkMigrations bool) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	if err := db.ensureSchema(checkMigrations); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenDB opens the database and applies the connection pragmas without any
// schema management. The migrate CLI uses this to operate on databases
// mid-upgrade.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas are per connection and the ingestion path is single-writer,
	// so the pool is capped at one connection. This also keeps :memory:
	// databases on a single schema instance.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.applyPragmas(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// applyPragmas sets the connection pragmas every database handle needs:
// WAL journaling, a busy timeout so concurrent readers don't fail fast,
// NORMAL fsync, in-memory temp tables and enforced foreign keys.
func (db *DB) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	return nil
}

// ensureSchema verifies the migration state and applies the full schema to
// fresh databases. With strict set, a database behind the latest migration
// is an error rather than an automatic upgrade.
func (db *DB) ensureSchema(strict bool) error {
	migFS, err := getMigrationsFS()
	if err != nil {
		return err
	}

	version, dirty, err := db.MigrateVersion(migFS)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty migration state (version %d); run 'ride-report migrate status' to diagnose", version)
	}

	latest, err := GetLatestMigrationVersion(migFS)
	if err != nil {
		return err
	}

	switch {
	case version == latest:
		return nil
	case version > latest:
		return fmt.Errorf("database version (%d) is ahead of latest migration (%d)", version, latest)
	case version == 0:
		// Fresh database: apply the full schema.
		return db.MigrateUp(migFS)
	case !strict:
		return nil
	default:
		return fmt.Errorf("database schema is out of date (version %d, need %d); run 'ride-report migrate up'", version, latest)
	}
}

// Tx wraps sql.Tx so the write-path store methods can run inside a single
// caller-managed transaction.
type Tx struct {
	*sql.Tx
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			monitoring.Logf("transaction rollback failed: %v", err)
		}
	}()

	if err := fn(&Tx{tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
