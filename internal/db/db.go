// Package db opens the Postgres handle backing the catalog's sync-run
// audit log and rolls its schema forward at startup. Postgres is never the
// catalog's store of record; the package store stays file-based, so the
// pool here is sized for synchistory's one-row-per-run writes and the
// admin API's recent-runs listing, nothing more.
package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to databaseURL and verifies the connection with a ping.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	// Audit-log traffic only: a handful of connections is plenty, and idle
	// ones can be reclaimed between sync runs.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	log.Println("audit database connected")
	return db, nil
}

// MigrateUp applies every pending *.up.sql under dir in lexical order,
// recording each applied version in catalog_schema_migrations. Each
// migration runs in its own transaction so a failing statement leaves
// neither a half-applied migration nor a bookkeeping row behind. After the
// roll-forward it verifies the sync_runs table the audit log writes to
// actually exists, so a misconfigured migrations dir fails at startup
// instead of at the end of the first sync.
func MigrateUp(db *sql.DB, dir string) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS catalog_schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("db: create migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("db: glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		version := strings.TrimSuffix(filepath.Base(f), ".up.sql")

		var applied bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM catalog_schema_migrations WHERE version=$1)", version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("db: check migration %s: %w", version, err)
		}
		if applied {
			continue
		}

		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("db: read migration %s: %w", version, err)
		}

		log.Printf("applying migration: %s", version)
		if err := applyOne(db, version, string(content)); err != nil {
			return err
		}
	}

	return verifySyncSchema(db)
}

func applyOne(db *sql.DB, version, statements string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("db: begin migration %s: %w", version, err)
	}
	if _, err := tx.Exec(statements); err != nil {
		tx.Rollback()
		return fmt.Errorf("db: apply %s: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO catalog_schema_migrations (version) VALUES ($1)", version); err != nil {
		tx.Rollback()
		return fmt.Errorf("db: record %s: %w", version, err)
	}
	return tx.Commit()
}

// verifySyncSchema confirms the sync_runs table is present once
// migrations have run; synchistory assumes it without checking.
func verifySyncSchema(db *sql.DB) error {
	var regclass sql.NullString
	if err := db.QueryRow("SELECT to_regclass('sync_runs')").Scan(&regclass); err != nil {
		return fmt.Errorf("db: verify sync schema: %w", err)
	}
	if !regclass.Valid {
		return fmt.Errorf("db: sync_runs table missing after migration; check MIGRATIONS_PATH")
	}
	return nil
}
