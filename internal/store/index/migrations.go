package index

import (
	"fmt"

	"github.com/quarrylabs/skillstore/internal/log"
)

// migrations are applied in order; PRAGMA user_version tracks the last
// applied index. Each entry must be a single idempotent DDL batch.
var migrations = []string{
	// 1: core tables
	`
	CREATE TABLE skills (
		id TEXT NOT NULL,
		layer TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL,
		requires TEXT NOT NULL DEFAULT '[]',
		provides TEXT NOT NULL DEFAULT '[]',
		deprecated_by TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		sections TEXT NOT NULL DEFAULT '[]',
		last_tx_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		deleted_at INTEGER,
		PRIMARY KEY (id, layer)
	);

	CREATE INDEX idx_skills_id ON skills(id);
	CREATE INDEX idx_skills_layer ON skills(layer);

	CREATE TABLE aliases (
		source TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'rename',
		last_tx_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE tombstones (
		skill_id TEXT NOT NULL,
		layer TEXT NOT NULL,
		content_hash TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		last_tx_id TEXT NOT NULL DEFAULT '',
		deleted_at INTEGER NOT NULL,
		PRIMARY KEY (skill_id, layer)
	);

	CREATE TABLE tx_log (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX idx_tx_log_phase ON tx_log(phase);
	`,
	// 2: monotonic transaction counter high-water mark, survives restarts
	`
	CREATE TABLE tx_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_unix_nanos INTEGER NOT NULL DEFAULT 0,
		last_counter INTEGER NOT NULL DEFAULT 0
	);
	INSERT INTO tx_sequence (id, last_unix_nanos, last_counter) VALUES (1, 0, 0);
	`,
}

func (d *DB) migrate() error {
	var version int
	if err := d.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("indexed store schema version %d is newer than this build supports (%d)", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := d.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		// PRAGMA cannot be parameterized
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bumping schema version to %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", i+1, err)
		}
		log.Info(log.CatDB, "applied schema migration", "version", i+1)
	}
	return nil
}

// SchemaVersion returns the current PRAGMA user_version.
func (d *DB) SchemaVersion() (int, error) {
	var version int
	err := d.db.QueryRow(`PRAGMA user_version`).Scan(&version)
	return version, err
}
