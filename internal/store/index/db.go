// Package index implements the indexed store backend: a SQLite database
// holding the queryable skill rows, aliases, tombstones, and the durable
// transaction log. All mutation entry points are keyed by transaction id so
// recovery replays are detected and skipped.
package index

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/quarrylabs/skillstore/internal/log"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found in indexed store")

// CollisionError reports an identifier-namespace collision. Aliases and
// primary skill IDs share one namespace; inserting either side of an existing
// pairing fails with this error.
type CollisionError struct {
	ID       string
	Existing string // "skill" or "alias"
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("identifier %q collides with an existing %s", e.ID, e.Existing)
}

// DB wraps the SQLite connection for the indexed store.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the indexed store at path and applies pending
// schema migrations. Readers rely on SQLite WAL mode for snapshot reads
// while a writer proceeds.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.ErrorErr(log.CatDB, "failed to open indexed store", err, "path", path)
		return nil, fmt.Errorf("opening indexed store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging indexed store: %w", err)
	}

	d := &DB{db: db, path: path}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info(log.CatDB, "indexed store ready", "path", path)
	return d, nil
}

// OpenMemory opens an in-memory indexed store, used by tests.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	d := &DB{db: db, path: ":memory:"}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// SQL exposes the raw connection for diagnostic queries.
func (d *DB) SQL() *sql.DB {
	return d.db
}
