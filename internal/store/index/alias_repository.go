package index

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/skill"
)

// InsertAlias writes an alias row. The source must not collide with any
// primary skill ID or existing alias; collisions are a definitive backend
// rejection, not a retryable failure. Idempotent per transaction id.
func (d *DB) InsertAlias(a *skill.Alias, txID string) error {
	var existingTx string
	err := d.db.QueryRow(`SELECT last_tx_id FROM aliases WHERE source = ?`, a.Source).Scan(&existingTx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking existing alias: %w", err)
	}
	if err == nil {
		if existingTx == txID {
			log.Debug(log.CatDB, "alias already written by tx, skipping", "source", a.Source, "tx", txID)
			return nil
		}
		return &CollisionError{ID: a.Source, Existing: "alias"}
	}

	if collides, cerr := d.skillIDExists(a.Source); cerr != nil {
		return cerr
	} else if collides {
		return &CollisionError{ID: a.Source, Existing: "skill"}
	}

	_, err = d.db.Exec(
		`INSERT INTO aliases (source, target, kind, last_tx_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.Source, a.Target, string(a.Kind), txID, a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting alias %s: %w", a.Source, err)
	}
	return nil
}

// DeleteAlias compensates an alias insert during rollback.
func (d *DB) DeleteAlias(source, txID string) error {
	_, err := d.db.Exec(`DELETE FROM aliases WHERE source = ? AND last_tx_id = ?`, source, txID)
	if err != nil {
		return fmt.Errorf("deleting alias %s: %w", source, err)
	}
	return nil
}

// GetAlias looks up an alias by source identifier.
func (d *DB) GetAlias(source string) (*skill.Alias, error) {
	var m AliasModel
	err := d.db.QueryRow(
		`SELECT source, target, kind, last_tx_id, created_at FROM aliases WHERE source = ?`,
		source,
	).Scan(&m.Source, &m.Target, &m.Kind, &m.LastTxID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting alias %s: %w", source, err)
	}
	return m.toDomain(), nil
}

// ListAliases returns all aliases ordered by source.
func (d *DB) ListAliases() ([]*skill.Alias, error) {
	rows, err := d.db.Query(
		`SELECT source, target, kind, last_tx_id, created_at FROM aliases ORDER BY source`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*skill.Alias
	for rows.Next() {
		var m AliasModel
		if err := rows.Scan(&m.Source, &m.Target, &m.Kind, &m.LastTxID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning alias row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alias rows: %w", err)
	}
	return out, nil
}

// aliasExists reports whether source is taken by an alias.
func (d *DB) aliasExists(source string) (bool, error) {
	var one int
	err := d.db.QueryRow(`SELECT 1 FROM aliases WHERE source = ?`, source).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking alias namespace: %w", err)
	}
	return true, nil
}

// skillIDExists reports whether id is taken by a live primary skill at any layer.
func (d *DB) skillIDExists(id string) (bool, error) {
	var one int
	err := d.db.QueryRow(`SELECT 1 FROM skills WHERE id = ? AND deleted_at IS NULL LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking skill namespace: %w", err)
	}
	return true, nil
}
