package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quarrylabs/skillstore/internal/skill"
)

// InsertTombstone records a logical deletion and soft-deletes the matching
// skill row in one local transaction. Idempotent per transaction id.
func (d *DB) InsertTombstone(t *skill.Tombstone, txID string) error {
	var existingTx string
	err := d.db.QueryRow(
		`SELECT last_tx_id FROM tombstones WHERE skill_id = ? AND layer = ?`,
		t.SkillID, string(t.Layer),
	).Scan(&existingTx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking existing tombstone: %w", err)
	}
	if err == nil && existingTx == txID {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning tombstone write: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO tombstones (skill_id, layer, content_hash, reason, last_tx_id, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(skill_id, layer) DO UPDATE SET
			content_hash = excluded.content_hash,
			reason = excluded.reason,
			last_tx_id = excluded.last_tx_id,
			deleted_at = excluded.deleted_at`,
		t.SkillID, string(t.Layer), t.ContentHash, t.Reason, txID, t.DeletedAt.Unix(),
	)
	if err == nil {
		_, err = tx.Exec(
			`UPDATE skills SET deleted_at = ?, last_tx_id = ? WHERE id = ? AND layer = ?`,
			t.DeletedAt.Unix(), txID, t.SkillID, string(t.Layer),
		)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("writing tombstone %s@%s: %w", t.SkillID, t.Layer, err)
	}
	return tx.Commit()
}

// RemoveTombstone compensates a tombstone insert during rollback, restoring
// the soft-deleted skill row.
func (d *DB) RemoveTombstone(skillID string, layer skill.Layer, txID string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning tombstone rollback: %w", err)
	}
	_, err = tx.Exec(
		`DELETE FROM tombstones WHERE skill_id = ? AND layer = ? AND last_tx_id = ?`,
		skillID, string(layer), txID,
	)
	if err == nil {
		_, err = tx.Exec(
			`UPDATE skills SET deleted_at = NULL WHERE id = ? AND layer = ? AND last_tx_id = ?`,
			skillID, string(layer), txID,
		)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rolling back tombstone %s@%s: %w", skillID, layer, err)
	}
	return tx.Commit()
}

// ListTombstones returns all tombstones ordered by deletion time descending.
func (d *DB) ListTombstones() ([]*skill.Tombstone, error) {
	return d.listTombstonesWhere(``)
}

// ListTombstonesOlderThan returns tombstones deleted before the cutoff,
// candidates for explicit physical purge.
func (d *DB) ListTombstonesOlderThan(cutoff time.Time) ([]*skill.Tombstone, error) {
	return d.listTombstonesWhere(` WHERE deleted_at < ?`, cutoff.Unix())
}

func (d *DB) listTombstonesWhere(where string, args ...any) ([]*skill.Tombstone, error) {
	rows, err := d.db.Query(
		`SELECT skill_id, layer, content_hash, reason, last_tx_id, deleted_at FROM tombstones`+
			where+` ORDER BY deleted_at DESC, skill_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tombstones: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*skill.Tombstone
	for rows.Next() {
		var m TombstoneModel
		if err := rows.Scan(&m.SkillID, &m.Layer, &m.ContentHash, &m.Reason, &m.LastTxID, &m.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning tombstone row: %w", err)
		}
		out = append(out, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tombstone rows: %w", err)
	}
	return out, nil
}

// PurgeTombstone physically removes a tombstone and its skill rows.
// This is the explicit purge path, never invoked by the transactional writer.
func (d *DB) PurgeTombstone(skillID string, layer skill.Layer) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning purge: %w", err)
	}
	_, err = tx.Exec(`DELETE FROM tombstones WHERE skill_id = ? AND layer = ?`, skillID, string(layer))
	if err == nil {
		_, err = tx.Exec(`DELETE FROM skills WHERE id = ? AND layer = ?`, skillID, string(layer))
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("purging %s@%s: %w", skillID, layer, err)
	}
	return tx.Commit()
}
