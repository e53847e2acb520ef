package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/skill"
)

// skillColumns is the list of columns to select for skill queries.
const skillColumns = `id, layer, name, version, description, content_hash,
	requires, provides, deprecated_by, metadata, sections, last_tx_id,
	created_at, updated_at, deleted_at`

// scanSkill scans a row into a SkillModel.
func scanSkill(scanner interface{ Scan(...any) error }) (*SkillModel, error) {
	var m SkillModel
	err := scanner.Scan(
		&m.ID, &m.Layer, &m.Name, &m.Version, &m.Description, &m.ContentHash,
		&m.Requires, &m.Provides, &m.DeprecatedBy, &m.Metadata, &m.Sections, &m.LastTxID,
		&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt,
	)
	return &m, err
}

// UpsertSkill writes a skill row keyed by (id, layer). The write is
// idempotent per transaction: if the row already carries txID, it is skipped
// so recovery can replay safely.
func (d *DB) UpsertSkill(s *skill.Skill, txID string) error {
	var existingTx string
	err := d.db.QueryRow(
		`SELECT last_tx_id FROM skills WHERE id = ? AND layer = ?`,
		s.ID, string(s.Layer),
	).Scan(&existingTx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking existing skill row: %w", err)
	}
	if err == nil && existingTx == txID {
		log.Debug(log.CatDB, "skill row already written by tx, skipping", "id", s.ID, "tx", txID)
		return nil
	}

	// Aliases and primary IDs share one namespace.
	if collides, cerr := d.aliasExists(s.ID); cerr != nil {
		return cerr
	} else if collides {
		return &CollisionError{ID: s.ID, Existing: "alias"}
	}

	model, err := toSkillModel(s, txID)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		`INSERT INTO skills (
			id, layer, name, version, description, content_hash,
			requires, provides, deprecated_by, metadata, sections, last_tx_id,
			created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id, layer) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			description = excluded.description,
			content_hash = excluded.content_hash,
			requires = excluded.requires,
			provides = excluded.provides,
			deprecated_by = excluded.deprecated_by,
			metadata = excluded.metadata,
			sections = excluded.sections,
			last_tx_id = excluded.last_tx_id,
			updated_at = excluded.updated_at,
			deleted_at = NULL`,
		model.ID, model.Layer, model.Name, model.Version, model.Description, model.ContentHash,
		model.Requires, model.Provides, model.DeprecatedBy, model.Metadata, model.Sections, model.LastTxID,
		model.CreatedAt, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting skill %s@%s: %w", s.ID, s.Layer, err)
	}

	// Re-creating a skill clears any tombstone left by a prior delete.
	if _, err := d.db.Exec(
		`DELETE FROM tombstones WHERE skill_id = ? AND layer = ?`,
		s.ID, string(s.Layer),
	); err != nil {
		return fmt.Errorf("clearing tombstone for %s@%s: %w", s.ID, s.Layer, err)
	}
	return nil
}

// DeleteSkill compensates a skill upsert during rollback: the row is removed
// only when it was written by the given transaction.
func (d *DB) DeleteSkill(id string, layer skill.Layer, txID string) error {
	_, err := d.db.Exec(
		`DELETE FROM skills WHERE id = ? AND layer = ? AND last_tx_id = ?`,
		id, string(layer), txID,
	)
	if err != nil {
		return fmt.Errorf("deleting skill %s@%s: %w", id, layer, err)
	}
	return nil
}

// MarkDeleted soft-deletes a skill row as part of a tombstone write.
// Idempotent per transaction id.
func (d *DB) MarkDeleted(id string, layer skill.Layer, txID string, deletedAt time.Time) error {
	_, err := d.db.Exec(
		`UPDATE skills SET deleted_at = ?, last_tx_id = ?
		 WHERE id = ? AND layer = ? AND (deleted_at IS NULL OR last_tx_id = ?)`,
		deletedAt.Unix(), txID, id, string(layer), txID,
	)
	if err != nil {
		return fmt.Errorf("marking skill %s@%s deleted: %w", id, layer, err)
	}
	return nil
}

// GetSkill retrieves a skill by ID at a specific layer.
// Soft-deleted rows are not returned.
func (d *DB) GetSkill(id string, layer skill.Layer) (*skill.Skill, error) {
	row := d.db.QueryRow(
		`SELECT `+skillColumns+` FROM skills WHERE id = ? AND layer = ? AND deleted_at IS NULL`,
		id, string(layer),
	)
	m, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting skill %s@%s: %w", id, layer, err)
	}
	return m.toDomain()
}

// GetSkillAnyLayer returns every layer's definition for an ID, unordered.
func (d *DB) GetSkillAnyLayer(id string) ([]*skill.Skill, error) {
	rows, err := d.db.Query(
		`SELECT `+skillColumns+` FROM skills WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing layers for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()
	return collectSkills(rows)
}

// ListFilter narrows ListSkills results.
type ListFilter struct {
	Layer             skill.Layer // empty = all layers
	IncludeDeleted    bool
	IncludeDeprecated bool
}

// ListSkills retrieves skills matching the filter, ordered by id then layer
// for deterministic output.
func (d *DB) ListSkills(filter ListFilter) ([]*skill.Skill, error) {
	query := `SELECT ` + skillColumns + ` FROM skills WHERE 1=1`
	args := []any{}

	if filter.Layer != "" {
		query += ` AND layer = ?`
		args = append(args, string(filter.Layer))
	}
	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if !filter.IncludeDeprecated {
		query += ` AND deprecated_by = ''`
	}
	query += ` ORDER BY id, layer`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing skills: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectSkills(rows)
}

// SkillRowTx returns the last transaction id recorded for a skill row, or
// ErrNotFound. Used by recovery to decide whether Backend A needs a replay.
func (d *DB) SkillRowTx(id string, layer skill.Layer) (string, error) {
	var txID string
	err := d.db.QueryRow(
		`SELECT last_tx_id FROM skills WHERE id = ? AND layer = ?`,
		id, string(layer),
	).Scan(&txID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading skill row tx: %w", err)
	}
	return txID, nil
}

func collectSkills(rows *sql.Rows) ([]*skill.Skill, error) {
	var out []*skill.Skill
	for rows.Next() {
		m, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning skill row: %w", err)
		}
		s, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating skill rows: %w", err)
	}
	return out, nil
}
