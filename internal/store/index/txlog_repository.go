package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TxRow is the persisted form of a transaction record. The txn package owns
// the lifecycle; this table is the durable write-ahead log.
type TxRow struct {
	ID         string
	EntityType string
	EntityID   string
	Phase      string
	Payload    string
	CreatedAt  int64
	UpdatedAt  int64
}

// AllocateTxID returns the next transaction id: unix nanoseconds plus a
// tie-breaking counter, persisted as a high-water mark so ids stay monotonic
// across process restarts even if the clock steps backwards.
func (d *DB) AllocateTxID() (string, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning tx id allocation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lastNanos, lastCounter int64
	if err := tx.QueryRow(
		`SELECT last_unix_nanos, last_counter FROM tx_sequence WHERE id = 1`,
	).Scan(&lastNanos, &lastCounter); err != nil {
		return "", fmt.Errorf("reading tx sequence: %w", err)
	}

	nanos := time.Now().UnixNano()
	var counter int64
	switch {
	case nanos > lastNanos:
		counter = 0
	default:
		// Clock did not advance (or stepped back): keep the old timestamp
		// and bump the counter so the total order is preserved.
		nanos = lastNanos
		counter = lastCounter + 1
	}

	if _, err := tx.Exec(
		`UPDATE tx_sequence SET last_unix_nanos = ?, last_counter = ? WHERE id = 1`,
		nanos, counter,
	); err != nil {
		return "", fmt.Errorf("advancing tx sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing tx id allocation: %w", err)
	}

	return fmt.Sprintf("%020d-%06d", nanos, counter), nil
}

// InsertTxRecord durably records a transaction before any backend is touched.
func (d *DB) InsertTxRecord(row TxRow) error {
	_, err := d.db.Exec(
		`INSERT INTO tx_log (id, entity_type, entity_id, phase, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		row.ID, row.EntityType, row.EntityID, row.Phase, row.Payload, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting tx record %s: %w", row.ID, err)
	}
	return nil
}

// UpdateTxPhase advances a transaction record one phase.
func (d *DB) UpdateTxPhase(id, phase string) error {
	res, err := d.db.Exec(
		`UPDATE tx_log SET phase = ?, updated_at = ? WHERE id = ?`,
		phase, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("updating tx %s phase to %s: %w", id, phase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking tx phase update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTxRecord retrieves a transaction record by id.
func (d *DB) GetTxRecord(id string) (*TxRow, error) {
	var row TxRow
	err := d.db.QueryRow(
		`SELECT id, entity_type, entity_id, phase, payload, created_at, updated_at
		 FROM tx_log WHERE id = ?`, id,
	).Scan(&row.ID, &row.EntityType, &row.EntityID, &row.Phase, &row.Payload, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting tx record %s: %w", id, err)
	}
	return &row, nil
}

// ListUnfinishedTx returns records whose phase is neither terminal state,
// ordered by id so recovery replays in the original total order.
func (d *DB) ListUnfinishedTx(finalPhases ...string) ([]TxRow, error) {
	query := `SELECT id, entity_type, entity_id, phase, payload, created_at, updated_at FROM tx_log`
	args := []any{}
	if len(finalPhases) > 0 {
		query += ` WHERE phase NOT IN (?` + strings.Repeat(",?", len(finalPhases)-1) + `)`
		for _, p := range finalPhases {
			args = append(args, p)
		}
	}
	query += ` ORDER BY id`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing unfinished transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TxRow
	for rows.Next() {
		var row TxRow
		if err := rows.Scan(&row.ID, &row.EntityType, &row.EntityID, &row.Phase, &row.Payload, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning tx row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tx rows: %w", err)
	}
	return out, nil
}

// DeleteTxRecord garbage-collects a terminal transaction record.
func (d *DB) DeleteTxRecord(id string) error {
	_, err := d.db.Exec(`DELETE FROM tx_log WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting tx record %s: %w", id, err)
	}
	return nil
}
