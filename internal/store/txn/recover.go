package txn

import (
	"errors"
	"os"

	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/pubsub"
	"github.com/quarrylabs/skillstore/internal/skill"
	"github.com/quarrylabs/skillstore/internal/store/index"
)

// Report summarizes what recovery did.
type Report struct {
	// RolledForward lists transactions replayed to completion.
	RolledForward []string
	// RolledBack lists transactions that hit a definitive rejection on replay.
	RolledBack []string
	// Collected lists terminal records that were garbage-collected.
	Collected []string
	// Fatal lists records recovery could not replay. They are left in place.
	Fatal []string
}

// Clean reports whether the log held no unfinished work.
func (r *Report) Clean() bool {
	return len(r.RolledForward) == 0 && len(r.RolledBack) == 0 && len(r.Fatal) == 0
}

// errPreparedAtRecovery is the recorded cause when a prepared record is
// discarded at recovery instead of applied.
var errPreparedAtRecovery = errors.New("found in prepared phase at recovery")

// Recover drains the transaction log. Records that reached a backend are
// replayed from their captured payload, never from current state; records
// still in the prepared phase are discarded; finalized records are
// garbage-collected. Safe to run any number of times.
func (t *Manager) Recover() (*Report, error) {
	rows, err := t.db.ListUnfinishedTx()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var fatals []error

	for _, row := range rows {
		phase := Phase(row.Phase)
		if phase.Terminal() {
			// Only finalized records are collected. Rolled-back records stay
			// in the log as the audit trail of the rejection.
			if phase == PhaseFinalized {
				if err := t.db.DeleteTxRecord(row.ID); err != nil {
					return report, err
				}
				t.removeJournal(row.ID)
				report.Collected = append(report.Collected, row.ID)
			}
			continue
		}

		m, derr := t.decodePayload(row)
		if derr != nil {
			log.ErrorErr(log.CatRecover, "transaction payload unusable", derr, "tx", row.ID)
			report.Fatal = append(report.Fatal, row.ID)
			fatals = append(fatals, &FatalError{TxID: row.ID, Cause: derr})
			continue
		}

		var err error
		if phase == PhasePrepared {
			// No backend acknowledged the write and the caller never saw
			// success. Discard instead of applying it late; compensation is
			// keyed by tx id, so it also clears an index write that landed
			// before the phase update could.
			log.Info(log.CatRecover, "discarding prepared transaction", "tx", row.ID)
			err = t.rollback(m, row.ID, errPreparedAtRecovery)
		} else {
			log.Info(log.CatRecover, "resuming transaction", "tx", row.ID, "phase", row.Phase)
			err = t.run(m, row.ID, phase)
		}
		var rejection *RejectionError
		switch {
		case errors.As(err, &rejection):
			report.RolledBack = append(report.RolledBack, row.ID)
		case err != nil:
			return report, err
		default:
			report.RolledForward = append(report.RolledForward, row.ID)
		}

		if t.events != nil {
			t.events.Publish(pubsub.RecoveredEvent, pubsub.WriteNotice{
				TxID:       row.ID,
				EntityType: row.EntityType,
				EntityID:   row.EntityID,
			})
		}
	}

	if !report.Clean() {
		log.Info(log.CatRecover, "recovery complete",
			"rolled_forward", len(report.RolledForward),
			"rolled_back", len(report.RolledBack),
			"fatal", len(report.Fatal))
	}
	return report, errors.Join(fatals...)
}

// decodePayload reconstructs the mutation from the log row, falling back to
// the journal file when the row payload is missing.
func (t *Manager) decodePayload(row index.TxRow) (*skill.Mutation, error) {
	data := []byte(row.Payload)
	if len(data) == 0 {
		var err error
		data, err = os.ReadFile(t.journalPath(row.ID))
		if err != nil {
			return nil, err
		}
	}
	m, err := skill.DecodeMutation(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
