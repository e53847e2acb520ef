package txn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/pubsub"
	"github.com/quarrylabs/skillstore/internal/skill"
	"github.com/quarrylabs/skillstore/internal/store/archive"
	"github.com/quarrylabs/skillstore/internal/store/index"
)

// Manager drives mutations through both backends. The indexed store commits
// first, then the archive; either both apply or compensation removes the
// partial write.
type Manager struct {
	db      *index.DB
	archive *archive.Archive
	journal string
	events  pubsub.Publisher[pubsub.WriteNotice]
}

// NewManager creates a transaction manager with its journal directory under
// root. The events publisher may be nil.
func NewManager(db *index.DB, a *archive.Archive, root string, events pubsub.Publisher[pubsub.WriteNotice]) (*Manager, error) {
	journal := filepath.Join(root, "tx")
	if err := os.MkdirAll(journal, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return &Manager{db: db, archive: a, journal: journal, events: events}, nil
}

// Write applies a mutation to both backends. On success it returns the
// transaction id. A definitive backend rejection returns a RejectionError
// after compensation; any other failure leaves a non-terminal record behind
// for Recover to finish.
func (t *Manager) Write(m *skill.Mutation) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	txID, err := t.db.AllocateTxID()
	if err != nil {
		return "", err
	}

	payload, err := m.Encode()
	if err != nil {
		return "", fmt.Errorf("encoding mutation: %w", err)
	}
	if err := t.writeJournal(txID, payload); err != nil {
		return "", err
	}

	now := time.Now().Unix()
	if err := t.db.InsertTxRecord(index.TxRow{
		ID:         txID,
		EntityType: m.EntityType(),
		EntityID:   m.EntityID(),
		Phase:      string(PhasePrepared),
		Payload:    string(payload),
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.removeJournal(txID)
		return "", err
	}

	log.Debug(log.CatTx, "transaction prepared", "tx", txID, "kind", string(m.Kind), "entity", m.EntityID())
	if err := t.run(m, txID, PhasePrepared); err != nil {
		return txID, err
	}
	return txID, nil
}

// run advances a transaction from the given phase to a terminal state.
// Shared by the write path and recovery; every step is idempotent.
func (t *Manager) run(m *skill.Mutation, txID string, from Phase) error {
	phase := from

	if phase == PhasePrepared {
		if err := t.applyIndex(m, txID); err != nil {
			var collision *index.CollisionError
			if errors.As(err, &collision) {
				return t.rollback(m, txID, err)
			}
			return err
		}
		if err := t.db.UpdateTxPhase(txID, string(PhaseIndexCommitted)); err != nil {
			return err
		}
		phase = PhaseIndexCommitted
	}

	if phase == PhaseIndexCommitted {
		if err := t.archive.Apply(m, txID); err != nil {
			return fmt.Errorf("archive write for tx %s: %w", txID, err)
		}
		if err := t.db.UpdateTxPhase(txID, string(PhaseArchiveCommitted)); err != nil {
			return err
		}
		phase = PhaseArchiveCommitted
	}

	if phase == PhaseArchiveCommitted {
		if err := t.db.UpdateTxPhase(txID, string(PhaseFinalized)); err != nil {
			return err
		}
		t.removeJournal(txID)
		log.Info(log.CatTx, "transaction finalized", "tx", txID, "entity", m.EntityID())
		if t.events != nil {
			t.events.Publish(pubsub.CommittedEvent, pubsub.WriteNotice{
				TxID:       txID,
				EntityType: m.EntityType(),
				EntityID:   m.EntityID(),
			})
		}
	}
	return nil
}

func (t *Manager) applyIndex(m *skill.Mutation, txID string) error {
	switch m.Kind {
	case skill.MutationCreate, skill.MutationUpdate:
		return t.db.UpsertSkill(m.Skill, txID)
	case skill.MutationAlias:
		return t.db.InsertAlias(m.Alias, txID)
	case skill.MutationDelete, skill.MutationTombstone:
		return t.db.InsertTombstone(m.Tombstone, txID)
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

// compensateIndex undoes an index write. Every compensation is keyed on the
// transaction id, so compensating a write that never landed is a no-op.
func (t *Manager) compensateIndex(m *skill.Mutation, txID string) error {
	switch m.Kind {
	case skill.MutationCreate, skill.MutationUpdate:
		return t.db.DeleteSkill(m.Skill.ID, m.Skill.Layer, txID)
	case skill.MutationAlias:
		return t.db.DeleteAlias(m.Alias.Source, txID)
	case skill.MutationDelete, skill.MutationTombstone:
		return t.db.RemoveTombstone(m.Tombstone.SkillID, m.Tombstone.Layer, txID)
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}

func (t *Manager) rollback(m *skill.Mutation, txID string, cause error) error {
	log.Warn(log.CatTx, "rolling back transaction", "tx", txID, "cause", cause.Error())
	if err := t.compensateIndex(m, txID); err != nil {
		return fmt.Errorf("compensating tx %s: %w", txID, err)
	}
	if err := t.db.UpdateTxPhase(txID, string(PhaseRolledBack)); err != nil {
		return err
	}
	t.removeJournal(txID)
	return &RejectionError{TxID: txID, Backend: "index", Cause: cause}
}

func (t *Manager) journalPath(txID string) string {
	return filepath.Join(t.journal, txID+".json")
}

func (t *Manager) writeJournal(txID string, payload []byte) error {
	f, err := os.OpenFile(t.journalPath(txID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating journal for tx %s: %w", txID, err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing journal for tx %s: %w", txID, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing journal for tx %s: %w", txID, err)
	}
	return f.Close()
}

func (t *Manager) removeJournal(txID string) {
	_ = os.Remove(t.journalPath(txID))
}

// Pending returns every non-terminal transaction record, oldest first.
func (t *Manager) Pending() ([]index.TxRow, error) {
	return t.db.ListUnfinishedTx(string(PhaseFinalized), string(PhaseRolledBack))
}
