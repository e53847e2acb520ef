// Package txn implements the two-phase write path across the indexed store
// and the content archive. Every mutation is journaled before any backend is
// touched; the journal plus idempotent backend writes make crash recovery a
// deterministic replay.
package txn

// Phase is the lifecycle state of a transaction record.
type Phase string

const (
	// PhasePrepared means the payload is durably journaled but no backend
	// has been touched yet.
	PhasePrepared Phase = "prepared"
	// PhaseIndexCommitted means the indexed store accepted the write.
	PhaseIndexCommitted Phase = "index_committed"
	// PhaseArchiveCommitted means the content archive accepted the write.
	PhaseArchiveCommitted Phase = "archive_committed"
	// PhaseFinalized is the terminal success state.
	PhaseFinalized Phase = "finalized"
	// PhaseRolledBack is the terminal failure state: a backend definitively
	// rejected the write and compensation ran.
	PhaseRolledBack Phase = "rolled_back"
)

// Terminal reports whether the phase ends the transaction lifecycle.
func (p Phase) Terminal() bool {
	return p == PhaseFinalized || p == PhaseRolledBack
}
