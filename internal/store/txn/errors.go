package txn

import "fmt"

// RejectionError marks a definitive backend rejection. Unlike transient
// failures it is never retried; the transaction is compensated and rolled
// back.
type RejectionError struct {
	TxID    string
	Backend string
	Cause   error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("transaction %s rejected by %s: %v", e.TxID, e.Backend, e.Cause)
}

func (e *RejectionError) Unwrap() error { return e.Cause }

// FatalError marks a transaction record that recovery cannot replay, usually
// a corrupt payload. The record is left in place for manual inspection.
type FatalError struct {
	TxID  string
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("transaction %s is unrecoverable: %v", e.TxID, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }
