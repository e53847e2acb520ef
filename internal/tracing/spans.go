package tracing

// Span attribute keys for registry tracing.
const (
	// Transaction attributes
	AttrTxID    = "tx.id"
	AttrTxPhase = "tx.phase"
	AttrTxKind  = "tx.kind"

	// Entity attributes
	AttrSkillID    = "skill.id"
	AttrSkillLayer = "skill.layer"
	AttrEntityType = "entity.type"

	// Resolution attributes
	AttrConflictCount = "resolution.conflicts"
	AttrLayerCount    = "resolution.layers"
	AttrCacheHit      = "resolution.cache_hit"

	// Lock attributes
	AttrLockWaitMs = "lock.wait_ms"
	AttrLockStale  = "lock.reclaimed_stale"

	// Recovery attributes
	AttrRecoveredForward = "recovery.rolled_forward"
	AttrRecoveredBack    = "recovery.rolled_back"

	// Error attributes
	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// Span name prefixes for consistent naming.
const (
	SpanPrefixWrite   = "store.write."
	SpanPrefixResolve = "registry.resolve"
	SpanPrefixRecover = "store.recover"
	SpanPrefixRepair  = "store.repair"
)

// Event names for span events.
const (
	EventLockAcquired     = "lock.acquired"
	EventIndexCommitted   = "index.committed"
	EventArchiveCommitted = "archive.committed"
	EventTxFinalized      = "tx.finalized"
	EventTxRolledBack     = "tx.rolled_back"
)
