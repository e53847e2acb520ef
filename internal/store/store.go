// Package store is the assembled registry: the indexed store, the content
// archive, the transaction manager, the global lock, and the layered
// resolver behind one façade. Writers funnel through the global lock and the
// two-backend write path; readers never block on either.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quarrylabs/skillstore/internal/cachemanager"
	"github.com/quarrylabs/skillstore/internal/config"
	"github.com/quarrylabs/skillstore/internal/flags"
	"github.com/quarrylabs/skillstore/internal/graph"
	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/pubsub"
	"github.com/quarrylabs/skillstore/internal/registry"
	"github.com/quarrylabs/skillstore/internal/skill"
	"github.com/quarrylabs/skillstore/internal/store/archive"
	"github.com/quarrylabs/skillstore/internal/store/index"
	"github.com/quarrylabs/skillstore/internal/store/lock"
	"github.com/quarrylabs/skillstore/internal/store/txn"
	"github.com/quarrylabs/skillstore/internal/tracing"
)

const (
	indexFilename  = "index.db"
	archiveDirname = "archive"
)

// Store is the assembled skill registry rooted at one directory.
type Store struct {
	root     string
	cfg      config.Config
	db       *index.DB
	archive  *archive.Archive
	txns     *txn.Manager
	locks    *lock.Coordinator
	registry *registry.Registry
	broker   *pubsub.Broker[pubsub.WriteNotice]
	tracer   trace.Tracer
	provider *tracing.Provider
	cancel   context.CancelFunc
}

// options collects optional overrides for Open.
type options struct {
	executor archive.Executor
}

// Option configures Open.
type Option func(*options)

// WithExecutor overrides the git executor used by the content archive.
// Tests use this to avoid shelling out.
func WithExecutor(e archive.Executor) Option {
	return func(o *options) { o.executor = e }
}

// Open assembles the store at cfg.Root, applies schema migrations, and runs
// crash recovery under the global lock before returning.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("registry root is not configured")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := index.Open(filepath.Join(cfg.Root, indexFilename))
	if err != nil {
		return nil, err
	}

	archiveRoot := filepath.Join(cfg.Root, archiveDirname)
	exec := o.executor
	if exec == nil {
		exec = archive.NewRealExecutor(archiveRoot)
	}
	arc, err := archive.Open(archiveRoot, exec)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	broker := pubsub.NewBroker[pubsub.WriteNotice]()
	txns, err := txn.NewManager(db, arc, cfg.Root, broker)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	order, err := layerOrder(cfg.LayerOrder)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	regOpts, err := registryOptions(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = filepath.Join(cfg.Root, "traces", "traces.jsonl")
	}
	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		root:     cfg.Root,
		cfg:      cfg,
		db:       db,
		archive:  arc,
		txns:     txns,
		locks:    lock.NewCoordinator(cfg.Root),
		registry: registry.New(db, order, regOpts...),
		broker:   broker,
		tracer:   provider.Tracer(),
		provider: provider,
	}

	// Drain the log before serving anything.
	if err := s.recoverUnderLock(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	fl := flags.New(cfg.Flags)
	if fl.Enabled(flags.FlagAutoRepair) {
		if _, err := s.Repair(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("auto-repair at startup: %w", err)
		}
	} else if fl.Enabled(flags.FlagVerifyOnOpen) {
		diag, err := s.Diagnose(ctx)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		for _, f := range diag.Findings {
			log.Warn(log.CatRecover, "backend divergence found at startup",
				"skill", f.SkillID, "layer", string(f.Layer), "kind", string(f.Kind))
		}
	}

	// Committed and recovered writes invalidate the resolution cache.
	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.watchCommits(watchCtx)

	return s, nil
}

func layerOrder(names []string) (*skill.LayerOrder, error) {
	if len(names) == 0 {
		return skill.NewLayerOrder(skill.DefaultLayerOrder())
	}
	layers := make([]skill.Layer, len(names))
	for i, n := range names {
		layers[i] = skill.Layer(n)
	}
	return skill.NewLayerOrder(layers)
}

func registryOptions(cfg config.Config) ([]registry.Option, error) {
	var opts []registry.Option
	if cfg.Resolution.ConflictStrategy != "" {
		cs, err := registry.ParseConflictStrategy(cfg.Resolution.ConflictStrategy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, registry.WithConflictStrategy(cs))
	}
	if cfg.Resolution.MergeStrategy != "" {
		ms, err := registry.ParseMergeStrategy(cfg.Resolution.MergeStrategy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, registry.WithMergeStrategy(ms))
	}
	if cfg.Cache.Enabled {
		cache := cachemanager.NewInMemoryCacheManager[string, *registry.Resolution](
			"resolutions", cfg.Cache.TTL, 2*cfg.Cache.TTL)
		opts = append(opts, registry.WithCache(cache, cfg.Cache.TTL))
	}
	return opts, nil
}

// watchCommits flushes the resolution cache whenever a write lands.
func (s *Store) watchCommits(ctx context.Context) {
	events := s.broker.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == pubsub.CommittedEvent || ev.Type == pubsub.RecoveredEvent {
				s.registry.Invalidate(ctx)
			}
		}
	}
}

func (s *Store) recoverUnderLock(ctx context.Context) error {
	l, err := s.locks.Acquire(s.cfg.Lock.Timeout)
	if err != nil {
		return fmt.Errorf("acquiring lock for recovery: %w", err)
	}
	defer func() { _ = l.Release() }()

	_, span := s.tracer.Start(ctx, tracing.SpanPrefixRecover)
	defer span.End()

	report, err := s.txns.Recover()
	if report != nil {
		span.SetAttributes(
			attribute.Int(tracing.AttrRecoveredForward, len(report.RolledForward)),
			attribute.Int(tracing.AttrRecoveredBack, len(report.RolledBack)),
		)
	}
	return err
}

// write runs one mutation through the lock and the two-backend write path.
func (s *Store) write(ctx context.Context, m *skill.Mutation) (string, error) {
	_, span := s.tracer.Start(ctx, tracing.SpanPrefixWrite+string(m.Kind))
	defer span.End()
	span.SetAttributes(
		attribute.String(tracing.AttrTxKind, string(m.Kind)),
		attribute.String(tracing.AttrSkillID, m.EntityID()),
	)

	waitStart := time.Now()
	l, err := s.locks.Acquire(s.cfg.Lock.Timeout)
	if err != nil {
		return "", err
	}
	defer func() { _ = l.Release() }()
	span.SetAttributes(attribute.Int64(tracing.AttrLockWaitMs, time.Since(waitStart).Milliseconds()))
	span.AddEvent(tracing.EventLockAcquired)

	txID, err := s.txns.Write(m)
	if err != nil {
		span.SetAttributes(attribute.String(tracing.AttrErrorMessage, err.Error()))
		return txID, err
	}
	span.SetAttributes(attribute.String(tracing.AttrTxID, txID))
	span.AddEvent(tracing.EventTxFinalized)
	return txID, nil
}

// WriteSkill creates or updates a skill definition at its originating layer.
func (s *Store) WriteSkill(ctx context.Context, sk *skill.Skill) (string, error) {
	kind := skill.MutationCreate
	if _, err := s.db.SkillRowTx(sk.ID, sk.Layer); err == nil {
		kind = skill.MutationUpdate
	}
	return s.write(ctx, &skill.Mutation{Kind: kind, Skill: sk})
}

// WriteAlias records an identifier redirect. The source shares a namespace
// with primary skill IDs; collisions roll the write back.
func (s *Store) WriteAlias(ctx context.Context, a *skill.Alias) (string, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return s.write(ctx, &skill.Mutation{Kind: skill.MutationAlias, Alias: a})
}

// DeleteSkill logically deletes a skill at one layer. The definition stays
// in both backends as a tombstone until explicitly purged.
func (s *Store) DeleteSkill(ctx context.Context, id string, layer skill.Layer, reason string) (string, error) {
	t := &skill.Tombstone{
		SkillID:   id,
		Layer:     layer,
		Reason:    reason,
		DeletedAt: time.Now().UTC(),
	}
	if existing, err := s.db.GetSkill(id, layer); err == nil {
		t.ContentHash = existing.ContentHash()
	}
	return s.write(ctx, &skill.Mutation{Kind: skill.MutationTombstone, Tombstone: t})
}

// WriteBatch applies several mutations under a single lock acquisition.
// Each mutation is still its own transaction; a definitive rejection stops
// the batch and reports how far it got.
func (s *Store) WriteBatch(ctx context.Context, muts []*skill.Mutation) ([]string, error) {
	l, err := s.locks.Acquire(s.cfg.Lock.Timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	txIDs := make([]string, 0, len(muts))
	for _, m := range muts {
		txID, err := s.txns.Write(m)
		if err != nil {
			return txIDs, fmt.Errorf("batch stopped at %s: %w", m.EntityID(), err)
		}
		txIDs = append(txIDs, txID)
	}
	return txIDs, nil
}

// RestoreSkill undoes a logical deletion using the payload embedded in the
// archive tombstone.
func (s *Store) RestoreSkill(ctx context.Context, id string, layer skill.Layer) (string, error) {
	_, prior, err := s.archive.ReadTombstone(id, layer)
	if err != nil {
		return "", fmt.Errorf("reading tombstone for %s@%s: %w", id, layer, err)
	}
	if prior == nil {
		return "", fmt.Errorf("tombstone for %s@%s carries no payload", id, layer)
	}
	return s.write(ctx, &skill.Mutation{Kind: skill.MutationCreate, Skill: prior})
}

// Resolve returns the merged cross-layer definition for a skill ID.
func (s *Store) Resolve(ctx context.Context, id string) (*registry.Resolution, error) {
	ctx, span := s.tracer.Start(ctx, tracing.SpanPrefixResolve)
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrSkillID, id))

	res, err := s.registry.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int(tracing.AttrConflictCount, len(res.Conflicts)),
		attribute.Int(tracing.AttrLayerCount, len(res.Layers)),
	)
	return res, nil
}

// ResolveAll enumerates every resolvable skill.
func (s *Store) ResolveAll(ctx context.Context, includeDeprecated bool) ([]*registry.Resolution, error) {
	return s.registry.ResolveAll(ctx, includeDeprecated)
}

// ListLayers returns every layer definition of one skill ID, unmerged.
func (s *Store) ListLayers(id string) ([]*skill.Skill, error) {
	return s.db.GetSkillAnyLayer(id)
}

// DependencyPlan computes a deterministic load order over the resolved view.
// With no roots the plan covers every active skill.
func (s *Store) DependencyPlan(ctx context.Context, roots ...string) ([]string, error) {
	resolutions, err := s.registry.ResolveAll(ctx, true)
	if err != nil {
		return nil, err
	}
	skills := make([]*skill.Skill, len(resolutions))
	for i, r := range resolutions {
		skills[i] = r.Skill
	}
	return graph.New(skills).LoadPlan(roots...)
}

// IndexPath returns the index database file path. Long-lived processes watch
// it to notice out-of-process writers.
func (s *Store) IndexPath() string {
	return filepath.Join(s.root, indexFilename)
}

// InvalidateCache drops all cached resolutions.
func (s *Store) InvalidateCache(ctx context.Context) {
	s.registry.Invalidate(ctx)
}

// LockStatus reports the current global lock holder, nil when unheld.
func (s *Store) LockStatus() (*lock.Holder, error) {
	return s.locks.Status()
}

// BreakLock forcibly removes the lock file. For operators only, after
// confirming the holder is gone for good.
func (s *Store) BreakLock() (*lock.Holder, error) {
	return s.locks.Break()
}

// PendingTransactions lists non-terminal transaction log records.
func (s *Store) PendingTransactions() ([]index.TxRow, error) {
	return s.txns.Pending()
}

// Recover drains the transaction log on demand. Open already ran it once.
func (s *Store) Recover(ctx context.Context) (*txn.Report, error) {
	l, err := s.locks.Acquire(s.cfg.Lock.Timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()
	return s.txns.Recover()
}

// Tombstones lists logical deletions, newest first.
func (s *Store) Tombstones() ([]*skill.Tombstone, error) {
	return s.db.ListTombstones()
}

// PurgeTombstones physically removes tombstones older than the configured
// retention from both backends. Returns the purged tombstones.
func (s *Store) PurgeTombstones(ctx context.Context) ([]*skill.Tombstone, error) {
	l, err := s.locks.Acquire(s.cfg.Lock.Timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	cutoff := time.Now().AddDate(0, 0, -s.cfg.Tombstones.RetentionDays)
	stones, err := s.db.ListTombstonesOlderThan(cutoff)
	if err != nil {
		return nil, err
	}
	for _, t := range stones {
		if err := s.archive.PurgeSkill(t.SkillID, t.Layer); err != nil {
			return nil, err
		}
		if err := s.db.PurgeTombstone(t.SkillID, t.Layer); err != nil {
			return nil, err
		}
		log.Info(log.CatDB, "purged tombstone", "skill", t.SkillID, "layer", string(t.Layer))
	}
	return stones, nil
}

// History returns the most recent archive commits, newest first.
func (s *Store) History(limit int) ([]archive.CommitInfo, error) {
	return s.archive.History(limit)
}

// Close releases all resources. Safe to call once.
func (s *Store) Close(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.broker.Close()
	var errs []error
	if s.provider != nil {
		errs = append(errs, s.provider.Shutdown(ctx))
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}
