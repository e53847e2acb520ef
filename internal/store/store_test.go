package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/quarrylabs/skillstore/internal/config"
	"github.com/quarrylabs/skillstore/internal/registry"
	"github.com/quarrylabs/skillstore/internal/skill"
	"github.com/quarrylabs/skillstore/internal/store/archive"
	"github.com/quarrylabs/skillstore/internal/store/lock"
)

// fakeExecutor satisfies archive.Executor without a git binary. Commits live
// in memory; Remove mirrors git rm against the work tree.
type fakeExecutor struct {
	dir      string
	repo     bool
	commits  []archive.CommitInfo
	failNext error
}

func (f *fakeExecutor) IsRepo() bool { return f.repo }
func (f *fakeExecutor) Init() error  { f.repo = true; return nil }
func (f *fakeExecutor) Add(paths ...string) error {
	return nil
}
func (f *fakeExecutor) Remove(paths ...string) error {
	for _, p := range paths {
		_ = os.Remove(filepath.Join(f.dir, p))
	}
	return nil
}
func (f *fakeExecutor) Commit(message string) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.commits = append(f.commits, archive.CommitInfo{
		Hash:    fmt.Sprintf("%040d", len(f.commits)+1),
		Subject: message,
		Date:    time.Now().UTC(),
	})
	return nil
}
func (f *fakeExecutor) HasCommitWithSubject(marker string) (bool, error) {
	for _, c := range f.commits {
		if strings.Contains(c.Subject, marker) {
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeExecutor) Log(limit int) ([]archive.CommitInfo, error) {
	out := make([]archive.CommitInfo, 0, limit)
	for i := len(f.commits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.commits[i])
	}
	return out, nil
}
func (f *fakeExecutor) HeadHash() (string, error) {
	if len(f.commits) == 0 {
		return "", nil
	}
	return f.commits[len(f.commits)-1].Hash, nil
}

func testConfig(root string) config.Config {
	cfg := config.Defaults()
	cfg.Root = root
	cfg.Lock.Timeout = 2 * time.Second
	cfg.Cache.Enabled = false
	cfg.Tracing.Enabled = false
	return cfg
}

func newTestStore(t *testing.T) (*Store, *fakeExecutor) {
	t.Helper()
	root := t.TempDir()
	exec := &fakeExecutor{dir: filepath.Join(root, archiveDirname)}
	s, err := Open(context.Background(), testConfig(root), WithExecutor(exec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, exec
}

func testSkill(id string, layer skill.Layer) *skill.Skill {
	return &skill.Skill{
		ID:      id,
		Name:    "Test " + id,
		Version: "1.0.0",
		Layer:   layer,
		Sections: []skill.Section{
			{ID: "overview", Title: "Overview", Blocks: []skill.Block{
				{ID: "b1", Type: "text", Content: "content of " + id},
			}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestOpenCreatesLayout(t *testing.T) {
	root := t.TempDir()
	exec := &fakeExecutor{dir: filepath.Join(root, archiveDirname)}
	s, err := Open(context.Background(), testConfig(root), WithExecutor(exec))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, indexFilename))
	assert.NoError(t, err, "index database should exist")
	_, err = os.Stat(filepath.Join(root, "tx"))
	assert.NoError(t, err, "journal directory should exist")
	assert.True(t, exec.repo, "archive repo should be initialized")

	require.NoError(t, s.Close(context.Background()))
}

func TestOpenReleasesRecoveryLock(t *testing.T) {
	s, _ := newTestStore(t)

	holder, err := s.LockStatus()
	require.NoError(t, err)
	assert.Nil(t, holder, "lock must not stay held after startup recovery")
}

func TestWriteSkillResolves(t *testing.T) {
	s, _ := newTestStore(t)

	txID, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)
	require.NotEmpty(t, txID)

	res, err := s.Resolve(context.Background(), "git-basics")
	require.NoError(t, err)
	assert.Equal(t, "git-basics", res.Skill.ID)
	assert.Equal(t, []skill.Layer{skill.LayerBase}, res.Layers)
}

func TestWriteSkillSecondWriteIsUpdate(t *testing.T) {
	s, exec := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)

	updated := testSkill("git-basics", skill.LayerBase)
	updated.Version = "2.0.0"
	_, err = s.WriteSkill(context.Background(), updated)
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), "git-basics")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", res.Skill.Version)

	last := exec.commits[len(exec.commits)-1]
	assert.True(t, strings.HasPrefix(last.Subject, "update "), "second write commits as update: %s", last.Subject)
}

func TestWriteAliasRedirectsResolution(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)
	_, err = s.WriteAlias(context.Background(), &skill.Alias{
		Source: "git-fundamentals",
		Target: "git-basics",
		Kind:   skill.AliasRename,
	})
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), "git-fundamentals")
	require.NoError(t, err)
	assert.Equal(t, "git-basics", res.Skill.ID)
	assert.Equal(t, "git-fundamentals", res.AliasedFrom)
}

func TestDeleteSkillTombstones(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)
	_, err = s.DeleteSkill(context.Background(), "git-basics", skill.LayerBase, "superseded")
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), "git-basics")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	stones, err := s.Tombstones()
	require.NoError(t, err)
	require.Len(t, stones, 1)
	assert.Equal(t, "git-basics", stones[0].SkillID)
	assert.Equal(t, "superseded", stones[0].Reason)
	assert.NotEmpty(t, stones[0].ContentHash, "tombstone records the deleted content hash")
}

func TestRestoreSkillUndoesDelete(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)
	_, err = s.DeleteSkill(context.Background(), "git-basics", skill.LayerBase, "oops")
	require.NoError(t, err)

	_, err = s.RestoreSkill(context.Background(), "git-basics", skill.LayerBase)
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), "git-basics")
	require.NoError(t, err)
	assert.Equal(t, "git-basics", res.Skill.ID)

	stones, err := s.Tombstones()
	require.NoError(t, err)
	assert.Empty(t, stones, "restore clears the tombstone")
}

func TestRestoreSkillWithoutTombstone(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.RestoreSkill(context.Background(), "never-existed", skill.LayerBase)
	assert.ErrorIs(t, err, archive.ErrNotFound)
}

func TestWriteBatchAppliesAll(t *testing.T) {
	s, _ := newTestStore(t)

	txIDs, err := s.WriteBatch(context.Background(), []*skill.Mutation{
		{Kind: skill.MutationCreate, Skill: testSkill("one", skill.LayerBase)},
		{Kind: skill.MutationCreate, Skill: testSkill("two", skill.LayerBase)},
		{Kind: skill.MutationCreate, Skill: testSkill("three", skill.LayerBase)},
	})
	require.NoError(t, err)
	assert.Len(t, txIDs, 3)

	all, err := s.ResolveAll(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWriteBatchStopsOnRejection(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("taken", skill.LayerBase))
	require.NoError(t, err)

	txIDs, err := s.WriteBatch(context.Background(), []*skill.Mutation{
		{Kind: skill.MutationCreate, Skill: testSkill("one", skill.LayerBase)},
		{Kind: skill.MutationAlias, Alias: &skill.Alias{
			Source: "taken", Target: "elsewhere",
			Kind: skill.AliasRename, CreatedAt: time.Now().UTC(),
		}},
		{Kind: skill.MutationCreate, Skill: testSkill("never", skill.LayerBase)},
	})
	require.Error(t, err)
	assert.Len(t, txIDs, 1, "batch stops at the rejected mutation")

	_, err = s.Resolve(context.Background(), "never")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestConcurrentWritersSerialize(t *testing.T) {
	s, exec := newTestStore(t)

	// Two writers race on the same identifier. The global lock must order
	// them so each full write lands intact; the loser of the race observes
	// the winner's committed row as prior state, never a mix of the two.
	write := func(version, content string) error {
		sk := testSkill("git-basics", skill.LayerBase)
		sk.Version = version
		sk.Sections[0].Blocks[0].Content = content
		_, err := s.WriteSkill(context.Background(), sk)
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = write("1.0.0", "feature branches") }()
	go func() { defer wg.Done(); errs[1] = write("2.0.0", "trunk-based development") }()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	pending, err := s.PendingTransactions()
	require.NoError(t, err)
	assert.Empty(t, pending, "both transactions reached a terminal state")
	assert.Len(t, exec.commits, 2, "each writer produced its own commit")

	// The surviving definition pairs version and content from one writer.
	res, err := s.Resolve(context.Background(), "git-basics")
	require.NoError(t, err)
	content := res.Skill.Sections[0].Blocks[0].Content
	switch res.Skill.Version {
	case "1.0.0":
		assert.Equal(t, "feature branches", content)
	case "2.0.0":
		assert.Equal(t, "trunk-based development", content)
	default:
		t.Fatalf("unexpected version %q", res.Skill.Version)
	}
}

func TestDependencyPlanOrdersDepsFirst(t *testing.T) {
	s, _ := newTestStore(t)

	base := testSkill("git-basics", skill.LayerBase)
	base.Provides = []string{"vcs"}
	advanced := testSkill("git-advanced", skill.LayerBase)
	advanced.Requires = []string{"vcs"}

	_, err := s.WriteSkill(context.Background(), advanced)
	require.NoError(t, err)
	_, err = s.WriteSkill(context.Background(), base)
	require.NoError(t, err)

	plan, err := s.DependencyPlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"git-basics", "git-advanced"}, plan)
}

func TestOpenRecoversStuckTransaction(t *testing.T) {
	root := t.TempDir()
	exec := &fakeExecutor{dir: filepath.Join(root, archiveDirname)}

	s, err := Open(context.Background(), testConfig(root), WithExecutor(exec))
	require.NoError(t, err)

	exec.failNext = fmt.Errorf("disk full")
	txID, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.Error(t, err)

	pending, err := s.PendingTransactions()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.Close(context.Background()))

	// Reopening the store drains the log before serving.
	s2, err := Open(context.Background(), testConfig(root), WithExecutor(exec))
	require.NoError(t, err)
	defer func() { _ = s2.Close(context.Background()) }()

	pending, err = s2.PendingTransactions()
	require.NoError(t, err)
	assert.Empty(t, pending)

	committed, err := s2.archive.Committed(txID)
	require.NoError(t, err)
	assert.True(t, committed, "recovery rolled the write forward into the archive")
}

func TestPurgeTombstones(t *testing.T) {
	root := t.TempDir()
	exec := &fakeExecutor{dir: filepath.Join(root, archiveDirname)}
	cfg := testConfig(root)
	cfg.Tombstones.RetentionDays = 0
	s, err := Open(context.Background(), cfg, WithExecutor(exec))
	require.NoError(t, err)
	defer func() { _ = s.Close(context.Background()) }()

	_, err = s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)
	_, err = s.DeleteSkill(context.Background(), "git-basics", skill.LayerBase, "gone")
	require.NoError(t, err)

	purged, err := s.PurgeTombstones(context.Background())
	require.NoError(t, err)
	require.Len(t, purged, 1)

	stones, err := s.Tombstones()
	require.NoError(t, err)
	assert.Empty(t, stones)

	_, _, err = s.archive.ReadTombstone("git-basics", skill.LayerBase)
	assert.ErrorIs(t, err, archive.ErrNotFound, "purge removes the archive tombstone file")
}

func TestPurgeTombstonesHonorsRetention(t *testing.T) {
	s, _ := newTestStore(t) // default retention, 30 days

	_, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)
	_, err = s.DeleteSkill(context.Background(), "git-basics", skill.LayerBase, "gone")
	require.NoError(t, err)

	purged, err := s.PurgeTombstones(context.Background())
	require.NoError(t, err)
	assert.Empty(t, purged, "fresh tombstones stay within the retention window")
}

func TestBreakLockRemovesHolder(t *testing.T) {
	s, _ := newTestStore(t)

	l, err := s.locks.Acquire(time.Second)
	require.NoError(t, err)

	holder, err := s.BreakLock()
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, os.Getpid(), holder.PID)

	status, err := s.LockStatus()
	require.NoError(t, err)
	assert.Nil(t, status)

	assert.ErrorIs(t, l.Release(), lock.ErrNotHeld)
}

func TestHistoryNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("one", skill.LayerBase))
	require.NoError(t, err)
	_, err = s.WriteSkill(context.Background(), testSkill("two", skill.LayerBase))
	require.NoError(t, err)

	commits, err := s.History(10)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Contains(t, commits[0].Subject, "two")
	assert.Contains(t, commits[1].Subject, "one")
}

func TestCommitInvalidatesResolutionCache(t *testing.T) {
	root := t.TempDir()
	exec := &fakeExecutor{dir: filepath.Join(root, archiveDirname)}
	cfg := testConfig(root)
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = time.Hour
	s, err := Open(context.Background(), cfg, WithExecutor(exec))
	require.NoError(t, err)
	defer func() { _ = s.Close(context.Background()) }()

	_, err = s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), "git-basics")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", res.Skill.Version)

	updated := testSkill("git-basics", skill.LayerBase)
	updated.Version = "2.0.0"
	_, err = s.WriteSkill(context.Background(), updated)
	require.NoError(t, err)

	// Invalidation rides the commit event, which is asynchronous.
	require.Eventually(t, func() bool {
		res, err := s.Resolve(context.Background(), "git-basics")
		return err == nil && res.Skill.Version == "2.0.0"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDiagnoseCleanStore(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)

	diag, err := s.Diagnose(context.Background())
	require.NoError(t, err)
	assert.True(t, diag.Clean())
}

func TestDiagnoseFindsMissingFromArchive(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)

	// Simulate an operator deleting the live file out-of-band.
	require.NoError(t, os.Remove(filepath.Join(
		s.root, archiveDirname, "skills", "by-id", "git-basics", "base.yaml")))

	diag, err := s.Diagnose(context.Background())
	require.NoError(t, err)
	require.Len(t, diag.Findings, 1)
	assert.Equal(t, FindingMissingFromArchive, diag.Findings[0].Kind)
	assert.Equal(t, "git-basics", diag.Findings[0].SkillID)
}

func TestDiagnoseFindsMissingFromIndex(t *testing.T) {
	s, _ := newTestStore(t)

	// A skill file dropped into the archive without going through the write
	// path is unknown to the index.
	rogue := testSkill("rogue", skill.LayerBase)
	dir := filepath.Join(s.root, archiveDirname, "skills", "by-id", "rogue")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := yaml.Marshal(rogue)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), data, 0o644))

	diag, err := s.Diagnose(context.Background())
	require.NoError(t, err)
	require.Len(t, diag.Findings, 1)
	assert.Equal(t, FindingMissingFromIndex, diag.Findings[0].Kind)
}

func TestRepairReconcilesBothDirections(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("orphaned", skill.LayerBase))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(
		s.root, archiveDirname, "skills", "by-id", "orphaned", "base.yaml")))

	rogue := testSkill("rogue", skill.LayerBase)
	dir := filepath.Join(s.root, archiveDirname, "skills", "by-id", "rogue")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := yaml.Marshal(rogue)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), data, 0o644))

	report, err := s.Repair(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Repaired, 2)

	diag, err := s.Diagnose(context.Background())
	require.NoError(t, err)
	assert.True(t, diag.Clean(), "repair leaves the backends in agreement")

	// Archive is the source of truth: the rogue skill is now indexed, the
	// orphaned index row is tombstoned.
	res, err := s.Resolve(context.Background(), "rogue")
	require.NoError(t, err)
	assert.Equal(t, "rogue", res.Skill.ID)

	_, err = s.Resolve(context.Background(), "orphaned")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestOpenAutoRepairFlag(t *testing.T) {
	root := t.TempDir()
	exec := &fakeExecutor{dir: filepath.Join(root, archiveDirname)}

	// Seed the archive with a skill the index has never seen.
	rogue := testSkill("rogue", skill.LayerBase)
	dir := filepath.Join(root, archiveDirname, "skills", "by-id", "rogue")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := yaml.Marshal(rogue)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), data, 0o644))

	cfg := testConfig(root)
	cfg.Flags = map[string]bool{"auto-repair": true}
	s, err := Open(context.Background(), cfg, WithExecutor(exec))
	require.NoError(t, err)
	defer func() { _ = s.Close(context.Background()) }()

	res, err := s.Resolve(context.Background(), "rogue")
	require.NoError(t, err)
	assert.Equal(t, "rogue", res.Skill.ID)
}

func TestRepairFixesHashMismatch(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.WriteSkill(context.Background(), testSkill("git-basics", skill.LayerBase))
	require.NoError(t, err)

	// Overwrite the archive file with different content out-of-band.
	edited := testSkill("git-basics", skill.LayerBase)
	edited.Version = "9.9.9"
	data, err := yaml.Marshal(edited)
	require.NoError(t, err)
	path := filepath.Join(s.root, archiveDirname, "skills", "by-id", "git-basics", "base.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	diag, err := s.Diagnose(context.Background())
	require.NoError(t, err)
	require.Len(t, diag.Findings, 1)
	assert.Equal(t, FindingHashMismatch, diag.Findings[0].Kind)

	_, err = s.Repair(context.Background())
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), "git-basics")
	require.NoError(t, err)
	assert.Equal(t, "9.9.9", res.Skill.Version, "archive content wins")
}
