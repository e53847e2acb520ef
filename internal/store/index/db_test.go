package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/quarrylabs/skillstore/internal/skill"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testSkill(id string, layer skill.Layer) *skill.Skill {
	now := time.Now().UTC().Truncate(time.Second)
	return &skill.Skill{
		ID:      id,
		Name:    "Test " + id,
		Version: "1.0.0",
		Layer:   layer,
		Sections: []skill.Section{
			{ID: "overview", Title: "Overview", Blocks: []skill.Block{
				{ID: "b1", Type: "text", Content: "content"},
			}},
		},
		Requires:  []string{"cap:git"},
		Provides:  []string{"cap:" + id},
		Metadata:  map[string]string{"author": "tests"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := t.TempDir() + "/index.db"
	db, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/index.db"
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()
}

func TestUpsertAndGetSkill(t *testing.T) {
	db := newTestDB(t)
	s := testSkill("git-basics", skill.LayerBase)
	require.NoError(t, db.UpsertSkill(s, "tx-1"))

	got, err := db.GetSkill("git-basics", skill.LayerBase)
	require.NoError(t, err)
	assert.Equal(t, s.Name, got.Name)
	assert.Equal(t, s.Sections, got.Sections)
	assert.Equal(t, s.Requires, got.Requires)
	assert.Equal(t, s.Metadata, got.Metadata)
}

func TestUpsertSkillIdempotentPerTx(t *testing.T) {
	db := newTestDB(t)
	s := testSkill("git-basics", skill.LayerBase)
	require.NoError(t, db.UpsertSkill(s, "tx-1"))

	// Replay with the same tx id must not error and must not double-apply.
	require.NoError(t, db.UpsertSkill(s, "tx-1"))

	all, err := db.ListSkills(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertSkillNewTxOverwrites(t *testing.T) {
	db := newTestDB(t)
	s := testSkill("git-basics", skill.LayerBase)
	require.NoError(t, db.UpsertSkill(s, "tx-1"))

	s2 := s.Clone()
	s2.Name = "Renamed"
	require.NoError(t, db.UpsertSkill(s2, "tx-2"))

	got, err := db.GetSkill("git-basics", skill.LayerBase)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
}

func TestSameIDAcrossLayersCoexists(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.UpsertSkill(testSkill("s", skill.LayerBase), "tx-1"))
	require.NoError(t, db.UpsertSkill(testSkill("s", skill.LayerUser), "tx-2"))

	defs, err := db.GetSkillAnyLayer("s")
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}

func TestDeleteSkillOnlyCompensatesOwnTx(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.UpsertSkill(testSkill("s", skill.LayerBase), "tx-1"))

	// A different transaction's compensation must not remove the row.
	require.NoError(t, db.DeleteSkill("s", skill.LayerBase, "tx-other"))
	_, err := db.GetSkill("s", skill.LayerBase)
	require.NoError(t, err)

	require.NoError(t, db.DeleteSkill("s", skill.LayerBase, "tx-1"))
	_, err = db.GetSkill("s", skill.LayerBase)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAliasSkillNamespaceCollision(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.UpsertSkill(testSkill("taken", skill.LayerBase), "tx-1"))

	// Alias colliding with a live skill ID.
	err := db.InsertAlias(&skill.Alias{
		Source: "taken", Target: "elsewhere", Kind: skill.AliasRename, CreatedAt: time.Now(),
	}, "tx-2")
	var collision *CollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "taken", collision.ID)
	assert.Equal(t, "skill", collision.Existing)

	// And the other ordering: skill colliding with an existing alias.
	require.NoError(t, db.InsertAlias(&skill.Alias{
		Source: "old", Target: "new", Kind: skill.AliasRename, CreatedAt: time.Now(),
	}, "tx-3"))
	err = db.UpsertSkill(testSkill("old", skill.LayerBase), "tx-4")
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "alias", collision.Existing)
}

func TestAliasRoundTrip(t *testing.T) {
	db := newTestDB(t)
	a := &skill.Alias{
		Source: "old", Target: "new", Kind: skill.AliasDeprecated,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.InsertAlias(a, "tx-1"))

	got, err := db.GetAlias("old")
	require.NoError(t, err)
	assert.Equal(t, a.Target, got.Target)
	assert.Equal(t, skill.AliasDeprecated, got.Kind)

	all, err := db.ListAliases()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAliasInsertIdempotentPerTx(t *testing.T) {
	db := newTestDB(t)
	a := &skill.Alias{Source: "old", Target: "new", Kind: skill.AliasRename, CreatedAt: time.Now()}
	require.NoError(t, db.InsertAlias(a, "tx-1"))
	require.NoError(t, db.InsertAlias(a, "tx-1"))

	// Same source from a different tx is a real collision.
	var collision *CollisionError
	assert.ErrorAs(t, db.InsertAlias(a, "tx-2"), &collision)
}

func TestTombstoneSoftDeletes(t *testing.T) {
	db := newTestDB(t)
	s := testSkill("s", skill.LayerBase)
	require.NoError(t, db.UpsertSkill(s, "tx-1"))

	ts := &skill.Tombstone{
		SkillID: "s", Layer: skill.LayerBase,
		ContentHash: s.ContentHash(), Reason: "obsolete",
		DeletedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.InsertTombstone(ts, "tx-2"))

	_, err := db.GetSkill("s", skill.LayerBase)
	assert.ErrorIs(t, err, ErrNotFound)

	// The row still exists for listing with IncludeDeleted.
	all, err := db.ListSkills(ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	stones, err := db.ListTombstones()
	require.NoError(t, err)
	require.Len(t, stones, 1)
	assert.Equal(t, "obsolete", stones[0].Reason)
}

func TestRemoveTombstoneRestoresRow(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.UpsertSkill(testSkill("s", skill.LayerBase), "tx-1"))
	ts := &skill.Tombstone{SkillID: "s", Layer: skill.LayerBase, DeletedAt: time.Now()}
	require.NoError(t, db.InsertTombstone(ts, "tx-2"))

	require.NoError(t, db.RemoveTombstone("s", skill.LayerBase, "tx-2"))

	_, err := db.GetSkill("s", skill.LayerBase)
	require.NoError(t, err)
	stones, err := db.ListTombstones()
	require.NoError(t, err)
	assert.Empty(t, stones)
}

func TestPurgeTombstone(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.UpsertSkill(testSkill("s", skill.LayerBase), "tx-1"))
	ts := &skill.Tombstone{SkillID: "s", Layer: skill.LayerBase, DeletedAt: time.Now()}
	require.NoError(t, db.InsertTombstone(ts, "tx-2"))

	require.NoError(t, db.PurgeTombstone("s", skill.LayerBase))

	all, err := db.ListSkills(ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, all, "purge is physical")
}

func TestListTombstonesOlderThan(t *testing.T) {
	db := newTestDB(t)
	old := &skill.Tombstone{SkillID: "old", Layer: skill.LayerBase, DeletedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &skill.Tombstone{SkillID: "fresh", Layer: skill.LayerBase, DeletedAt: time.Now()}
	require.NoError(t, db.InsertTombstone(old, "tx-1"))
	require.NoError(t, db.InsertTombstone(fresh, "tx-2"))

	stones, err := db.ListTombstonesOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, stones, 1)
	assert.Equal(t, "old", stones[0].SkillID)
}

func TestListSkillsFilters(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.UpsertSkill(testSkill("a", skill.LayerBase), "tx-1"))
	require.NoError(t, db.UpsertSkill(testSkill("b", skill.LayerUser), "tx-2"))
	dep := testSkill("c", skill.LayerBase)
	dep.DeprecatedBy = "a"
	require.NoError(t, db.UpsertSkill(dep, "tx-3"))

	all, err := db.ListSkills(ListFilter{IncludeDeprecated: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := db.ListSkills(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, active, 2, "deprecated excluded by default")

	baseOnly, err := db.ListSkills(ListFilter{Layer: skill.LayerBase})
	require.NoError(t, err)
	assert.Len(t, baseOnly, 1)
}

func TestTxLogLifecycle(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().Unix()
	row := TxRow{
		ID: "tx-1", EntityType: "skill", EntityID: "s",
		Phase: "prepared", Payload: "{}", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.InsertTxRecord(row))
	require.NoError(t, db.InsertTxRecord(row), "re-insert is a no-op")

	require.NoError(t, db.UpdateTxPhase("tx-1", "index_committed"))
	got, err := db.GetTxRecord("tx-1")
	require.NoError(t, err)
	assert.Equal(t, "index_committed", got.Phase)

	assert.ErrorIs(t, db.UpdateTxPhase("tx-missing", "finalized"), ErrNotFound)

	unfinished, err := db.ListUnfinishedTx("finalized", "rolled_back")
	require.NoError(t, err)
	assert.Len(t, unfinished, 1)

	require.NoError(t, db.UpdateTxPhase("tx-1", "finalized"))
	unfinished, err = db.ListUnfinishedTx("finalized", "rolled_back")
	require.NoError(t, err)
	assert.Empty(t, unfinished)

	require.NoError(t, db.DeleteTxRecord("tx-1"))
	_, err = db.GetTxRecord("tx-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestAllocateTxIDMonotonic checks ids are strictly increasing however many
// are drawn back to back.
func TestAllocateTxIDMonotonic(t *testing.T) {
	db := newTestDB(t)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 50).Draw(t, "n")
		prev := ""
		for i := 0; i < n; i++ {
			id, err := db.AllocateTxID()
			require.NoError(t, err)
			require.Greater(t, id, prev, "tx ids must be strictly increasing")
			prev = id
		}
	})
}

func TestAllocateTxIDSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/index.db"
	db, err := Open(path)
	require.NoError(t, err)
	first, err := db.AllocateTxID()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()
	second, err := db2.AllocateTxID()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}
