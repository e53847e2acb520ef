package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/skillstore/internal/skill"
	"github.com/quarrylabs/skillstore/internal/store/index"
)

// Builder accumulates registry entries and inserts them in the correct order.
// Each entry gets its own allocated transaction id, the same way the write
// path would assign one.
type Builder struct {
	t          *testing.T
	db         *index.DB
	skills     []skill.Skill
	aliases    []skill.Alias
	tombstones []skill.Tombstone
}

// NewBuilder creates a builder for the given indexed store.
func NewBuilder(t *testing.T, db *index.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithSkill adds a skill at a layer with optional configuration.
func (b *Builder) WithSkill(id string, layer skill.Layer, opts ...SkillOption) *Builder {
	s := defaultSkill(id, layer)
	for _, opt := range opts {
		opt(&s)
	}
	b.skills = append(b.skills, s)
	return b
}

// WithAlias adds an identifier redirect.
func (b *Builder) WithAlias(source, target string, kind skill.AliasKind) *Builder {
	b.aliases = append(b.aliases, skill.Alias{
		Source:    source,
		Target:    target,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
	return b
}

// WithTombstone adds a logical deletion for a skill inserted earlier.
func (b *Builder) WithTombstone(id string, layer skill.Layer, reason string) *Builder {
	b.tombstones = append(b.tombstones, skill.Tombstone{
		SkillID:   id,
		Layer:     layer,
		Reason:    reason,
		DeletedAt: time.Now().UTC(),
	})
	return b
}

// Build inserts all accumulated entries. Skills first, then aliases, then
// tombstones, so a tombstone can soft-delete a skill added in the same build.
func (b *Builder) Build() {
	b.t.Helper()
	for i := range b.skills {
		txID, err := b.db.AllocateTxID()
		require.NoError(b.t, err)
		require.NoError(b.t, b.db.UpsertSkill(&b.skills[i], txID))
	}
	for i := range b.aliases {
		txID, err := b.db.AllocateTxID()
		require.NoError(b.t, err)
		require.NoError(b.t, b.db.InsertAlias(&b.aliases[i], txID))
	}
	for i := range b.tombstones {
		txID, err := b.db.AllocateTxID()
		require.NoError(b.t, err)
		require.NoError(b.t, b.db.InsertTombstone(&b.tombstones[i], txID))
	}
}
