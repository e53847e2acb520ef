package skill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Skill {
	return &Skill{
		ID:      "git-basics",
		Name:    "Git Basics",
		Version: "1.0.0",
		Layer:   LayerBase,
		Sections: []Section{
			{ID: "overview", Title: "Overview", Blocks: []Block{
				{ID: "b1", Type: "text", Content: "content"},
			}},
		},
		Provides:  []string{"vcs"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestContentHashIgnoresTimestamps(t *testing.T) {
	a := sample()
	b := sample()
	b.CreatedAt = b.CreatedAt.Add(time.Hour)
	b.UpdatedAt = b.UpdatedAt.Add(time.Hour)

	assert.Equal(t, a.ContentHash(), b.ContentHash())
}

func TestContentHashTracksContent(t *testing.T) {
	a := sample()
	b := sample()
	b.Sections[0].Blocks[0].Content = "changed"

	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}

func TestCloneIsDeep(t *testing.T) {
	a := sample()
	b := a.Clone()
	b.Sections[0].Blocks[0].Content = "mutated"
	b.Provides[0] = "mutated"

	assert.Equal(t, "content", a.Sections[0].Blocks[0].Content)
	assert.Equal(t, "vcs", a.Provides[0])
}

func TestSectionCategory(t *testing.T) {
	assert.Equal(t, CategoryIllustrative, Section{ID: "examples"}.Category())
	assert.Equal(t, CategoryIllustrative, Section{ID: "references"}.Category())
	assert.Equal(t, CategoryIllustrative, Section{ID: "templates"}.Category())
	assert.Equal(t, CategoryDirective, Section{ID: "guidelines"}.Category())
	assert.Equal(t, CategoryDirective, Section{ID: "overview"}.Category())
}

func TestNewLayerOrderRejectsDuplicates(t *testing.T) {
	_, err := NewLayerOrder([]Layer{LayerBase, LayerBase})
	assert.ErrorContains(t, err, "duplicate layer")

	_, err = NewLayerOrder(nil)
	assert.ErrorContains(t, err, "must not be empty")
}

func TestLayerOrderPrecedence(t *testing.T) {
	order, err := NewLayerOrder(DefaultLayerOrder())
	require.NoError(t, err)

	assert.True(t, order.Higher(LayerUser, LayerBase))
	assert.False(t, order.Higher(LayerBase, LayerUser))
	assert.False(t, order.Higher(LayerOrg, LayerOrg))
	assert.True(t, order.Contains(LayerOrg))
	assert.False(t, order.Contains(Layer("ephemeral")))
}

func TestMutationValidate(t *testing.T) {
	tests := []struct {
		name        string
		m           *Mutation
		errContains string
	}{
		{
			name: "valid create",
			m:    &Mutation{Kind: MutationCreate, Skill: sample()},
		},
		{
			name:        "create without skill",
			m:           &Mutation{Kind: MutationCreate},
			errContains: "requires a skill payload",
		},
		{
			name:        "skill without layer",
			m:           &Mutation{Kind: MutationCreate, Skill: &Skill{ID: "x"}},
			errContains: "no originating layer",
		},
		{
			name: "self-referencing alias",
			m: &Mutation{Kind: MutationAlias, Alias: &Alias{
				Source: "a", Target: "a", Kind: AliasRename,
			}},
			errContains: "must not point at itself",
		},
		{
			name:        "tombstone without id",
			m:           &Mutation{Kind: MutationTombstone, Tombstone: &Tombstone{}},
			errContains: "skill ID must not be empty",
		},
		{
			name:        "delete without tombstone payload",
			m:           &Mutation{Kind: MutationDelete, Skill: sample()},
			errContains: "requires a tombstone payload",
		},
		{
			name: "delete with tombstone payload",
			m: &Mutation{Kind: MutationDelete, Tombstone: &Tombstone{
				SkillID: "git-basics", Layer: LayerBase,
			}},
		},
		{
			name:        "unknown kind",
			m:           &Mutation{Kind: MutationKind("rename")},
			errContains: "unknown mutation kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestMutationEncodeRoundTrip(t *testing.T) {
	m := &Mutation{Kind: MutationCreate, Skill: sample()}
	data, err := m.Encode()
	require.NoError(t, err)

	got, err := DecodeMutation(data)
	require.NoError(t, err)
	assert.Equal(t, m.Kind, got.Kind)
	assert.Equal(t, m.Skill.ContentHash(), got.Skill.ContentHash())

	_, err = DecodeMutation([]byte("{broken"))
	assert.Error(t, err)
}

func TestMutationEntityID(t *testing.T) {
	assert.Equal(t, "git-basics", (&Mutation{Kind: MutationCreate, Skill: sample()}).EntityID())
	assert.Equal(t, "old", (&Mutation{Kind: MutationAlias, Alias: &Alias{Source: "old", Target: "new"}}).EntityID())
	assert.Equal(t, "gone", (&Mutation{Kind: MutationTombstone, Tombstone: &Tombstone{SkillID: "gone"}}).EntityID())
	assert.Equal(t, "gone", (&Mutation{Kind: MutationDelete, Tombstone: &Tombstone{SkillID: "gone"}}).EntityID())
	assert.Equal(t, "", (&Mutation{Kind: MutationCreate}).EntityID())
}
