package registry

import (
	"fmt"
	"sort"

	"github.com/quarrylabs/skillstore/internal/skill"
)

// ConflictStrategy decides which layer wins a section-level conflict.
type ConflictStrategy string

const (
	// PreferHigher lets the higher-precedence layer win. Default.
	PreferHigher ConflictStrategy = "prefer_higher"
	// PreferLower keeps the lower-precedence definition.
	PreferLower ConflictStrategy = "prefer_lower"
	// Interactive refuses to auto-resolve: resolution fails with an
	// InteractiveConflictError carrying every detected conflict.
	Interactive ConflictStrategy = "interactive"
)

// MergeStrategy decides how non-conflicting content combines across layers.
type MergeStrategy string

const (
	// MergeAuto unions sections across layers. Conflicting directive
	// sections take the winner wholesale; conflicting illustrative sections
	// keep the loser's extra blocks under the winner's.
	MergeAuto MergeStrategy = "auto"
	// MergePreferSections unions sections but conflicting sections always
	// take the winner wholesale, regardless of category.
	MergePreferSections MergeStrategy = "prefer_sections"
	// MergeReplace takes the winning layer's definition wholesale.
	MergeReplace MergeStrategy = "replace"
)

// ParseConflictStrategy validates a configured strategy name.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	switch ConflictStrategy(s) {
	case PreferHigher, PreferLower, Interactive:
		return ConflictStrategy(s), nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q", s)
}

// ParseMergeStrategy validates a configured merge strategy name.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case MergeAuto, MergePreferSections, MergeReplace:
		return MergeStrategy(s), nil
	}
	return "", fmt.Errorf("unknown merge strategy %q", s)
}

// ConflictDetail records one section defined differently by two layers.
type ConflictDetail struct {
	SectionID string
	Category  skill.SectionCategory
	Lower     skill.Layer
	Higher    skill.Layer
	Winner    skill.Layer
	Blocks    []BlockDiff
}

// InteractiveConflictError is returned under the Interactive strategy when
// conflicts exist. The caller decides; nothing is auto-resolved.
type InteractiveConflictError struct {
	SkillID   string
	Conflicts []ConflictDetail
}

func (e *InteractiveConflictError) Error() string {
	return fmt.Sprintf("skill %q has %d unresolved layer conflicts", e.SkillID, len(e.Conflicts))
}

// mergeLayers folds layer definitions, lowest precedence first, into one
// effective skill.
func mergeLayers(ordered []*skill.Skill, cs ConflictStrategy, ms MergeStrategy) (*Resolution, error) {
	res := &Resolution{}
	for _, d := range ordered {
		res.Layers = append(res.Layers, d.Layer)
	}

	merged := ordered[0].Clone()
	for _, higher := range ordered[1:] {
		conflicts := detectConflicts(merged, higher, cs)
		res.Conflicts = append(res.Conflicts, conflicts...)
		merged = foldLayer(merged, higher, conflicts, cs, ms)
	}

	if cs == Interactive && len(res.Conflicts) > 0 {
		return nil, &InteractiveConflictError{SkillID: ordered[0].ID, Conflicts: res.Conflicts}
	}

	if ms == MergeReplace {
		winner := ordered[len(ordered)-1]
		if cs == PreferLower {
			winner = ordered[0]
		}
		merged = winner.Clone()
	}

	res.Skill = merged
	return res, nil
}

// detectConflicts compares sections shared by the running merge and the next
// higher layer.
func detectConflicts(lower, higher *skill.Skill, cs ConflictStrategy) []ConflictDetail {
	var out []ConflictDetail
	for _, hs := range higher.Sections {
		ls := lower.Section(hs.ID)
		if ls == nil || sectionsEqual(*ls, hs) {
			continue
		}
		winner := higher.Layer
		if cs == PreferLower {
			winner = lower.Layer
		}
		out = append(out, ConflictDetail{
			SectionID: hs.ID,
			Category:  hs.Category(),
			Lower:     lower.Layer,
			Higher:    higher.Layer,
			Winner:    winner,
			Blocks:    diffSections(*ls, hs),
		})
	}
	return out
}

func sectionsEqual(a, b skill.Section) bool {
	if a.Title != b.Title || len(a.Blocks) != len(b.Blocks) {
		return false
	}
	for i := range a.Blocks {
		if a.Blocks[i] != b.Blocks[i] {
			return false
		}
	}
	return true
}

// foldLayer applies one higher layer on top of the running merge.
func foldLayer(lower, higher *skill.Skill, conflicts []ConflictDetail, cs ConflictStrategy, ms MergeStrategy) *skill.Skill {
	conflicted := make(map[string]ConflictDetail, len(conflicts))
	for _, c := range conflicts {
		conflicted[c.SectionID] = c
	}

	out := lower.Clone()

	// Scalar fields follow the winning layer.
	if cs != PreferLower {
		out.Name = higher.Name
		out.Version = higher.Version
		out.Description = higher.Description
		out.DeprecatedBy = higher.DeprecatedBy
		out.Layer = higher.Layer
		out.CreatedAt = higher.CreatedAt
		out.UpdatedAt = higher.UpdatedAt
	}

	// Capabilities accumulate across layers.
	out.Requires = unionStrings(lower.Requires, higher.Requires)
	out.Provides = unionStrings(lower.Provides, higher.Provides)
	out.Metadata = mergeMetadata(lower.Metadata, higher.Metadata, cs)

	for _, hs := range higher.Sections {
		existing := out.Section(hs.ID)
		if existing == nil {
			// Section only the higher layer defines: additive.
			out.Sections = append(out.Sections, cloneSection(hs))
			continue
		}
		c, isConflict := conflicted[hs.ID]
		if !isConflict {
			*existing = cloneSection(hs)
			continue
		}
		if c.Winner != higher.Layer {
			if ms == MergeAuto && c.Category == skill.CategoryIllustrative {
				*existing = unionBlocks(*existing, hs)
			}
			continue
		}
		if ms == MergeAuto && c.Category == skill.CategoryIllustrative {
			*existing = unionBlocks(hs, *existing)
		} else {
			*existing = cloneSection(hs)
		}
	}
	return out
}

// unionBlocks keeps the winner's blocks and appends loser blocks whose IDs
// the winner does not define.
func unionBlocks(winner, loser skill.Section) skill.Section {
	out := cloneSection(winner)
	have := make(map[string]bool, len(winner.Blocks))
	for _, b := range winner.Blocks {
		have[b.ID] = true
	}
	for _, b := range loser.Blocks {
		if !have[b.ID] {
			out.Blocks = append(out.Blocks, b)
		}
	}
	return out
}

func cloneSection(s skill.Section) skill.Section {
	cp := s
	cp.Blocks = append([]skill.Block(nil), s.Blocks...)
	return cp
}

func unionStrings(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func mergeMetadata(lower, higher map[string]string, cs ConflictStrategy) map[string]string {
	if len(lower) == 0 && len(higher) == 0 {
		return nil
	}
	out := make(map[string]string, len(lower)+len(higher))
	first, second := lower, higher
	if cs == PreferLower {
		first, second = higher, lower
	}
	for k, v := range first {
		out[k] = v
	}
	for k, v := range second {
		out[k] = v
	}
	return out
}
