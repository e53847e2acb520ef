package registry

import (
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/quarrylabs/skillstore/internal/skill"
)

// BlockDiff describes how one block differs between two layers. Patch is in
// unidiff-style patch text; empty when the block exists on only one side.
type BlockDiff struct {
	BlockID string
	Lower   string // content in the lower layer, "" if absent
	Higher  string // content in the higher layer, "" if absent
	Patch   string
}

// diffSections computes per-block diffs between two versions of a section.
func diffSections(lower, higher skill.Section) []BlockDiff {
	dmp := diffmatchpatch.New()

	lowerBlocks := make(map[string]string, len(lower.Blocks))
	for _, b := range lower.Blocks {
		lowerBlocks[b.ID] = b.Content
	}

	var out []BlockDiff
	seen := make(map[string]bool, len(higher.Blocks))
	for _, hb := range higher.Blocks {
		seen[hb.ID] = true
		lc, inLower := lowerBlocks[hb.ID]
		if inLower && lc == hb.Content {
			continue
		}
		d := BlockDiff{BlockID: hb.ID, Lower: lc, Higher: hb.Content}
		if inLower {
			patches := dmp.PatchMake(lc, hb.Content)
			d.Patch = dmp.PatchToText(patches)
		}
		out = append(out, d)
	}
	for _, lb := range lower.Blocks {
		if !seen[lb.ID] {
			out = append(out, BlockDiff{BlockID: lb.ID, Lower: lb.Content})
		}
	}
	return out
}
