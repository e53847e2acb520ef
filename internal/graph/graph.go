// Package graph builds the capability dependency graph over a resolved set of
// skills and produces deterministic load plans. Skills declare required and
// provided capability identifiers; an edge runs from a skill to every provider
// of each capability it requires.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quarrylabs/skillstore/internal/skill"
)

// maxDepth bounds the DFS. A well-formed graph never gets near it; hitting
// the bound means the cycle check itself is broken.
const maxDepth = 10_000

// CycleError reports a dependency cycle. Plans fail closed: no partial order
// is ever returned for a cyclic graph.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// MissingDependencyError reports a required capability with no provider.
type MissingDependencyError struct {
	SkillID    string
	Capability string
}

func (e *MissingDependencyError) Error() string {
	if e.Capability == "" {
		return fmt.Sprintf("skill %q is not in the graph", e.SkillID)
	}
	return fmt.Sprintf("skill %q requires capability %q which no skill provides", e.SkillID, e.Capability)
}

type node struct {
	skill *skill.Skill
	// deps are provider skill IDs, sorted for deterministic traversal.
	deps []string
}

// Graph is the dependency graph over a set of skills.
type Graph struct {
	nodes map[string]*node
	// providers maps capability id to the sorted skill IDs providing it.
	providers map[string][]string
	// missing holds requirements with no provider, found at build time.
	missing []*MissingDependencyError
}

// New builds the graph. Missing providers are recorded, not rejected, so the
// caller can still plan loads for unaffected skills.
func New(skills []*skill.Skill) *Graph {
	g := &Graph{
		nodes:     make(map[string]*node, len(skills)),
		providers: make(map[string][]string),
	}
	for _, s := range skills {
		g.nodes[s.ID] = &node{skill: s}
		for _, cap := range s.Provides {
			g.providers[cap] = append(g.providers[cap], s.ID)
		}
	}
	for cap := range g.providers {
		sort.Strings(g.providers[cap])
	}

	for _, id := range g.sortedIDs() {
		n := g.nodes[id]
		seen := make(map[string]bool)
		for _, cap := range n.skill.Requires {
			providers, ok := g.providers[cap]
			if !ok {
				g.missing = append(g.missing, &MissingDependencyError{SkillID: id, Capability: cap})
				continue
			}
			for _, p := range providers {
				if p == id || seen[p] {
					continue
				}
				seen[p] = true
				n.deps = append(n.deps, p)
			}
		}
		sort.Strings(n.deps)
	}
	return g
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Missing returns the requirements that have no provider, sorted by skill id.
func (g *Graph) Missing() []*MissingDependencyError {
	return g.missing
}

// Dependencies returns the direct provider IDs for a skill, sorted.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return n.deps
}

// Validate checks the whole graph for cycles and missing providers.
func (g *Graph) Validate() error {
	if len(g.missing) > 0 {
		return g.missing[0]
	}
	state := newWalkState()
	for _, id := range g.sortedIDs() {
		if err := g.visit(id, 0, state); err != nil {
			return err
		}
	}
	return nil
}

type walkState struct {
	visiting map[string]bool
	done     map[string]bool
	stack    []string
}

func newWalkState() *walkState {
	return &walkState{visiting: make(map[string]bool), done: make(map[string]bool)}
}

// visit runs a DFS from id. The explicit visiting set distinguishes back
// edges (cycles) from cross edges into already-finished nodes.
func (g *Graph) visit(id string, depth int, st *walkState) error {
	if st.done[id] {
		return nil
	}
	if st.visiting[id] {
		return &CycleError{Path: cyclePath(st.stack, id)}
	}
	if depth > maxDepth {
		return fmt.Errorf("dependency walk exceeded depth %d at %q", maxDepth, id)
	}

	st.visiting[id] = true
	st.stack = append(st.stack, id)
	for _, dep := range g.nodes[id].deps {
		if err := g.visit(dep, depth+1, st); err != nil {
			return err
		}
	}
	st.stack = st.stack[:len(st.stack)-1]
	delete(st.visiting, id)
	st.done[id] = true
	return nil
}

// cyclePath trims the DFS stack to the cycle itself and closes the loop.
func cyclePath(stack []string, repeat string) []string {
	for i, id := range stack {
		if id == repeat {
			path := append([]string(nil), stack[i:]...)
			return append(path, repeat)
		}
	}
	return []string{repeat, repeat}
}
