package graph

import (
	"sort"

	"github.com/quarrylabs/skillstore/internal/log"
)

// LoadPlan returns the skill IDs in dependency order: every provider appears
// before the skills requiring it. With no roots given, the plan covers the
// whole graph; otherwise it covers the transitive closure of the roots.
// Ties break lexicographically so equal inputs always produce equal plans.
func (g *Graph) LoadPlan(roots ...string) ([]string, error) {
	scope, err := g.scope(roots)
	if err != nil {
		return nil, err
	}

	// Kahn's algorithm over the scoped subgraph.
	indegree := make(map[string]int, len(scope))
	dependents := make(map[string][]string, len(scope))
	for id := range scope {
		for _, dep := range g.nodes[id].deps {
			if !scope[dep] {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id := range scope {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	plan := make([]string, 0, len(scope))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		plan = append(plan, id)

		released := false
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(plan) != len(scope) {
		// Nodes left with positive indegree sit on a cycle; report it
		// precisely via the DFS.
		for _, id := range g.sortedIDs() {
			if !scope[id] {
				continue
			}
			if err := g.visit(id, 0, newWalkState()); err != nil {
				return nil, err
			}
		}
		return nil, &CycleError{Path: nil}
	}

	log.Debug(log.CatGraph, "load plan computed", "roots", len(roots), "skills", len(plan))
	return plan, nil
}

// scope collects the transitive dependency closure of the roots. An unknown
// root or a requirement without a provider fails the plan.
func (g *Graph) scope(roots []string) (map[string]bool, error) {
	scope := make(map[string]bool)
	if len(roots) == 0 {
		if len(g.missing) > 0 {
			return nil, g.missing[0]
		}
		for id := range g.nodes {
			scope[id] = true
		}
		return scope, nil
	}

	var walk func(id string) error
	walk = func(id string) error {
		if scope[id] {
			return nil
		}
		n, ok := g.nodes[id]
		if !ok {
			return &MissingDependencyError{SkillID: id, Capability: ""}
		}
		scope[id] = true
		for _, m := range g.missing {
			if m.SkillID == id {
				return m
			}
		}
		for _, dep := range n.deps {
			if err := walk(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root); err != nil {
			return nil, err
		}
	}
	return scope, nil
}
