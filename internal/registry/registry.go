// Package registry resolves skills across precedence layers. Lower-layer
// definitions are folded under higher ones section by section, conflicts are
// detected and resolved by an injected strategy, and aliases redirect lookups
// before any layer is consulted.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/quarrylabs/skillstore/internal/cachemanager"
	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/skill"
	"github.com/quarrylabs/skillstore/internal/store/index"
)

// ErrNotFound is returned when no layer defines the requested skill.
var ErrNotFound = errors.New("skill not found in any layer")

// ErrAliasLoop is returned when alias redirection does not terminate.
var ErrAliasLoop = errors.New("alias chain does not terminate")

// maxAliasHops bounds alias chain traversal.
const maxAliasHops = 16

// Source is the read surface the registry needs from the indexed store.
type Source interface {
	GetSkillAnyLayer(id string) ([]*skill.Skill, error)
	GetAlias(source string) (*skill.Alias, error)
	ListSkills(filter index.ListFilter) ([]*skill.Skill, error)
}

// Resolution is the outcome of resolving one skill ID.
type Resolution struct {
	// Skill is the merged definition.
	Skill *skill.Skill
	// Layers lists the layers that contributed, lowest precedence first.
	Layers []skill.Layer
	// Conflicts lists every section-level conflict found, resolved or not.
	Conflicts []ConflictDetail
	// AliasedFrom is the original ID when alias redirection occurred.
	AliasedFrom string
	// Warnings carries deprecation notices.
	Warnings []string
}

// Registry resolves skills over an injected layer order.
type Registry struct {
	source   Source
	order    *skill.LayerOrder
	conflict ConflictStrategy
	merge    MergeStrategy
	cache    *cachemanager.ReadThroughCache[string, *Resolution]
}

// Option configures a Registry.
type Option func(*Registry)

// WithConflictStrategy overrides the default PreferHigher strategy.
func WithConflictStrategy(s ConflictStrategy) Option {
	return func(r *Registry) { r.conflict = s }
}

// WithMergeStrategy overrides the default Auto merge.
func WithMergeStrategy(s MergeStrategy) Option {
	return func(r *Registry) { r.merge = s }
}

// WithCache attaches a resolution cache, read through on every Resolve. The
// owner is responsible for flushing it when a write commits.
func WithCache(c cachemanager.CacheManager[string, *Resolution], ttl time.Duration) Option {
	return func(r *Registry) {
		r.cache = cachemanager.NewReadThroughCache(c, ttl, r.resolveUncached)
	}
}

// New creates a registry over the given source and layer order.
func New(source Source, order *skill.LayerOrder, opts ...Option) *Registry {
	r := &Registry{
		source:   source,
		order:    order,
		conflict: PreferHigher,
		merge:    MergeAuto,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the merged definition for an ID, following aliases first.
func (r *Registry) Resolve(ctx context.Context, id string) (*Resolution, error) {
	if r.cache != nil {
		return r.cache.Get(ctx, id)
	}
	return r.resolveUncached(ctx, id)
}

// resolveUncached is the loader behind the resolution cache.
func (r *Registry) resolveUncached(_ context.Context, id string) (*Resolution, error) {
	canonical, aliasWarnings, err := r.followAliases(id)
	if err != nil {
		return nil, err
	}

	res, err := r.resolveCanonical(canonical)
	if err != nil {
		return nil, err
	}
	if canonical != id {
		res.AliasedFrom = id
	}
	res.Warnings = append(aliasWarnings, res.Warnings...)
	return res, nil
}

// followAliases walks the alias chain to the canonical ID, collecting
// deprecation warnings along the way.
func (r *Registry) followAliases(id string) (string, []string, error) {
	var warnings []string
	current := id
	for hop := 0; hop < maxAliasHops; hop++ {
		alias, err := r.source.GetAlias(current)
		if errors.Is(err, index.ErrNotFound) {
			return current, warnings, nil
		}
		if err != nil {
			return "", nil, err
		}
		if alias.Kind == skill.AliasDeprecated {
			warnings = append(warnings,
				fmt.Sprintf("%q is deprecated, use %q", alias.Source, alias.Target))
		}
		log.Debug(log.CatRegistry, "following alias", "from", alias.Source, "to", alias.Target)
		current = alias.Target
	}
	return "", nil, fmt.Errorf("%w: starting at %q", ErrAliasLoop, id)
}

// resolveCanonical merges every layer's definition of a canonical ID.
func (r *Registry) resolveCanonical(id string) (*Resolution, error) {
	defs, err := r.source.GetSkillAnyLayer(id)
	if err != nil {
		return nil, err
	}

	// Keep only layers in the configured order, lowest first. Definitions
	// from unconfigured layers are invisible to this registry instance.
	ordered := make([]*skill.Skill, 0, len(defs))
	for _, d := range defs {
		if r.order.Contains(d.Layer) {
			ordered = append(ordered, d)
		}
	}
	if len(ordered) == 0 {
		return nil, fmt.Errorf("resolving %q: %w", id, ErrNotFound)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return r.order.Higher(ordered[j].Layer, ordered[i].Layer)
	})

	res, err := mergeLayers(ordered, r.conflict, r.merge)
	if err != nil {
		return nil, err
	}
	if res.Skill.IsDeprecated() {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%q is deprecated, use %q", id, res.Skill.DeprecatedBy))
	}
	return res, nil
}

// ResolveAll resolves every known skill ID. Deprecated skills are excluded
// unless includeDeprecated is set; they stay resolvable by ID either way.
// Output is sorted by ID for deterministic enumeration.
func (r *Registry) ResolveAll(ctx context.Context, includeDeprecated bool) ([]*Resolution, error) {
	all, err := r.source.ListSkills(index.ListFilter{IncludeDeprecated: true})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, s := range all {
		if !r.order.Contains(s.Layer) || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)

	out := make([]*Resolution, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.resolveCanonical(id)
		if err != nil {
			return nil, err
		}
		if res.Skill.IsDeprecated() && !includeDeprecated {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// Invalidate drops the cached resolutions. Called after any committed write;
// a section-level diff of what changed is not worth the bookkeeping.
func (r *Registry) Invalidate(ctx context.Context) {
	if r.cache != nil {
		_ = r.cache.Flush(ctx)
		log.Debug(log.CatRegistry, "resolution cache flushed")
	}
}
