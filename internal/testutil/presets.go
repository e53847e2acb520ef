package testutil

import "github.com/quarrylabs/skillstore/internal/skill"

// WithLayeredFixture adds one skill defined at three layers with a
// conflicting guidelines section, plus an alias pointing at it.
//
// Structure:
//
//	git-basics @ base     guidelines: "use feature branches"
//	git-basics @ org      guidelines: "use trunk-based development"
//	git-basics @ user     adds an examples section only
//	git-fundamentals      alias -> git-basics
func (b *Builder) WithLayeredFixture() *Builder {
	return b.
		WithSkill("git-basics", skill.LayerBase,
			Section("guidelines", "Guidelines", "use feature branches"),
			Provides("vcs")).
		WithSkill("git-basics", skill.LayerOrg,
			Section("guidelines", "Guidelines", "use trunk-based development"),
			Provides("vcs")).
		WithSkill("git-basics", skill.LayerUser,
			Section("examples", "Examples", "git rebase -i origin/main")).
		WithAlias("git-fundamentals", "git-basics", skill.AliasRename)
}

// WithDependencyFixture adds a three-skill capability chain.
//
// Structure:
//
//	shell    provides terminal
//	git      requires terminal, provides vcs
//	release  requires vcs
func (b *Builder) WithDependencyFixture() *Builder {
	return b.
		WithSkill("shell", skill.LayerBase, Provides("terminal")).
		WithSkill("git", skill.LayerBase, Requires("terminal"), Provides("vcs")).
		WithSkill("release", skill.LayerBase, Requires("vcs"))
}
