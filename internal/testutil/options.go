package testutil

import (
	"time"

	"github.com/quarrylabs/skillstore/internal/skill"
)

// SkillOption configures a skill being built.
type SkillOption func(*skill.Skill)

// Name sets the display name.
func Name(name string) SkillOption {
	return func(s *skill.Skill) { s.Name = name }
}

// Version sets the version string.
func Version(v string) SkillOption {
	return func(s *skill.Skill) { s.Version = v }
}

// Description sets the description.
func Description(d string) SkillOption {
	return func(s *skill.Skill) { s.Description = d }
}

// Requires sets the required capabilities.
func Requires(caps ...string) SkillOption {
	return func(s *skill.Skill) { s.Requires = caps }
}

// Provides sets the provided capabilities.
func Provides(caps ...string) SkillOption {
	return func(s *skill.Skill) { s.Provides = caps }
}

// DeprecatedBy marks the skill deprecated in favor of another ID.
func DeprecatedBy(id string) SkillOption {
	return func(s *skill.Skill) { s.DeprecatedBy = id }
}

// Metadata sets one metadata key.
func Metadata(key, value string) SkillOption {
	return func(s *skill.Skill) {
		if s.Metadata == nil {
			s.Metadata = make(map[string]string)
		}
		s.Metadata[key] = value
	}
}

// Section replaces or appends a section with a single text block.
func Section(id, title, content string) SkillOption {
	return func(s *skill.Skill) {
		sec := skill.Section{
			ID:    id,
			Title: title,
			Blocks: []skill.Block{
				{ID: id + "-1", Type: "text", Content: content},
			},
		}
		for i := range s.Sections {
			if s.Sections[i].ID == id {
				s.Sections[i] = sec
				return
			}
		}
		s.Sections = append(s.Sections, sec)
	}
}

// Timestamps sets both created and updated times.
func Timestamps(at time.Time) SkillOption {
	return func(s *skill.Skill) {
		s.CreatedAt = at
		s.UpdatedAt = at
	}
}

func defaultSkill(id string, layer skill.Layer) skill.Skill {
	now := time.Now().UTC()
	return skill.Skill{
		ID:      id,
		Name:    "Skill " + id,
		Version: "1.0.0",
		Layer:   layer,
		Sections: []skill.Section{
			{ID: "overview", Title: "Overview", Blocks: []skill.Block{
				{ID: "overview-1", Type: "text", Content: "overview of " + id},
			}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
