// Package skill defines the domain model for the registry: skills, their
// sections and blocks, layers, aliases, and the mutations that flow through
// the transactional write path.
package skill

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Block is the smallest addressable unit of skill content.
type Block struct {
	ID      string `json:"id" yaml:"id"`
	Type    string `json:"type" yaml:"type"`
	Content string `json:"content" yaml:"content"`
}

// Section groups blocks under a stable section identifier.
// Conflict detection between layers operates at this granularity.
type Section struct {
	ID     string  `json:"id" yaml:"id"`
	Title  string  `json:"title" yaml:"title"`
	Blocks []Block `json:"blocks" yaml:"blocks"`
}

// Category classifies a section for merge-policy purposes.
// Directive sections are overridden wholesale by higher layers; illustrative
// sections (examples, references, templates) may be kept from lower layers.
func (s Section) Category() SectionCategory {
	switch s.ID {
	case "examples", "references", "templates":
		return CategoryIllustrative
	default:
		return CategoryDirective
	}
}

// SectionCategory is the merge-policy class of a section.
type SectionCategory string

const (
	CategoryDirective    SectionCategory = "directive"
	CategoryIllustrative SectionCategory = "illustrative"
)

// Skill is the unit of storage. The same ID may exist at multiple layers;
// cross-layer collisions are resolved by the layered registry, not rejected
// at write time.
type Skill struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Version     string    `json:"version" yaml:"version"`
	Description string    `json:"description" yaml:"description"`
	Layer       Layer     `json:"layer" yaml:"layer"`
	Sections    []Section `json:"sections" yaml:"sections"`

	// Requires and Provides are capability identifiers used to build the
	// dependency graph.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	Provides []string `json:"provides,omitempty" yaml:"provides,omitempty"`

	// DeprecatedBy points at a replacement skill ID. Deprecated skills are
	// excluded from default enumeration but remain resolvable by ID.
	DeprecatedBy string `json:"deprecated_by,omitempty" yaml:"deprecated_by,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// ContentHash returns the sha256 of the skill's canonical JSON encoding.
// Timestamps are excluded so the hash tracks content, not write time.
func (s *Skill) ContentHash() string {
	type hashable struct {
		ID           string            `json:"id"`
		Name         string            `json:"name"`
		Version      string            `json:"version"`
		Description  string            `json:"description"`
		Sections     []Section         `json:"sections"`
		Requires     []string          `json:"requires"`
		Provides     []string          `json:"provides"`
		DeprecatedBy string            `json:"deprecated_by"`
		Metadata     map[string]string `json:"metadata"`
	}
	data, err := json.Marshal(hashable{
		ID:           s.ID,
		Name:         s.Name,
		Version:      s.Version,
		Description:  s.Description,
		Sections:     s.Sections,
		Requires:     s.Requires,
		Provides:     s.Provides,
		DeprecatedBy: s.DeprecatedBy,
		Metadata:     s.Metadata,
	})
	if err != nil {
		// json.Marshal cannot fail for this shape
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsDeprecated reports whether the skill carries a deprecation pointer.
func (s *Skill) IsDeprecated() bool {
	return s.DeprecatedBy != ""
}

// Section returns the section with the given ID, or nil.
func (s *Skill) Section(id string) *Section {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			return &s.Sections[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the skill.
func (s *Skill) Clone() *Skill {
	out := *s
	out.Sections = make([]Section, len(s.Sections))
	for i, sec := range s.Sections {
		cp := sec
		cp.Blocks = append([]Block(nil), sec.Blocks...)
		out.Sections[i] = cp
	}
	out.Requires = append([]string(nil), s.Requires...)
	out.Provides = append([]string(nil), s.Provides...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
