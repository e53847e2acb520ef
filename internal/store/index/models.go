package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quarrylabs/skillstore/internal/skill"
)

// SkillModel represents the database row for the skills table.
// Fields map directly to SQL columns with Unix timestamps for time values.
type SkillModel struct {
	ID           string
	Layer        string
	Name         string
	Version      string
	Description  string
	ContentHash  string
	Requires     string // JSON array
	Provides     string // JSON array
	DeprecatedBy string
	Metadata     string // JSON object
	Sections     string // JSON array
	LastTxID     string
	CreatedAt    int64
	UpdatedAt    int64
	DeletedAt    *int64 // nullable
}

// toSkillModel converts a domain skill to a database row.
func toSkillModel(s *skill.Skill, txID string) (*SkillModel, error) {
	requires, err := json.Marshal(emptyIfNil(s.Requires))
	if err != nil {
		return nil, fmt.Errorf("encoding requires: %w", err)
	}
	provides, err := json.Marshal(emptyIfNil(s.Provides))
	if err != nil {
		return nil, fmt.Errorf("encoding provides: %w", err)
	}
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	sections, err := json.Marshal(s.Sections)
	if err != nil {
		return nil, fmt.Errorf("encoding sections: %w", err)
	}
	return &SkillModel{
		ID:           s.ID,
		Layer:        string(s.Layer),
		Name:         s.Name,
		Version:      s.Version,
		Description:  s.Description,
		ContentHash:  s.ContentHash(),
		Requires:     string(requires),
		Provides:     string(provides),
		DeprecatedBy: s.DeprecatedBy,
		Metadata:     string(metadata),
		Sections:     string(sections),
		LastTxID:     txID,
		CreatedAt:    s.CreatedAt.Unix(),
		UpdatedAt:    s.UpdatedAt.Unix(),
	}, nil
}

// toDomain converts a database row back to a domain skill.
func (m *SkillModel) toDomain() (*skill.Skill, error) {
	s := &skill.Skill{
		ID:           m.ID,
		Name:         m.Name,
		Version:      m.Version,
		Description:  m.Description,
		Layer:        skill.Layer(m.Layer),
		DeprecatedBy: m.DeprecatedBy,
		CreatedAt:    time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:    time.Unix(m.UpdatedAt, 0).UTC(),
	}
	if err := json.Unmarshal([]byte(m.Requires), &s.Requires); err != nil {
		return nil, fmt.Errorf("decoding requires for %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(m.Provides), &s.Provides); err != nil {
		return nil, fmt.Errorf("decoding provides for %s: %w", m.ID, err)
	}
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &s.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", m.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(m.Sections), &s.Sections); err != nil {
		return nil, fmt.Errorf("decoding sections for %s: %w", m.ID, err)
	}
	return s, nil
}

// AliasModel represents the database row for the aliases table.
type AliasModel struct {
	Source    string
	Target    string
	Kind      string
	LastTxID  string
	CreatedAt int64
}

func (m *AliasModel) toDomain() *skill.Alias {
	return &skill.Alias{
		Source:    m.Source,
		Target:    m.Target,
		Kind:      skill.AliasKind(m.Kind),
		CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
	}
}

// TombstoneModel represents the database row for the tombstones table.
type TombstoneModel struct {
	SkillID     string
	Layer       string
	ContentHash string
	Reason      string
	LastTxID    string
	DeletedAt   int64
}

func (m *TombstoneModel) toDomain() *skill.Tombstone {
	return &skill.Tombstone{
		SkillID:     m.SkillID,
		Layer:       skill.Layer(m.Layer),
		ContentHash: m.ContentHash,
		Reason:      m.Reason,
		DeletedAt:   time.Unix(m.DeletedAt, 0).UTC(),
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
