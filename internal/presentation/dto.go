package presentation

import (
	"time"

	"github.com/quarrylabs/skillstore/internal/registry"
	"github.com/quarrylabs/skillstore/internal/skill"
	"github.com/quarrylabs/skillstore/internal/store"
	"github.com/quarrylabs/skillstore/internal/store/archive"
	"github.com/quarrylabs/skillstore/internal/store/index"
	"github.com/quarrylabs/skillstore/internal/store/lock"
)

// ResolutionDTO is the JSON shape of a resolved skill.
type ResolutionDTO struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Description string        `json:"description,omitempty"`
	Layers      []string      `json:"layers"`
	Requires    []string      `json:"requires,omitempty"`
	Provides    []string      `json:"provides,omitempty"`
	Sections    []string      `json:"sections"`
	Conflicts   []ConflictDTO `json:"conflicts,omitempty"`
	AliasedFrom string        `json:"aliased_from,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// ConflictDTO describes one section-level conflict between layers.
type ConflictDTO struct {
	SectionID string `json:"section_id"`
	Category  string `json:"category"`
	Lower     string `json:"lower_layer"`
	Higher    string `json:"higher_layer"`
	Winner    string `json:"winner"`
}

// FromResolution converts a resolution to its presentation shape.
func FromResolution(r *registry.Resolution) ResolutionDTO {
	layers := make([]string, len(r.Layers))
	for i, l := range r.Layers {
		layers[i] = string(l)
	}
	sections := make([]string, len(r.Skill.Sections))
	for i, sec := range r.Skill.Sections {
		sections[i] = sec.ID
	}
	conflicts := make([]ConflictDTO, len(r.Conflicts))
	for i, c := range r.Conflicts {
		conflicts[i] = ConflictDTO{
			SectionID: c.SectionID,
			Category:  string(c.Category),
			Lower:     string(c.Lower),
			Higher:    string(c.Higher),
			Winner:    string(c.Winner),
		}
	}
	return ResolutionDTO{
		ID:          r.Skill.ID,
		Name:        r.Skill.Name,
		Version:     r.Skill.Version,
		Description: r.Skill.Description,
		Layers:      layers,
		Requires:    r.Skill.Requires,
		Provides:    r.Skill.Provides,
		Sections:    sections,
		Conflicts:   conflicts,
		AliasedFrom: r.AliasedFrom,
		Warnings:    r.Warnings,
	}
}

// FromResolutions converts a list of resolutions.
func FromResolutions(rs []*registry.Resolution) []ResolutionDTO {
	out := make([]ResolutionDTO, len(rs))
	for i, r := range rs {
		out[i] = FromResolution(r)
	}
	return out
}

// TombstoneDTO is the JSON shape of a logical deletion.
type TombstoneDTO struct {
	SkillID     string    `json:"skill_id"`
	Layer       string    `json:"layer"`
	ContentHash string    `json:"content_hash,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	DeletedAt   time.Time `json:"deleted_at"`
}

// FromTombstones converts tombstones to their presentation shape.
func FromTombstones(ts []*skill.Tombstone) []TombstoneDTO {
	out := make([]TombstoneDTO, len(ts))
	for i, t := range ts {
		out[i] = TombstoneDTO{
			SkillID:     t.SkillID,
			Layer:       string(t.Layer),
			ContentHash: t.ContentHash,
			Reason:      t.Reason,
			DeletedAt:   t.DeletedAt,
		}
	}
	return out
}

// HolderDTO is the JSON shape of the global lock holder.
type HolderDTO struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
	Stale      bool      `json:"stale"`
}

// FromHolder converts a lock holder, nil when the lock is unheld.
func FromHolder(h *lock.Holder) *HolderDTO {
	if h == nil {
		return nil
	}
	return &HolderDTO{
		PID:        h.PID,
		Hostname:   h.Hostname,
		Token:      h.Token,
		AcquiredAt: h.AcquiredAt,
		Stale:      h.Stale(),
	}
}

// TxDTO is the JSON shape of a transaction log record.
type TxDTO struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Phase      string `json:"phase"`
	CreatedAt  int64  `json:"created_at"`
}

// FromTxRows converts transaction records.
func FromTxRows(rows []index.TxRow) []TxDTO {
	out := make([]TxDTO, len(rows))
	for i, r := range rows {
		out[i] = TxDTO{
			ID:         r.ID,
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Phase:      r.Phase,
			CreatedAt:  r.CreatedAt,
		}
	}
	return out
}

// CommitDTO is the JSON shape of one archive history entry.
type CommitDTO struct {
	Hash    string    `json:"hash"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
}

// FromCommits converts archive history entries.
func FromCommits(cs []archive.CommitInfo) []CommitDTO {
	out := make([]CommitDTO, len(cs))
	for i, c := range cs {
		out[i] = CommitDTO{Hash: c.Hash, Subject: c.Subject, Date: c.Date}
	}
	return out
}

// FindingDTO is the JSON shape of one backend divergence.
type FindingDTO struct {
	SkillID string `json:"skill_id"`
	Layer   string `json:"layer"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
}

// DiagnosisDTO is the JSON shape of a consistency sweep.
type DiagnosisDTO struct {
	Clean    bool         `json:"clean"`
	Findings []FindingDTO `json:"findings"`
	Pending  []TxDTO      `json:"pending_transactions"`
}

// FromDiagnosis converts a diagnosis report.
func FromDiagnosis(d *store.Diagnosis) DiagnosisDTO {
	findings := make([]FindingDTO, len(d.Findings))
	for i, f := range d.Findings {
		findings[i] = FindingDTO{
			SkillID: f.SkillID,
			Layer:   string(f.Layer),
			Kind:    string(f.Kind),
			Detail:  f.Detail,
		}
	}
	return DiagnosisDTO{
		Clean:    d.Clean(),
		Findings: findings,
		Pending:  FromTxRows(d.Pending),
	}
}

// RepairDTO is the JSON shape of a repair run.
type RepairDTO struct {
	RolledForward []string     `json:"rolled_forward"`
	RolledBack    []string     `json:"rolled_back"`
	Repaired      []FindingDTO `json:"repaired"`
}

// FromRepairReport converts a repair report.
func FromRepairReport(r *store.RepairReport) RepairDTO {
	out := RepairDTO{
		RolledForward: []string{},
		RolledBack:    []string{},
		Repaired:      make([]FindingDTO, len(r.Repaired)),
	}
	if r.Recovered != nil {
		out.RolledForward = r.Recovered.RolledForward
		out.RolledBack = r.Recovered.RolledBack
	}
	for i, f := range r.Repaired {
		out.Repaired[i] = FindingDTO{
			SkillID: f.SkillID,
			Layer:   string(f.Layer),
			Kind:    string(f.Kind),
			Detail:  f.Detail,
		}
	}
	return out
}
