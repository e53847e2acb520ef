package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/skill"
	"github.com/quarrylabs/skillstore/internal/store/archive"
	"github.com/quarrylabs/skillstore/internal/store/index"
	"github.com/quarrylabs/skillstore/internal/store/txn"
	"github.com/quarrylabs/skillstore/internal/tracing"
)

// FindingKind classifies one divergence between the two backends.
type FindingKind string

const (
	// FindingMissingFromIndex: the archive holds a live skill the index does
	// not know about.
	FindingMissingFromIndex FindingKind = "missing_from_index"
	// FindingMissingFromArchive: the index holds a skill the archive has no
	// file for.
	FindingMissingFromArchive FindingKind = "missing_from_archive"
	// FindingHashMismatch: both backends hold the skill but the content
	// differs.
	FindingHashMismatch FindingKind = "hash_mismatch"
)

// Finding is one backend divergence found by Diagnose.
type Finding struct {
	SkillID string
	Layer   skill.Layer
	Kind    FindingKind
	Detail  string
}

// Diagnosis is the result of a consistency sweep across both backends.
type Diagnosis struct {
	Findings []Finding
	Pending  []index.TxRow
}

// Clean reports whether the backends agree and no transactions are stuck.
func (d *Diagnosis) Clean() bool {
	return len(d.Findings) == 0 && len(d.Pending) == 0
}

// RepairReport summarizes what Repair changed.
type RepairReport struct {
	Recovered *txn.Report
	Repaired  []Finding
}

// Diagnose compares the indexed store against the content archive without
// changing anything. Read-only; safe to run while writers are active, though
// in-flight transactions may show up as transient findings.
func (s *Store) Diagnose(ctx context.Context) (*Diagnosis, error) {
	indexed, err := s.db.ListSkills(index.ListFilter{IncludeDeprecated: true})
	if err != nil {
		return nil, err
	}
	archived, err := s.archive.ListSkills()
	if err != nil {
		return nil, err
	}

	type key struct {
		id    string
		layer skill.Layer
	}
	inIndex := make(map[key]*skill.Skill, len(indexed))
	for _, sk := range indexed {
		inIndex[key{sk.ID, sk.Layer}] = sk
	}

	var d Diagnosis
	seen := make(map[key]bool, len(archived))
	for _, ar := range archived {
		k := key{ar.ID, ar.Layer}
		seen[k] = true
		ix, ok := inIndex[k]
		if !ok {
			// A tombstoned index row with a live archive file is still a
			// divergence; GetSkill excludes soft-deleted rows the same way
			// ListSkills does.
			d.Findings = append(d.Findings, Finding{
				SkillID: ar.ID, Layer: ar.Layer,
				Kind:   FindingMissingFromIndex,
				Detail: "archive holds a live skill the index does not",
			})
			continue
		}
		if ix.ContentHash() != ar.ContentHash() {
			d.Findings = append(d.Findings, Finding{
				SkillID: ar.ID, Layer: ar.Layer,
				Kind:   FindingHashMismatch,
				Detail: fmt.Sprintf("index %s != archive %s", ix.ContentHash(), ar.ContentHash()),
			})
		}
	}
	for _, ix := range indexed {
		k := key{ix.ID, ix.Layer}
		if seen[k] {
			continue
		}
		// A tombstone file in the archive means the delete landed there but
		// the index row survived. That is still missing-from-archive from the
		// reader's point of view.
		d.Findings = append(d.Findings, Finding{
			SkillID: ix.ID, Layer: ix.Layer,
			Kind:   FindingMissingFromArchive,
			Detail: "index holds a skill the archive has no live file for",
		})
	}

	pending, err := s.txns.Pending()
	if err != nil {
		return nil, err
	}
	d.Pending = pending
	return &d, nil
}

// Repair reconciles the indexed store against the content archive. Recovery
// runs first to drain stuck transactions; remaining divergences are resolved
// with the archive as the source of truth. Every fix is a fresh transaction
// through the normal dual-backend write path.
func (s *Store) Repair(ctx context.Context) (*RepairReport, error) {
	_, span := s.tracer.Start(ctx, tracing.SpanPrefixRepair)
	defer span.End()

	l, err := s.locks.Acquire(s.cfg.Lock.Timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Release() }()

	report := &RepairReport{}
	recovered, rerr := s.txns.Recover()
	report.Recovered = recovered
	if rerr != nil {
		// Fatal payloads stay in place; repair still reconciles the rest.
		log.Warn(log.CatRecover, "recovery reported errors before repair", "error", rerr.Error())
	}

	diag, err := s.Diagnose(ctx)
	if err != nil {
		return report, err
	}

	var errs []error
	for _, f := range diag.Findings {
		if err := s.repairFinding(f); err != nil {
			errs = append(errs, fmt.Errorf("repairing %s@%s: %w", f.SkillID, f.Layer, err))
			continue
		}
		report.Repaired = append(report.Repaired, f)
		log.Info(log.CatRecover, "repaired divergence",
			"skill", f.SkillID, "layer", string(f.Layer), "kind", string(f.Kind))
	}
	if rerr != nil {
		errs = append(errs, rerr)
	}
	return report, errors.Join(errs...)
}

func (s *Store) repairFinding(f Finding) error {
	switch f.Kind {
	case FindingMissingFromIndex, FindingHashMismatch:
		ar, err := s.archive.ReadSkill(f.SkillID, f.Layer)
		if err != nil {
			return err
		}
		_, err = s.txns.Write(&skill.Mutation{Kind: skill.MutationUpdate, Skill: ar})
		return err
	case FindingMissingFromArchive:
		// The archive may hold a tombstone whose index half never landed;
		// finish the delete. Otherwise the file is simply gone and the index
		// row is tombstoned so readers stop seeing phantom content.
		t, _, err := s.archive.ReadTombstone(f.SkillID, f.Layer)
		if err != nil && !errors.Is(err, archive.ErrNotFound) {
			return err
		}
		if t == nil {
			t = &skill.Tombstone{
				SkillID:   f.SkillID,
				Layer:     f.Layer,
				Reason:    "missing from archive",
				DeletedAt: time.Now().UTC(),
			}
		}
		_, err = s.txns.Write(&skill.Mutation{Kind: skill.MutationTombstone, Tombstone: t})
		return err
	default:
		return fmt.Errorf("unknown finding kind %q", f.Kind)
	}
}
