package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quarrylabs/skillstore/internal/log"
	"github.com/quarrylabs/skillstore/internal/skill"
)

// ErrNotFound indicates the requested entity has no file in the archive.
var ErrNotFound = errors.New("archive: not found")

const (
	skillsDir  = "skills/by-id"
	aliasesDir = "aliases"
)

// Archive is the content archive backend. Files live in a git work tree and
// every applied mutation is exactly one commit tagged with its transaction id.
type Archive struct {
	root string
	exec Executor
}

// Open prepares the archive at root, initializing the git repository on first
// use.
func Open(root string, exec Executor) (*Archive, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive root: %w", err)
	}
	a := &Archive{root: root, exec: exec}
	if !exec.IsRepo() {
		log.Info(log.CatArchive, "initializing archive repository", "root", root)
		if err := exec.Init(); err != nil {
			return nil, fmt.Errorf("initializing archive: %w", err)
		}
	}
	return a, nil
}

// txMarker is the string embedded in every commit subject. Replay detection
// greps for it, so it must be unique per transaction.
func txMarker(txID string) string {
	return "[tx:" + txID + "]"
}

// Committed reports whether the archive already holds a commit for the given
// transaction. Recovery uses this to make replays no-ops.
func (a *Archive) Committed(txID string) (bool, error) {
	return a.exec.HasCommitWithSubject(txMarker(txID))
}

// Apply writes a mutation to the archive as a single commit. Applying the
// same transaction twice is a no-op.
func (a *Archive) Apply(m *skill.Mutation, txID string) error {
	done, err := a.Committed(txID)
	if err != nil {
		return err
	}
	if done {
		log.Debug(log.CatArchive, "transaction already committed, skipping", "tx", txID)
		return nil
	}

	switch m.Kind {
	case skill.MutationCreate, skill.MutationUpdate:
		return a.writeSkill(m.Skill, m.Kind, txID)
	case skill.MutationDelete, skill.MutationTombstone:
		return a.writeTombstone(m.Tombstone, txID)
	case skill.MutationAlias:
		return a.writeAlias(m.Alias, txID)
	default:
		return fmt.Errorf("archive: unknown mutation kind %q", m.Kind)
	}
}

func (a *Archive) skillPath(id string, layer skill.Layer) string {
	return filepath.Join(skillsDir, id, string(layer)+".yaml")
}

func (a *Archive) tombstonePath(id string, layer skill.Layer) string {
	return filepath.Join(skillsDir, id, string(layer)+".tombstone.yaml")
}

func (a *Archive) aliasPath(source string) string {
	return filepath.Join(aliasesDir, source+".yaml")
}

func (a *Archive) writeFile(rel string, v any) error {
	abs := filepath.Join(a.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

func (a *Archive) writeSkill(s *skill.Skill, kind skill.MutationKind, txID string) error {
	rel := a.skillPath(s.ID, s.Layer)
	if err := a.writeFile(rel, s); err != nil {
		return err
	}
	// A re-created skill clears any tombstone left by a prior delete.
	if err := a.exec.Remove(a.tombstonePath(s.ID, s.Layer)); err != nil {
		return err
	}
	if err := a.exec.Add(rel); err != nil {
		return err
	}
	msg := fmt.Sprintf("%s %s@%s %s", kind, s.ID, s.Layer, txMarker(txID))
	return a.exec.Commit(msg)
}

// tombstoneFile is the on-disk tombstone. It embeds the last committed skill
// payload so restore does not have to walk git history.
type tombstoneFile struct {
	Tombstone *skill.Tombstone `yaml:"tombstone"`
	Skill     *skill.Skill     `yaml:"skill,omitempty"`
}

func (a *Archive) writeTombstone(t *skill.Tombstone, txID string) error {
	prior, err := a.ReadSkill(t.SkillID, t.Layer)
	if errors.Is(err, ErrNotFound) {
		// A crashed earlier attempt may have removed the live file already;
		// the half-written tombstone still carries the payload.
		if _, embedded, terr := a.ReadTombstone(t.SkillID, t.Layer); terr == nil {
			prior = embedded
		}
	} else if err != nil {
		return err
	}

	rel := a.tombstonePath(t.SkillID, t.Layer)
	if err := a.writeFile(rel, tombstoneFile{Tombstone: t, Skill: prior}); err != nil {
		return err
	}
	if err := a.exec.Remove(a.skillPath(t.SkillID, t.Layer)); err != nil {
		return err
	}
	if err := a.exec.Add(rel); err != nil {
		return err
	}
	msg := fmt.Sprintf("tombstone %s@%s %s", t.SkillID, t.Layer, txMarker(txID))
	return a.exec.Commit(msg)
}

func (a *Archive) writeAlias(al *skill.Alias, txID string) error {
	rel := a.aliasPath(al.Source)
	if err := a.writeFile(rel, al); err != nil {
		return err
	}
	if err := a.exec.Add(rel); err != nil {
		return err
	}
	msg := fmt.Sprintf("alias %s -> %s %s", al.Source, al.Target, txMarker(txID))
	return a.exec.Commit(msg)
}

// ReadSkill loads the live skill file for an ID at a layer.
func (a *Archive) ReadSkill(id string, layer skill.Layer) (*skill.Skill, error) {
	data, err := os.ReadFile(filepath.Join(a.root, a.skillPath(id, layer)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading skill %s@%s: %w", id, layer, err)
	}
	var s skill.Skill
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding skill %s@%s: %w", id, layer, err)
	}
	return &s, nil
}

// ReadTombstone loads a tombstone file, including the embedded prior payload.
func (a *Archive) ReadTombstone(id string, layer skill.Layer) (*skill.Tombstone, *skill.Skill, error) {
	data, err := os.ReadFile(filepath.Join(a.root, a.tombstonePath(id, layer)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading tombstone %s@%s: %w", id, layer, err)
	}
	var tf tombstoneFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("decoding tombstone %s@%s: %w", id, layer, err)
	}
	return tf.Tombstone, tf.Skill, nil
}

// ReadAlias loads an alias file by source identifier.
func (a *Archive) ReadAlias(source string) (*skill.Alias, error) {
	data, err := os.ReadFile(filepath.Join(a.root, a.aliasPath(source)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading alias %s: %w", source, err)
	}
	var al skill.Alias
	if err := yaml.Unmarshal(data, &al); err != nil {
		return nil, fmt.Errorf("decoding alias %s: %w", source, err)
	}
	return &al, nil
}

// ListSkills walks the work tree and returns every live skill, sorted by
// id then layer. Tombstoned entries are skipped.
func (a *Archive) ListSkills() ([]*skill.Skill, error) {
	base := filepath.Join(a.root, skillsDir)
	var out []*skill.Skill
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return filepath.SkipAll
		}
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".tombstone.yaml") {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		var s skill.Skill
		if uerr := yaml.Unmarshal(data, &s); uerr != nil {
			return fmt.Errorf("decoding %s: %w", path, uerr)
		}
		out = append(out, &s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking archive: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Layer < out[j].Layer
	})
	return out, nil
}

// ListAliases returns every alias file, sorted by source.
func (a *Archive) ListAliases() ([]*skill.Alias, error) {
	base := filepath.Join(a.root, aliasesDir)
	entries, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}
	var out []*skill.Alias
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		al, err := a.ReadAlias(strings.TrimSuffix(e.Name(), ".yaml"))
		if err != nil {
			return nil, err
		}
		out = append(out, al)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// RestoreSkill undoes a tombstone by rewriting the embedded prior payload as
// the live file. Returns the restored skill.
func (a *Archive) RestoreSkill(id string, layer skill.Layer, txID string) (*skill.Skill, error) {
	done, err := a.Committed(txID)
	if err != nil {
		return nil, err
	}
	_, prior, err := a.ReadTombstone(id, layer)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, fmt.Errorf("tombstone for %s@%s carries no payload", id, layer)
	}
	if done {
		return prior, nil
	}

	rel := a.skillPath(id, layer)
	if err := a.writeFile(rel, prior); err != nil {
		return nil, err
	}
	if err := a.exec.Remove(a.tombstonePath(id, layer)); err != nil {
		return nil, err
	}
	if err := a.exec.Add(rel); err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("restore %s@%s %s", id, layer, txMarker(txID))
	if err := a.exec.Commit(msg); err != nil {
		return nil, err
	}
	return prior, nil
}

// PurgeSkill physically removes a skill's files. History is preserved; only
// the work tree forgets the entry. Explicit purge path only.
func (a *Archive) PurgeSkill(id string, layer skill.Layer) error {
	if err := a.exec.Remove(a.skillPath(id, layer), a.tombstonePath(id, layer)); err != nil {
		return err
	}
	return a.exec.Commit(fmt.Sprintf("purge %s@%s", id, layer))
}

// History returns the most recent archive commits, newest first.
func (a *Archive) History(limit int) ([]CommitInfo, error) {
	return a.exec.Log(limit)
}
