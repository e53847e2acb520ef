package skill

import (
	"encoding/json"
	"fmt"
)

// MutationKind is the type of write carried through the transaction manager.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	// MutationDelete is a synonym for MutationTombstone and carries the same
	// tombstone payload. Kept so journaled payloads using either name replay.
	MutationDelete    MutationKind = "delete"
	MutationAlias     MutationKind = "alias"
	MutationTombstone MutationKind = "tombstone"
)

// Mutation is a fully-formed write request. The transaction manager applies
// it to both backends or neither; the payload captured at prepare time is the
// only thing recovery ever replays.
type Mutation struct {
	Kind      MutationKind `json:"kind"`
	Skill     *Skill       `json:"skill,omitempty"`
	Alias     *Alias       `json:"alias,omitempty"`
	Tombstone *Tombstone   `json:"tombstone,omitempty"`
}

// EntityID returns the identifier of the entity the mutation targets.
func (m *Mutation) EntityID() string {
	switch m.Kind {
	case MutationCreate, MutationUpdate:
		if m.Skill != nil {
			return m.Skill.ID
		}
	case MutationAlias:
		if m.Alias != nil {
			return m.Alias.Source
		}
	case MutationDelete, MutationTombstone:
		if m.Tombstone != nil {
			return m.Tombstone.SkillID
		}
	}
	return ""
}

// EntityType returns the entity type label recorded in the transaction log.
func (m *Mutation) EntityType() string {
	switch m.Kind {
	case MutationAlias:
		return "alias"
	case MutationDelete, MutationTombstone:
		return "tombstone"
	default:
		return "skill"
	}
}

// Validate checks that the mutation carries the payload its kind requires.
// Both backends dispatch on Kind, so a payload mismatch must be caught here:
// nothing past this point tolerates a nil payload for the kind.
func (m *Mutation) Validate() error {
	switch m.Kind {
	case MutationCreate, MutationUpdate:
		if m.Skill == nil {
			return fmt.Errorf("%s mutation requires a skill payload", m.Kind)
		}
		if m.Skill.ID == "" {
			return fmt.Errorf("skill ID must not be empty")
		}
		if m.Skill.Layer == "" {
			return fmt.Errorf("skill %s has no originating layer", m.Skill.ID)
		}
	case MutationAlias:
		if m.Alias == nil {
			return fmt.Errorf("alias mutation requires an alias payload")
		}
		if m.Alias.Source == "" || m.Alias.Target == "" {
			return fmt.Errorf("alias source and target must not be empty")
		}
		if m.Alias.Source == m.Alias.Target {
			return fmt.Errorf("alias %s must not point at itself", m.Alias.Source)
		}
	case MutationDelete, MutationTombstone:
		if m.Tombstone == nil {
			return fmt.Errorf("%s mutation requires a tombstone payload", m.Kind)
		}
		if m.Tombstone.SkillID == "" {
			return fmt.Errorf("tombstone skill ID must not be empty")
		}
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	return nil
}

// Encode serializes the mutation for the durable transaction journal.
func (m *Mutation) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMutation deserializes a journaled mutation payload.
func DecodeMutation(data []byte) (*Mutation, error) {
	var m Mutation
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding mutation payload: %w", err)
	}
	return &m, nil
}
