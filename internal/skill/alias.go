package skill

import "time"

// AliasKind distinguishes renames from deprecation redirects.
type AliasKind string

const (
	// AliasRename maps an old ID to its new canonical ID.
	AliasRename AliasKind = "rename"
	// AliasDeprecated redirects a deprecated ID; resolution attaches a
	// deprecation warning when following it.
	AliasDeprecated AliasKind = "deprecated"
)

// Alias maps a legacy identifier to a canonical skill ID.
// Aliases share one namespace with primary skill IDs: inserting an alias
// whose source collides with an existing skill must fail.
type Alias struct {
	Source    string    `json:"source" yaml:"source"`
	Target    string    `json:"target" yaml:"target"`
	Kind      AliasKind `json:"kind" yaml:"kind"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Tombstone records a logical deletion. Deletes are never physical on the
// write path; purging is a separate, explicitly invoked operation.
type Tombstone struct {
	SkillID     string    `json:"skill_id" yaml:"skill_id"`
	Layer       Layer     `json:"layer" yaml:"layer"`
	ContentHash string    `json:"content_hash" yaml:"content_hash"`
	Reason      string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	DeletedAt   time.Time `json:"deleted_at" yaml:"deleted_at"`
}
