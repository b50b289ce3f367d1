// Package roster manages the party roster the narration pipeline draws on:
// the set of characters travelling with the player, with the descriptive
// attributes the voice assigner needs and the names the dialog segmenter
// resolves speakers against.
//
// Members come in two shapes. A full record carries a role, personality
// traits, an age string, and an appearance description — companions the
// story generator fleshes out. A basic record only carries a relationship
// label ("your sister", "his father") — background family members. Both
// shapes are represented by [Member]; IsFull distinguishes them.
//
// Rosters can be held in memory ([MemStore]), persisted in PostgreSQL
// ([PostgresStore]), or loaded from a YAML party file ([LoadPartyFile]).
// All store operations are safe for concurrent use.
package roster

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups when no member has the given ID.
var ErrNotFound = errors.New("roster: member not found")

// ErrDuplicateID is returned by Add when a member with the same ID exists.
var ErrDuplicateID = errors.New("roster: duplicate member id")

// Member is one party member.
type Member struct {
	// ID is the stable unique identifier for this member.
	ID string `yaml:"id" json:"id"`

	// Name is the member's display name.
	Name string `yaml:"name" json:"name"`

	// Nickname is an optional short name the narration may use instead.
	Nickname string `yaml:"nickname,omitempty" json:"nickname,omitempty"`

	// VoiceID pins an explicit synthesis voice. When set, archetype
	// inference is skipped entirely.
	VoiceID string `yaml:"voice_id,omitempty" json:"voiceId,omitempty"`

	// Role is the member's function in the group (e.g., "field medic",
	// "squad leader"). Full records only.
	Role string `yaml:"role,omitempty" json:"role,omitempty"`

	// Traits are personality descriptors (e.g., "ruthless", "gentle").
	// Full records only.
	Traits []string `yaml:"traits,omitempty" json:"traits,omitempty"`

	// Age is a free-text age description (e.g., "young", "late 60s").
	// Full records only.
	Age string `yaml:"age,omitempty" json:"age,omitempty"`

	// Appearance is a free-text physical description used for gender
	// inference. Full records only.
	Appearance string `yaml:"appearance,omitempty" json:"appearance,omitempty"`

	// Relationship is the kinship label for basic records ("wife",
	// "younger brother"). Empty for full records.
	Relationship string `yaml:"relationship,omitempty" json:"relationship,omitempty"`
}

// IsFull reports whether m is a full record. A member with any of the
// descriptive attributes set is treated as full; a bare relationship label
// makes it basic.
func (m Member) IsFull() bool {
	return m.Role != "" || len(m.Traits) > 0 || m.Age != "" || m.Appearance != ""
}

// Store is the persistence abstraction for party rosters.
type Store interface {
	// Add inserts a new member. Returns [ErrDuplicateID] if the ID is taken.
	Add(ctx context.Context, m Member) error

	// Get retrieves a member by ID. Returns [ErrNotFound] if absent.
	Get(ctx context.Context, id string) (Member, error)

	// List returns all members in insertion order.
	List(ctx context.Context) ([]Member, error)

	// Remove deletes a member by ID. Removing an absent ID is not an error.
	Remove(ctx context.Context, id string) error
}
