package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// PartyFile is the top-level structure of a narvox party YAML file.
//
// Example:
//
//	party:
//	  game: "infected-demo"
//	members:
//	  - id: npc-marcus
//	    name: "Marcus Webb"
//	    nickname: "Marcus"
//	    role: "squad leader"
//	    traits: [tough, pragmatic]
type PartyFile struct {
	Party   PartyMeta `yaml:"party"`
	Members []Member  `yaml:"members"`
}

// PartyMeta holds top-level metadata for a party file.
type PartyMeta struct {
	// Game is the game/campaign identifier this party belongs to.
	Game string `yaml:"game"`

	// Description is a free-text summary.
	Description string `yaml:"description"`
}

// LoadPartyFile reads and parses a party YAML file from disk.
func LoadPartyFile(path string) (*PartyFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: open party file %q: %w", path, err)
	}
	defer f.Close()

	pf, err := LoadPartyFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("roster: parse party file %q: %w", path, err)
	}
	return pf, nil
}

// LoadPartyFromReader parses party YAML from an [io.Reader]. The reader is
// consumed entirely; the caller is responsible for closing it.
func LoadPartyFromReader(r io.Reader) (*PartyFile, error) {
	var pf PartyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("roster: decode party yaml: %w", err)
	}
	if err := validateMembers(pf.Members); err != nil {
		return nil, err
	}
	return &pf, nil
}

// Import adds all members from a parsed [PartyFile] into store, returning
// the number imported. A store error aborts the import with the count so far.
func Import(ctx context.Context, store Store, pf *PartyFile) (int, error) {
	for i, m := range pf.Members {
		if err := store.Add(ctx, m); err != nil {
			return i, fmt.Errorf("roster: import member %q: %w", m.ID, err)
		}
	}
	return len(pf.Members), nil
}

// validateMembers checks the minimal invariants a party file must satisfy.
func validateMembers(members []Member) error {
	var errs []error
	seen := make(map[string]int, len(members))
	for i, m := range members {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("members[%d].id is required", i))
		} else if prev, ok := seen[m.ID]; ok {
			errs = append(errs, fmt.Errorf("members[%d].id %q duplicates members[%d]", i, m.ID, prev))
		} else {
			seen[m.ID] = i
		}
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("members[%d].name is required", i))
		}
	}
	return errors.Join(errs...)
}
