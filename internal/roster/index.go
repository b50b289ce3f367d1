package roster

import "strings"

// indexEntry is one name-to-ID binding in insertion order.
type indexEntry struct {
	nameLower string
	id        string
	name      string
}

// Index resolves speaker names captured from narration text to member IDs.
//
// Lookups are case-insensitive. An exact match wins; otherwise the first
// entry (in insertion order) whose name starts with the query matches. The
// insertion-order guarantee makes resolution deterministic when several
// members share a prefix.
//
// Index is read-only after construction and safe for concurrent use.
type Index struct {
	entries []indexEntry
}

// NewIndex builds an [Index] from members. Each member contributes its name
// and, when set, its nickname.
func NewIndex(members []Member) *Index {
	idx := &Index{}
	for _, m := range members {
		idx.add(m.Name, m.ID)
		if m.Nickname != "" {
			idx.add(m.Nickname, m.ID)
		}
	}
	return idx
}

func (x *Index) add(name, id string) {
	if name == "" || id == "" {
		return
	}
	x.entries = append(x.entries, indexEntry{
		nameLower: strings.ToLower(name),
		id:        id,
		name:      name,
	})
}

// Resolve returns the member ID and canonical display name for a speaker
// name, or ok=false when nothing matches.
func (x *Index) Resolve(name string) (id, canonical string, ok bool) {
	if x == nil {
		return "", "", false
	}
	q := strings.ToLower(strings.TrimSpace(name))
	if q == "" {
		return "", "", false
	}

	for _, e := range x.entries {
		if e.nameLower == q {
			return e.id, e.name, true
		}
	}
	for _, e := range x.entries {
		if strings.HasPrefix(e.nameLower, q) || strings.HasPrefix(q, e.nameLower) {
			return e.id, e.name, true
		}
	}
	return "", "", false
}

// Names returns all indexed display names in insertion order. Used by the
// suggestion helper.
func (x *Index) Names() []string {
	if x == nil {
		return nil
	}
	names := make([]string, len(x.entries))
	for i, e := range x.entries {
		names[i] = e.name
	}
	return names
}
