package roster

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMember_IsFull(t *testing.T) {
	t.Parallel()

	full := Member{ID: "a", Name: "Ada", Role: "medic"}
	if !full.IsFull() {
		t.Error("member with a role should be full")
	}

	basic := Member{ID: "b", Name: "Ben", Relationship: "brother"}
	if basic.IsFull() {
		t.Error("member with only a relationship should be basic")
	}
}

func TestIndex_Resolve(t *testing.T) {
	t.Parallel()

	idx := NewIndex([]Member{
		{ID: "npc-1", Name: "Marcus Webb", Nickname: "Marcus"},
		{ID: "npc-2", Name: "Maria"},
		{ID: "npc-3", Name: "Doc"},
	})

	tests := []struct {
		name   string
		query  string
		wantID string
		wantOK bool
	}{
		{"exact full name", "Marcus Webb", "npc-1", true},
		{"exact nickname", "marcus", "npc-1", true},
		{"case insensitive", "MARIA", "npc-2", true},
		{"prefix of stored name", "Mar", "npc-1", true}, // first in insertion order
		{"stored name prefix of query", "Doc Holloway", "npc-3", true},
		{"unknown", "Gerald", "", false},
		{"empty", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, _, ok := idx.Resolve(tt.query)
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.query, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestIndex_PrefixUsesInsertionOrder(t *testing.T) {
	t.Parallel()

	idx := NewIndex([]Member{
		{ID: "second", Name: "Marla"},
		{ID: "first", Name: "Marcus"},
	})
	id, _, ok := idx.Resolve("Mar")
	if !ok || id != "second" {
		t.Errorf("Resolve(\"Mar\") = (%q, %v), want first-inserted (\"second\", true)", id, ok)
	}
}

func TestMemStore_CRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemStore()
	if err := s.Add(ctx, Member{ID: "a", Name: "Ada"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, Member{ID: "a", Name: "Ada again"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate Add: err = %v, want ErrDuplicateID", err)
	}
	if err := s.Add(ctx, Member{ID: "b", Name: "Ben"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	m, err := s.Get(ctx, "a")
	if err != nil || m.Name != "Ada" {
		t.Fatalf("Get(a) = (%+v, %v)", m, err)
	}
	if _, err := s.Get(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(zzz): err = %v, want ErrNotFound", err)
	}

	list, err := s.List(ctx)
	if err != nil || len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("List = (%+v, %v), want insertion order [a b]", list, err)
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	list, _ = s.List(ctx)
	if len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("List after remove = %+v", list)
	}
	if m, err := s.Get(ctx, "b"); err != nil || m.Name != "Ben" {
		t.Fatalf("Get(b) after reindex = (%+v, %v)", m, err)
	}
}

func TestLoadPartyFromReader(t *testing.T) {
	t.Parallel()

	const doc = `
party:
  game: "infected-demo"
members:
  - id: npc-marcus
    name: "Marcus Webb"
    nickname: "Marcus"
    role: "squad leader"
    traits: [tough, pragmatic]
    age: "mid 40s"
  - id: npc-elena
    name: "Elena"
    relationship: "sister"
`
	pf, err := LoadPartyFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadPartyFromReader: %v", err)
	}
	if pf.Party.Game != "infected-demo" {
		t.Errorf("Party.Game = %q", pf.Party.Game)
	}
	if len(pf.Members) != 2 {
		t.Fatalf("len(Members) = %d, want 2", len(pf.Members))
	}
	if !pf.Members[0].IsFull() {
		t.Error("Marcus should be a full record")
	}
	if pf.Members[1].IsFull() {
		t.Error("Elena should be a basic record")
	}

	ctx := context.Background()
	store := NewMemStore()
	n, err := Import(ctx, store, pf)
	if err != nil || n != 2 {
		t.Fatalf("Import = (%d, %v), want (2, nil)", n, err)
	}
}

func TestLoadPartyFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "party:\n  game: g\nbogus: true\n"},
		{"missing id", "members:\n  - name: Nameless\n"},
		{"missing name", "members:\n  - id: npc-1\n"},
		{"duplicate id", "members:\n  - id: a\n    name: One\n  - id: a\n    name: Two\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadPartyFromReader(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	idx := NewIndex([]Member{
		{ID: "npc-1", Name: "Gerald"},
		{ID: "npc-2", Name: "Marcus"},
	})

	got := Suggest(idx, "Jerald")
	if len(got) == 0 || got[0].Name != "Gerald" {
		t.Fatalf("Suggest(Jerald) = %+v, want Gerald first", got)
	}

	if got := Suggest(idx, "Xqz"); len(got) != 0 {
		t.Errorf("Suggest(Xqz) = %+v, want none", got)
	}
	if got := Suggest(idx, "  "); got != nil {
		t.Errorf("Suggest(blank) = %+v, want nil", got)
	}
}
