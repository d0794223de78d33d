package reference

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

// Entry is one row of a reference table. ParentID is uuid.Nil for root kinds.
type Entry struct {
	ID       uuid.UUID
	Name     string
	ParentID uuid.UUID
}

type key struct {
	parent uuid.UUID
	name   string
}

// Set is the name/id index of one reference kind for the lifetime of a single run.
// Names match case-insensitively; when the store holds duplicate names the first entry wins.
// A Set is not safe for concurrent mutation.
type Set struct {
	kind    schema.Kind
	exact   map[key]uuid.UUID
	loose   map[key]uuid.UUID
	byID    map[uuid.UUID]Entry
	ordered []Entry
}

func NewSet(kind schema.Kind, entries []Entry) *Set {
	s := &Set{
		kind:  kind,
		exact: make(map[key]uuid.UUID, len(entries)),
		loose: make(map[key]uuid.UUID, len(entries)),
		byID:  make(map[uuid.UUID]Entry, len(entries)),
	}
	for _, e := range entries {
		s.Add(e)
	}
	return s
}

// Fold is the exact case-insensitive form of a name.
func Fold(name string) string {
	return cases.Fold().String(name)
}

// Loose folds case and collapses surrounding and inner whitespace.
func Loose(name string) string {
	return Fold(strings.Join(strings.Fields(name), " "))
}

// Clean trims and collapses whitespace without changing case; it is the display form of a new entry.
func Clean(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func (s *Set) Kind() schema.Kind {
	return s.kind
}

func (s *Set) Len() int {
	return len(s.ordered)
}

// Add indexes e and reports whether it was new. Existing names keep their first id.
func (s *Set) Add(e Entry) bool {
	if _, dup := s.byID[e.ID]; dup {
		return false
	}
	s.byID[e.ID] = e
	s.ordered = append(s.ordered, e)

	ek := key{parent: e.ParentID, name: Fold(e.Name)}
	if _, taken := s.exact[ek]; !taken {
		s.exact[ek] = e.ID
	}
	lk := key{parent: e.ParentID, name: Loose(e.Name)}
	if _, taken := s.loose[lk]; !taken {
		s.loose[lk] = e.ID
	}
	return true
}

// Lookup tries an exact case-insensitive match first, then a whitespace-insensitive one.
func (s *Set) Lookup(parent uuid.UUID, name string) (uuid.UUID, bool) {
	if id, ok := s.exact[key{parent: parent, name: Fold(name)}]; ok {
		return id, true
	}
	if id, ok := s.loose[key{parent: parent, name: Loose(name)}]; ok {
		return id, true
	}
	return uuid.Nil, false
}

func (s *Set) Get(id uuid.UUID) (Entry, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Names lists the entry names under parent in load order.
func (s *Set) Names(parent uuid.UUID) []string {
	out := make([]string, 0)
	for _, e := range s.ordered {
		if e.ParentID == parent {
			out = append(out, e.Name)
		}
	}
	return out
}

// Sets holds one Set per kind for a run.
type Sets map[schema.Kind]*Set

// Get returns the set for kind, creating an empty one on first use.
func (ss Sets) Get(kind schema.Kind) *Set {
	s, ok := ss[kind]
	if !ok {
		s = NewSet(kind, nil)
		ss[kind] = s
	}
	return s
}
