// Package memory is an in-process import backend used by tests, demos and the CLI's memory mode.
package memory

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/reference"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

type Row struct {
	ID     uuid.UUID
	Values map[string]any
}

// Store keeps reference tables and entity rows in maps. Natural keys are unique per entity, the
// way a database unique index would enforce them.
type Store struct {
	mu          sync.Mutex
	keys        map[string][]string
	refs        map[schema.Kind][]reference.Entry
	rows        map[string]map[uuid.UUID]Row
	order       map[string][]uuid.UUID
	byKey       map[string]map[string]uuid.UUID
	createCalls map[schema.Kind]int
	writeCalls  int

	// Hooks inject failures. They are read under the store lock, so set them before use.
	CreateHook func(kind schema.Kind, name string) error
	BatchHook  func(entity string, op record.Operation, rows []backend.WriteRow) error
	RowHook    func(entity string, op record.Operation, row backend.WriteRow) error
}

var _ backend.Backend = (*Store)(nil)

// NewStore accepts the entities it stores; with none it uses the built-in schemas.
func NewStore(descriptors ...*schema.Descriptor) *Store {
	if len(descriptors) == 0 {
		descriptors = schema.DefaultRegistry().Descriptors()
	}
	s := &Store{
		keys:        make(map[string][]string, len(descriptors)),
		refs:        make(map[schema.Kind][]reference.Entry),
		rows:        make(map[string]map[uuid.UUID]Row, len(descriptors)),
		order:       make(map[string][]uuid.UUID, len(descriptors)),
		byKey:       make(map[string]map[string]uuid.UUID, len(descriptors)),
		createCalls: make(map[schema.Kind]int),
	}
	for _, d := range descriptors {
		s.keys[d.Entity] = append([]string(nil), d.NaturalKey...)
		s.rows[d.Entity] = make(map[uuid.UUID]Row)
		s.byKey[d.Entity] = make(map[string]uuid.UUID)
	}
	return s
}

func (s *Store) LookupReference(ctx context.Context, kind schema.Kind) ([]reference.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kind.Known() {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == schema.Employees {
		var out []reference.Entry
		for _, id := range s.order[schema.EntityEmployees] {
			code, _ := s.rows[schema.EntityEmployees][id].Values["code"].(string)
			out = append(out, reference.Entry{ID: id, Name: code})
		}
		return out, nil
	}
	return append([]reference.Entry(nil), s.refs[kind]...), nil
}

func (s *Store) CreateReference(ctx context.Context, kind schema.Kind, name string, parentID uuid.UUID) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls[kind]++
	if !kind.Known() || kind == schema.Employees {
		return uuid.Nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedKind, kind)
	}
	if s.CreateHook != nil {
		if err := s.CreateHook(kind, name); err != nil {
			return uuid.Nil, err
		}
	}
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, fmt.Errorf("%s name is empty", kind)
	}
	if _, scoped := kind.Parent(); scoped && parentID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s %q needs a parent", kind, name)
	}
	id := uuid.New()
	s.refs[kind] = append(s.refs[kind], reference.Entry{ID: id, Name: name, ParentID: parentID})
	return id, nil
}

func (s *Store) LookupExisting(ctx context.Context, entity string, keys [][]string) ([]backend.Existing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.keys[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedEntity, entity)
	}
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[backend.JoinKey(k)] = true
	}
	var out []backend.Existing
	for _, id := range s.order[entity] {
		key := keyOf(s.rows[entity][id].Values, fields)
		if wanted[backend.JoinKey(key)] {
			out = append(out, backend.Existing{Key: key, ID: id})
		}
	}
	return out, nil
}

func (s *Store) BulkWrite(ctx context.Context, entity string, op record.Operation, rows []backend.WriteRow) (backend.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return backend.WriteResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeCalls++
	fields, ok := s.keys[entity]
	if !ok {
		return backend.WriteResult{}, fmt.Errorf("%w: %s", backend.ErrUnsupportedEntity, entity)
	}
	if s.BatchHook != nil {
		if err := s.BatchHook(entity, op, rows); err != nil {
			return backend.WriteResult{}, err
		}
	}

	var res backend.WriteResult
	table := s.rows[entity]
	for _, row := range rows {
		if err := s.writeRow(entity, fields, table, op, row); err != nil {
			res.Failed = append(res.Failed, backend.RowFailure{ID: row.ID, Err: err})
			continue
		}
		res.Succeeded = append(res.Succeeded, row.ID)
	}
	return res, nil
}

func (s *Store) writeRow(entity string, fields []string, table map[uuid.UUID]Row, op record.Operation, row backend.WriteRow) error {
	if s.RowHook != nil {
		if err := s.RowHook(entity, op, row); err != nil {
			return err
		}
	}
	key := backend.JoinKey(keyOf(row.Values, fields))
	if owner, taken := s.byKey[entity][key]; taken && owner != row.ID {
		return fmt.Errorf("%s key %q already exists", entity, strings.ReplaceAll(key, "\x1f", "/"))
	}
	switch op {
	case record.Insert:
		if _, exists := table[row.ID]; exists {
			return fmt.Errorf("%s %s already exists", entity, row.ID)
		}
		s.order[entity] = append(s.order[entity], row.ID)
	case record.Update:
		prev, exists := table[row.ID]
		if !exists {
			return fmt.Errorf("%w: %s %s", backend.ErrRowNotFound, entity, row.ID)
		}
		delete(s.byKey[entity], backend.JoinKey(keyOf(prev.Values, fields)))
	}
	table[row.ID] = Row{ID: row.ID, Values: maps.Clone(row.Values)}
	s.byKey[entity][key] = row.ID
	return nil
}

// SeedReference stores a reference value directly, bypassing the create counter.
func (s *Store) SeedReference(kind schema.Kind, name string, parentID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.refs[kind] = append(s.refs[kind], reference.Entry{ID: id, Name: name, ParentID: parentID})
	return id
}

// SeedRow stores an entity row directly and returns its id.
func (s *Store) SeedRow(entity string, values map[string]any) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	if s.rows[entity] == nil {
		s.rows[entity] = make(map[uuid.UUID]Row)
		s.byKey[entity] = make(map[string]uuid.UUID)
	}
	s.rows[entity][id] = Row{ID: id, Values: maps.Clone(values)}
	s.order[entity] = append(s.order[entity], id)
	if fields, ok := s.keys[entity]; ok {
		s.byKey[entity][backend.JoinKey(keyOf(values, fields))] = id
	}
	return id
}

// CreateCalls counts CreateReference calls for kind, failed ones included.
func (s *Store) CreateCalls(kind schema.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls[kind]
}

func (s *Store) WriteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCalls
}

func (s *Store) References(kind schema.Kind) []reference.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reference.Entry(nil), s.refs[kind]...)
}

// Rows returns the rows of entity in insertion order.
func (s *Store) Rows(entity string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.order[entity]))
	for _, id := range s.order[entity] {
		r := s.rows[entity][id]
		out = append(out, Row{ID: r.ID, Values: maps.Clone(r.Values)})
	}
	return out
}

func keyOf(values map[string]any, fields []string) []string {
	key := make([]string, len(fields))
	for i, f := range fields {
		if v, ok := values[f].(string); ok {
			key[i] = v
		}
	}
	return key
}
