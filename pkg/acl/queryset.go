package acl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ObjectSet is the queryset abstraction the resolver restricts. A set is
// lazy: IDs materializes it, Restrict narrows it without touching storage.
type ObjectSet interface {
	// Type returns the (possibly proxy) type of the elements.
	Type() TypeID

	// IDs materializes the ids of the current elements.
	IDs(ctx context.Context) ([]int64, error)

	// Restrict returns a new set narrowed to the given ids. Ids not in the
	// current set are ignored.
	Restrict(ids []int64) ObjectSet
}

// SQLObjectSet is an ObjectSet over a registered type's table.
type SQLObjectSet struct {
	db       *sql.DB
	registry *Registry
	typeID   TypeID

	// filter, when non-nil, narrows the set to these ids. An empty non-nil
	// filter is the empty set.
	filter []int64
}

// NewSQLObjectSet creates a set of all rows of a registered type.
func NewSQLObjectSet(db *sql.DB, registry *Registry, typeID TypeID) *SQLObjectSet {
	return &SQLObjectSet{db: db, registry: registry, typeID: typeID}
}

func (s *SQLObjectSet) Type() TypeID { return s.typeID }

func (s *SQLObjectSet) IDs(ctx context.Context) ([]int64, error) {
	if s.filter != nil && len(s.filter) == 0 {
		return nil, nil
	}

	info, err := s.registry.TypeInfo(s.typeID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	var args []interface{}
	fmt.Fprintf(&b, "SELECT %s FROM %s", info.IDColumn, info.Table)
	if s.filter != nil {
		fmt.Fprintf(&b, " WHERE %s IN (%s)", info.IDColumn, placeholders(1, len(s.filter)))
		for _, id := range s.filter {
			args = append(args, id)
		}
	}
	fmt.Fprintf(&b, " ORDER BY %s", info.IDColumn)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s ids: %w", s.typeID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", s.typeID, err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *SQLObjectSet) Restrict(ids []int64) ObjectSet {
	narrowed := &SQLObjectSet{db: s.db, registry: s.registry, typeID: s.typeID}
	if s.filter == nil {
		narrowed.filter = append([]int64{}, ids...)
		return narrowed
	}

	current := make(map[int64]struct{}, len(s.filter))
	for _, id := range s.filter {
		current[id] = struct{}{}
	}
	narrowed.filter = []int64{}
	for _, id := range ids {
		if _, ok := current[id]; ok {
			narrowed.filter = append(narrowed.filter, id)
		}
	}
	return narrowed
}

// StaticObjectSet is an in-memory ObjectSet. The resolver uses it for the
// parent sets of the inheritance walk; tests use it directly.
type StaticObjectSet struct {
	typeID TypeID
	ids    []int64
}

// NewStaticObjectSet creates a set over fixed ids.
func NewStaticObjectSet(typeID TypeID, ids []int64) *StaticObjectSet {
	return &StaticObjectSet{typeID: typeID, ids: append([]int64{}, ids...)}
}

func (s *StaticObjectSet) Type() TypeID { return s.typeID }

func (s *StaticObjectSet) IDs(ctx context.Context) ([]int64, error) {
	return append([]int64{}, s.ids...), nil
}

func (s *StaticObjectSet) Restrict(ids []int64) ObjectSet {
	current := make(map[int64]struct{}, len(s.ids))
	for _, id := range s.ids {
		current[id] = struct{}{}
	}
	kept := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := current[id]; ok {
			kept = append(kept, id)
		}
	}
	return &StaticObjectSet{typeID: s.typeID, ids: kept}
}
