package acl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Graph resolves the declared parent relation of objects. The resolver only
// calls it for types whose registry entry declares an inheritance relation.
type Graph interface {
	// Parent returns the parent object reachable through the declared
	// relation, or ok=false when the relation column is NULL or the row is
	// gone. A missing parent is no inherited access, not an error.
	Parent(ctx context.Context, obj ObjectRef) (parent ObjectRef, ok bool, err error)

	// Parents projects a batch of child ids to their parent ids through
	// the declared relation, in one query. Children with a NULL parent are
	// omitted from the result.
	Parents(ctx context.Context, typeID TypeID, ids []int64) (map[int64]int64, error)
}

// SQLGraph reads parent relations from the child rows' relation column as
// described by the registry.
type SQLGraph struct {
	db       *sql.DB
	registry *Registry
}

// NewSQLGraph creates a Graph over the registered tables.
func NewSQLGraph(db *sql.DB, registry *Registry) *SQLGraph {
	return &SQLGraph{db: db, registry: registry}
}

func (g *SQLGraph) Parent(ctx context.Context, obj ObjectRef) (ObjectRef, bool, error) {
	rel, err := g.registry.InheritanceRelation(obj.Type)
	if errors.Is(err, ErrNotFound) {
		return ObjectRef{}, false, nil
	}
	if err != nil {
		return ObjectRef{}, false, err
	}

	info, err := g.registry.TypeInfo(obj.Type)
	if err != nil {
		return ObjectRef{}, false, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", rel.Column, info.Table, info.IDColumn)

	var parentID sql.NullInt64
	err = g.db.QueryRowContext(ctx, query, obj.ID).Scan(&parentID)
	if err == sql.ErrNoRows {
		return ObjectRef{}, false, nil
	}
	if err != nil {
		return ObjectRef{}, false, fmt.Errorf("failed to resolve parent of %s: %w", obj, err)
	}
	if !parentID.Valid {
		return ObjectRef{}, false, nil
	}

	return ObjectRef{Type: rel.Parent, ID: parentID.Int64}, true, nil
}

func (g *SQLGraph) Parents(ctx context.Context, typeID TypeID, ids []int64) (map[int64]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rel, err := g.registry.InheritanceRelation(typeID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	info, err := g.registry.TypeInfo(typeID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, %s FROM %s WHERE %s IN (%s)",
		info.IDColumn, rel.Column, info.Table, info.IDColumn, placeholders(1, len(ids)))

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := g.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to project %s parents: %w", typeID, err)
	}
	defer rows.Close()

	parents := make(map[int64]int64)
	for rows.Next() {
		var childID int64
		var parentID sql.NullInt64
		if err := rows.Scan(&childID, &parentID); err != nil {
			return nil, fmt.Errorf("failed to scan parent row: %w", err)
		}
		if parentID.Valid {
			parents[childID] = parentID.Int64
		}
	}

	return parents, rows.Err()
}
