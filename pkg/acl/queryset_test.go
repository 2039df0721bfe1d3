package acl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLObjectSet(t *testing.T) {
	db := setupTestDB(t)
	registry := newDocsRegistry(t)
	ctx := context.Background()

	a := insertDocument(t, db, "a.pdf", nil)
	b := insertDocument(t, db, "b.pdf", nil)
	c := insertDocument(t, db, "c.pdf", nil)

	all := NewSQLObjectSet(db, registry, "document")
	assert.Equal(t, TypeID("document"), all.Type())

	ids, err := all.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b, c}, ids)

	// Restricting narrows to the intersection; unknown ids are dropped by
	// the query.
	narrowed := all.Restrict([]int64{c, a, 9999})
	ids, err = narrowed.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, c}, ids)

	// Restricting an already narrowed set intersects in memory.
	further := narrowed.Restrict([]int64{c, b})
	ids, err = further.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{c}, ids)

	// An empty restriction is the empty set and runs no query.
	empty := all.Restrict(nil)
	ids, err = empty.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// A proxy-typed set reads the canonical table.
	proxy := NewSQLObjectSet(db, registry, "recent_document")
	ids, err = proxy.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b, c}, ids)
}

func TestSQLObjectSetUnknownType(t *testing.T) {
	db := setupTestDB(t)
	registry := newDocsRegistry(t)

	_, err := NewSQLObjectSet(db, registry, "ghost").IDs(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaticObjectSet(t *testing.T) {
	ctx := context.Background()

	set := NewStaticObjectSet("document", []int64{1, 2, 3})
	assert.Equal(t, TypeID("document"), set.Type())

	ids, err := set.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	narrowed := set.Restrict([]int64{3, 1, 7})
	ids, err = narrowed.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids)

	ids, err = narrowed.Restrict(nil).IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
