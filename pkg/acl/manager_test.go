package acl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase/paperbase/pkg/audit"
)

func TestManagerEndToEnd(t *testing.T) {
	db := setupTestDB(t)
	registry := newDocsRegistry(t)

	manager, err := NewManager(db, registry, nil, Config{})
	require.NoError(t, err)
	log := audit.NewMemoryLogger()
	manager.SetAuditLogger(log)
	ctx := context.Background()

	store := manager.Store()
	role := mustCreateRole(t, store, "editors", "staff")
	member := StaticPrincipal{GroupNames: []string{"staff"}}

	folder := insertFolder(t, db, "reports", nil)
	filed := insertDocument(t, db, "filed.pdf", ptr(folder))
	loose := insertDocument(t, db, "loose.pdf", nil)

	_, err = store.Grant(ctx, ref("folder", folder), role.ID, permView)
	require.NoError(t, err)

	assert.NoError(t, manager.CheckAccess(ctx, []Permission{permView}, member, ref("document", filed)))
	assert.ErrorIs(t,
		manager.CheckAccess(ctx, []Permission{permView}, member, ref("document", loose)),
		ErrAccessDenied)

	set, err := manager.Restrict(ctx, permView, member, manager.Objects("document"))
	require.NoError(t, err)
	ids, err := set.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{filed}, ids)

	require.Len(t, log.Events(), 1)
	assert.Equal(t, audit.EventTypeGrantCreated, log.Events()[0].Type)
}

// TestManagerWithCacheConfig exercises the default wiring: cached checks
// still track grant mutations because the cache observes the store.
func TestManagerWithCacheConfig(t *testing.T) {
	db := setupTestDB(t)
	registry := newDocsRegistry(t)

	manager, err := NewManager(db, registry, nil, Config{CheckCacheTTL: time.Minute, CheckCacheSize: 64})
	require.NoError(t, err)
	ctx := context.Background()

	store := manager.Store()
	role := mustCreateRole(t, store, "editors", "staff")
	member := StaticPrincipal{GroupNames: []string{"staff"}}
	docID := insertDocument(t, db, "report.pdf", nil)
	target := ref("document", docID)

	assert.ErrorIs(t, manager.CheckAccess(ctx, []Permission{permView}, member, target), ErrAccessDenied)

	_, err = store.Grant(ctx, target, role.ID, permView)
	require.NoError(t, err)
	assert.NoError(t, manager.CheckAccess(ctx, []Permission{permView}, member, target))

	require.NoError(t, store.Revoke(ctx, target, role.ID, permView))
	assert.ErrorIs(t, manager.CheckAccess(ctx, []Permission{permView}, member, target), ErrAccessDenied)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 5*time.Minute, config.CheckCacheTTL)
	assert.Equal(t, 4096, config.CheckCacheSize)
}

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}
