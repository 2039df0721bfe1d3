package acl

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database with the engine schema
// and a small document/folder/cabinet domain to hang grants on.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// Every pool connection to :memory: is a separate database; keep the
	// pool at one so all queries see the same schema.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE role_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
			group_name TEXT NOT NULL,
			UNIQUE(role_id, group_name)
		);

		CREATE TABLE access_grants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target_type TEXT NOT NULL,
			target_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(target_type, target_id, role_id)
		);

		CREATE TABLE access_grant_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			grant_id INTEGER NOT NULL REFERENCES access_grants(id) ON DELETE CASCADE,
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			UNIQUE(grant_id, namespace, name)
		);

		CREATE TABLE cabinets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		);

		CREATE TABLE folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			cabinet_id INTEGER REFERENCES cabinets(id)
		);

		CREATE TABLE documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			folder_id INTEGER REFERENCES folders(id)
		);
	`)
	require.NoError(t, err)

	return db
}

// newDocsRegistry declares the cabinet -> folder -> document chain plus a
// proxy over documents.
func newDocsRegistry(t *testing.T) *Registry {
	t.Helper()

	registry := NewRegistry()
	require.NoError(t, registry.RegisterType("cabinet", TypeInfo{Table: "cabinets", IDColumn: "id"}))
	require.NoError(t, registry.RegisterType("folder", TypeInfo{Table: "folders", IDColumn: "id"}))
	require.NoError(t, registry.RegisterType("document", TypeInfo{Table: "documents", IDColumn: "id"}))
	require.NoError(t, registry.RegisterProxy("recent_document", "document"))

	registry.RegisterPermissions("cabinet", permView, permEdit)
	registry.RegisterPermissions("folder", permView, permEdit)
	registry.RegisterPermissions("document", permView, permEdit)

	require.NoError(t, registry.RegisterInheritance("folder", Relation{Parent: "cabinet", Column: "cabinet_id"}))
	require.NoError(t, registry.RegisterInheritance("document", Relation{Parent: "folder", Column: "folder_id"}))

	return registry
}

var (
	permView = Permission{Namespace: "documents", Name: "view"}
	permEdit = Permission{Namespace: "documents", Name: "edit"}
)

func insertCabinet(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	result, err := db.Exec(`INSERT INTO cabinets (name) VALUES (?)`, name)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertFolder(t *testing.T, db *sql.DB, name string, cabinetID *int64) int64 {
	t.Helper()
	result, err := db.Exec(`INSERT INTO folders (name, cabinet_id) VALUES (?, ?)`, name, cabinetID)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertDocument(t *testing.T, db *sql.DB, title string, folderID *int64) int64 {
	t.Helper()
	result, err := db.Exec(`INSERT INTO documents (title, folder_id) VALUES (?, ?)`, title, folderID)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

// mustCreateRole creates a role bound to the given groups.
func mustCreateRole(t *testing.T, store *Store, name string, groups ...string) *Role {
	t.Helper()

	role := &Role{Name: name, Label: name}
	require.NoError(t, store.CreateRole(context.Background(), role))
	for _, g := range groups {
		require.NoError(t, store.AddRoleGroup(context.Background(), role.ID, g))
	}
	return role
}

func newTestResolver(registry *Registry, store *Store, db *sql.DB) *Resolver {
	return NewResolver(registry, store, NewGroupRoleProvider(store), NewSQLGraph(db, registry))
}

func ref(typeID TypeID, id int64) ObjectRef {
	return ObjectRef{Type: typeID, ID: id}
}

func ptr(v int64) *int64 { return &v }
