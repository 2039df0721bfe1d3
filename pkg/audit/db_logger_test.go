package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupAuditDB builds a SQLite stand-in for the PostgreSQL table
// EnsureTable creates.
func setupAuditDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			target_type TEXT,
			target_id INTEGER,
			role_id INTEGER,
			permissions TEXT,
			actor TEXT,
			metadata BLOB,
			created_at TIMESTAMP
		)
	`)
	require.NoError(t, err)

	return db
}

func TestNewDBLogger(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLoggerRoundTrip(t *testing.T) {
	db := setupAuditDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	ctx := context.Background()

	older := NewEvent(EventTypeGrantCreated)
	older.Timestamp = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older.TargetType = "document"
	older.TargetID = 42
	older.RoleID = 7
	older.Permissions = []string{"documents.view", "documents.edit"}

	newer := NewEvent(EventTypeGrantRevoked)
	newer.Timestamp = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	newer.TargetType = "document"
	newer.TargetID = 42
	newer.RoleID = 7
	newer.Permissions = []string{"documents.edit"}

	unrelated := NewEvent(EventTypeGrantCreated)
	unrelated.Timestamp = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	unrelated.TargetType = "folder"
	unrelated.TargetID = 9

	require.NoError(t, logger.Log(ctx, older))
	require.NoError(t, logger.Log(ctx, newer))
	require.NoError(t, logger.Log(ctx, unrelated))

	events, err := logger.EventsForTarget(ctx, "document", 42)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.Equal(t, newer.ID, events[0].ID)
	assert.Equal(t, EventTypeGrantRevoked, events[0].Type)
	assert.Equal(t, []string{"documents.edit"}, events[0].Permissions)

	assert.Equal(t, older.ID, events[1].ID)
	assert.Equal(t, []string{"documents.view", "documents.edit"}, events[1].Permissions)
	assert.Equal(t, int64(7), events[1].RoleID)

	events, err = logger.EventsForTarget(ctx, "document", 99)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.NoError(t, logger.Close())
}

func TestDBLoggerActorFromContext(t *testing.T) {
	db := setupAuditDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	ctx := WithActor(context.Background(), "alice")
	event := NewEvent(EventTypeGrantCreated)
	event.TargetType = "document"
	event.TargetID = 1
	require.NoError(t, logger.Log(ctx, event))

	events, err := logger.EventsForTarget(ctx, "document", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].Actor)
}

func TestDBLoggerEmptyPermissions(t *testing.T) {
	db := setupAuditDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	ctx := context.Background()

	event := NewEvent(EventTypeGrantRevoked)
	event.TargetType = "document"
	event.TargetID = 5
	require.NoError(t, logger.Log(ctx, event))

	events, err := logger.EventsForTarget(ctx, "document", 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Permissions)
}
