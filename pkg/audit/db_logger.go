package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// DBLogger persists audit events to a SQL database.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger. The audit_events
// table must exist; see EnsureTable.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// EnsureTable creates the audit_events table if it doesn't exist. The DDL
// targets PostgreSQL.
func (l *DBLogger) EnsureTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id VARCHAR(36) PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		target_type VARCHAR(100),
		target_id BIGINT,
		role_id BIGINT,
		permissions TEXT,
		actor VARCHAR(255),
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_target ON audit_events(target_type, target_id);
	`

	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return nil
}

// Log persists an audit event.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if actor := ActorFromContext(ctx); actor != "" && event.Actor == "" {
		event.Actor = actor
	}

	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, event_type,
			target_type, target_id, role_id,
			permissions, actor, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := l.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.Type,
		event.TargetType, event.TargetID, event.RoleID,
		strings.Join(event.Permissions, ","), event.Actor, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

func (l *DBLogger) Close() error { return nil }

// EventsForTarget returns the recorded events for one target, newest
// first.
func (l *DBLogger) EventsForTarget(ctx context.Context, targetType string, targetID int64) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, target_type, target_id, role_id, permissions, actor
		FROM audit_events
		WHERE target_type = $1 AND target_id = $2
		ORDER BY timestamp DESC
	`

	rows, err := l.db.QueryContext(ctx, query, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var permissions string
		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.Type,
			&event.TargetType, &event.TargetID, &event.RoleID,
			&permissions, &event.Actor,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if permissions != "" {
			event.Permissions = strings.Split(permissions, ",")
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
