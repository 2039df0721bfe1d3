package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event.
type EventType string

const (
	// EventTypeGrantCreated is emitted when a grant row is first created
	// for a (target, role) pair.
	EventTypeGrantCreated EventType = "acl.grant_created"

	// EventTypeGrantEdited is emitted when permissions are added to an
	// existing grant. A grant call that changes nothing emits no event.
	EventTypeGrantEdited EventType = "acl.grant_edited"

	// EventTypeGrantRevoked is emitted when permissions are removed from a
	// grant.
	EventTypeGrantRevoked EventType = "acl.grant_revoked"

	// EventTypeAccessDenied is available for callers that surface denials;
	// the engine itself does not emit it.
	EventTypeAccessDenied EventType = "acl.access_denied"
)

// Event represents a single audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Target of the grant mutation.
	TargetType string `json:"target_type,omitempty"`
	TargetID   int64  `json:"target_id,omitempty"`
	RoleID     int64  `json:"role_id,omitempty"`

	// Permissions affected by the mutation, in "namespace.name" form.
	Permissions []string `json:"permissions,omitempty"`

	// Actor, when the caller supplies one through the context.
	Actor string `json:"actor,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// ToJSON converts the event to JSON.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event from JSON.
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
