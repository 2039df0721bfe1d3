package audit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	event := NewEvent(EventTypeGrantCreated)

	assert.Equal(t, EventTypeGrantCreated, event.Type)
	assert.False(t, event.Timestamp.IsZero())

	_, err := uuid.Parse(event.ID)
	assert.NoError(t, err)

	// Each event gets its own id.
	assert.NotEqual(t, event.ID, NewEvent(EventTypeGrantCreated).ID)
}

func TestEventJSONRoundTrip(t *testing.T) {
	event := NewEvent(EventTypeGrantEdited)
	event.TargetType = "document"
	event.TargetID = 42
	event.RoleID = 7
	event.Permissions = []string{"documents.view", "documents.edit"}
	event.Actor = "alice"
	event.Metadata = map[string]interface{}{"source": "api"}

	data, err := event.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, event.TargetType, decoded.TargetType)
	assert.Equal(t, event.TargetID, decoded.TargetID)
	assert.Equal(t, event.Permissions, decoded.Permissions)
	assert.Equal(t, event.Actor, decoded.Actor)

	_, err = FromJSON([]byte("not json"))
	assert.Error(t, err)
}
