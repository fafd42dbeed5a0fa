package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_RecordsJSONEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	logger.Record(Event{
		Type:   EventAccessDenied,
		UserID: "user-1",
		Reason: "Forbidden: Insufficient permissions",
		Details: map[string]string{
			"action": "DELETE",
			"table":  "verses",
		},
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, EventAccessDenied, entry["event_type"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "Forbidden: Insufficient permissions", entry["reason"])
	assert.Equal(t, "DELETE", entry["detail_action"])
	assert.Equal(t, true, entry["audit"])
	assert.NotEmpty(t, entry["event_time"])
}

func TestNopLogger_DoesNotPanic(t *testing.T) {
	NewNopLogger().Record(Event{Type: EventLogin})
}
