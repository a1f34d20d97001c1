package core

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventToolInvoked    EventType = "tool_invoked"
	EventStatusChanged  EventType = "status_changed"
	EventSessionStale   EventType = "session_stale"
)

type SessionEvent struct {
	EventID   int64           `json:"event_id"`
	SessionID string          `json:"session_id"`
	EventType EventType       `json:"event_type"`
	ToolName  *string         `json:"tool_name,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
