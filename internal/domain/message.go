package domain

import (
	"encoding/json"
	"time"
)

// ChatMessage is one turn in the human-readable conversation transcript for
// a session. Messages are immutable once appended.
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// AgentMessage is one opaque structured entry in the machine-oriented log,
// keyed by room rather than session. The payload schema is owned entirely by
// the external agent and is stored and returned verbatim, never interpreted.
type AgentMessage struct {
	RoomID    string          `json:"roomId"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}
