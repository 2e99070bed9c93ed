// Package domain contains core domain types for the BrowserTeacher backend.
package domain

import (
	"time"
)

// Session status values. Only "active" is ever set by this service;
// termination is driven by the browser provider.
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
	SessionStatusError  = "error"
)

// Session represents one provisioned remote-browser instance bound to a room.
// RoomID is the natural key: a room has at most one session, and re-starting
// a session for a room overwrites the existing record in place.
type Session struct {
	ID                string     `json:"sessionId"`
	RoomID            string     `json:"roomId"`
	ProviderSessionID string     `json:"providerSessionId"`
	LiveViewURL       string     `json:"liveViewUrl"`
	ControlEndpoint   string     `json:"controlEndpoint"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	EndedAt           *time.Time `json:"endedAt,omitempty"`
}

// IsActive returns true if the session has not been terminated.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}
