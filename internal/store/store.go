// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"

	"github.com/browserteacher/browserteacher/internal/domain"
)

// Repository defines the interface for persisting sessions, lesson plans,
// and message logs. Lookup methods return (nil, nil) when no record matches
// a well-formed key; callers must treat that as not-found, not as an error.
type Repository interface {
	// StartSession creates the session bound to roomID, or overwrites all
	// fields of the existing one in place. The session identity is minted on
	// first insert and stable across overwrites. Never creates a second
	// record for the same room.
	StartSession(ctx context.Context, roomID, providerSessionID, liveViewURL, controlEndpoint string) (*domain.Session, error)

	// GetSessionByID retrieves a session by its store-assigned identity.
	GetSessionByID(ctx context.Context, id string) (*domain.Session, error)

	// GetSessionByRoom retrieves the session bound to a room.
	GetSessionByRoom(ctx context.Context, roomID string) (*domain.Session, error)

	// UpsertLessonPlan inserts or fully replaces the plan for a session,
	// including the entire step collection, and refreshes UpdatedAt.
	UpsertLessonPlan(ctx context.Context, sessionID string, plan *domain.LessonPlan) (*domain.LessonPlan, error)

	// GetLessonPlan retrieves the plan for a session.
	GetLessonPlan(ctx context.Context, sessionID string) (*domain.LessonPlan, error)

	// ToggleLessonStep sets the done flag on one step of a session's plan.
	// If done is nil the current value is flipped. A stepID matching no step
	// rewrites the plan unchanged and returns it; that is a success, not an
	// error. A session with no plan returns (nil, nil).
	ToggleLessonStep(ctx context.Context, sessionID, stepID string, done *bool) (*domain.LessonPlan, error)

	// AppendChatMessage appends one immutable transcript entry with a
	// store-assigned timestamp.
	AppendChatMessage(ctx context.Context, sessionID, role, content string) (*domain.ChatMessage, error)

	// RecentChatMessages returns at most limit most-recent messages for the
	// session in ascending time order (the newest suffix of the log).
	RecentChatMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error)

	// AppendAgentMessages appends each payload as one log entry sharing the
	// same batch timestamp, preserving input order. An empty batch is a
	// no-op success.
	AppendAgentMessages(ctx context.Context, roomID string, payloads []json.RawMessage) error

	// RecentAgentMessages returns at most limit most-recent agent payloads
	// for the room in ascending time order, envelope stripped.
	RecentAgentMessages(ctx context.Context, roomID string, limit int) ([]json.RawMessage, error)

	// Ping verifies database connectivity and returns an error if the
	// database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
