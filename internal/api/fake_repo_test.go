//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/browserteacher/browserteacher/internal/config"
	"github.com/browserteacher/browserteacher/internal/domain"
)

// fakeRepo is an in-memory Repository for handler tests.
type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session // keyed by room
	plans    map[string]*domain.LessonPlan
	chat     map[string][]*domain.ChatMessage
	agent    map[string][]json.RawMessage
	nextID   int64
	failWith error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: make(map[string]*domain.Session),
		plans:    make(map[string]*domain.LessonPlan),
		chat:     make(map[string][]*domain.ChatMessage),
		agent:    make(map[string][]json.RawMessage),
	}
}

func (f *fakeRepo) StartSession(_ context.Context, roomID, providerSessionID, liveViewURL, controlEndpoint string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	existing := f.sessions[roomID]
	id := fmt.Sprintf("sess-%d", len(f.sessions)+1)
	if existing != nil {
		id = existing.ID
	}
	session := &domain.Session{
		ID:                id,
		RoomID:            roomID,
		ProviderSessionID: providerSessionID,
		LiveViewURL:       liveViewURL,
		ControlEndpoint:   controlEndpoint,
		Status:            domain.SessionStatusActive,
		CreatedAt:         time.Now(),
	}
	f.sessions[roomID] = session
	copy := *session
	return &copy, nil
}

func (f *fakeRepo) GetSessionByID(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, session := range f.sessions {
		if session.ID == id {
			copy := *session
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) GetSessionByRoom(_ context.Context, roomID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	session := f.sessions[roomID]
	if session == nil {
		return nil, nil
	}
	copy := *session
	return &copy, nil
}

func (f *fakeRepo) UpsertLessonPlan(_ context.Context, sessionID string, plan *domain.LessonPlan) (*domain.LessonPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	stored := *plan
	stored.SessionID = sessionID
	stored.UpdatedAt = time.Now()
	f.plans[sessionID] = &stored
	copy := stored
	return &copy, nil
}

func (f *fakeRepo) GetLessonPlan(_ context.Context, sessionID string) (*domain.LessonPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	plan := f.plans[sessionID]
	if plan == nil {
		return nil, nil
	}
	copy := *plan
	return &copy, nil
}

func (f *fakeRepo) ToggleLessonStep(_ context.Context, sessionID, stepID string, done *bool) (*domain.LessonPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	plan := f.plans[sessionID]
	if plan == nil {
		return nil, nil
	}
	for i := range plan.Steps {
		if plan.Steps[i].ID != stepID {
			continue
		}
		if done != nil {
			plan.Steps[i].Done = *done
		} else {
			plan.Steps[i].Done = !plan.Steps[i].Done
		}
		break
	}
	plan.UpdatedAt = time.Now()
	copy := *plan
	return &copy, nil
}

func (f *fakeRepo) AppendChatMessage(_ context.Context, sessionID, role, content string) (*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.nextID++
	msg := &domain.ChatMessage{
		ID:        f.nextID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.chat[sessionID] = append(f.chat[sessionID], msg)
	copy := *msg
	return &copy, nil
}

func (f *fakeRepo) RecentChatMessages(_ context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	log := f.chat[sessionID]
	if limit < len(log) {
		log = log[len(log)-limit:]
	}
	out := make([]*domain.ChatMessage, 0, len(log))
	for _, msg := range log {
		copy := *msg
		out = append(out, &copy)
	}
	return out, nil
}

func (f *fakeRepo) AppendAgentMessages(_ context.Context, roomID string, payloads []json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.agent[roomID] = append(f.agent[roomID], payloads...)
	return nil
}

func (f *fakeRepo) RecentAgentMessages(_ context.Context, roomID string, limit int) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	log := f.agent[roomID]
	if limit < len(log) {
		log = log[len(log)-limit:]
	}
	return append([]json.RawMessage(nil), log...), nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return f.failWith }
func (f *fakeRepo) Close() error                 { return nil }

func (f *fakeRepo) agentLogLen(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.agent[roomID])
}

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8080",
		DBPath:            "ignored",
		ChatHistoryLimit:  50,
		AgentHistoryLimit: 100,
		FeedPollInterval:  time.Second,
	}
}
