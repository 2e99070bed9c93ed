package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/browserteacher/browserteacher/internal/domain"
	"github.com/coder/websocket"
)

// feedRepo implements just enough of store.Repository for feed tests.
type feedRepo struct {
	mu       sync.Mutex
	messages []*domain.ChatMessage
	nextID   int64
}

func (f *feedRepo) append(role, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.messages = append(f.messages, &domain.ChatMessage{
		ID:        f.nextID,
		SessionID: "s1",
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

func (f *feedRepo) RecentChatMessages(_ context.Context, _ string, limit int) ([]*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log := f.messages
	if limit < len(log) {
		log = log[len(log)-limit:]
	}
	return append([]*domain.ChatMessage(nil), log...), nil
}

func (f *feedRepo) StartSession(context.Context, string, string, string, string) (*domain.Session, error) {
	return nil, nil
}
func (f *feedRepo) GetSessionByID(context.Context, string) (*domain.Session, error)   { return nil, nil }
func (f *feedRepo) GetSessionByRoom(context.Context, string) (*domain.Session, error) { return nil, nil }
func (f *feedRepo) UpsertLessonPlan(context.Context, string, *domain.LessonPlan) (*domain.LessonPlan, error) {
	return nil, nil
}
func (f *feedRepo) GetLessonPlan(context.Context, string) (*domain.LessonPlan, error) {
	return nil, nil
}
func (f *feedRepo) ToggleLessonStep(context.Context, string, string, *bool) (*domain.LessonPlan, error) {
	return nil, nil
}
func (f *feedRepo) AppendChatMessage(context.Context, string, string, string) (*domain.ChatMessage, error) {
	return nil, nil
}
func (f *feedRepo) AppendAgentMessages(context.Context, string, []json.RawMessage) error { return nil }
func (f *feedRepo) RecentAgentMessages(context.Context, string, int) ([]json.RawMessage, error) {
	return nil, nil
}
func (f *feedRepo) Ping(context.Context) error { return nil }
func (f *feedRepo) Close() error               { return nil }

func readMessage(ctx context.Context, t *testing.T, ws *websocket.Conn) *domain.ChatMessage {
	t.Helper()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg domain.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return &msg
}

func TestFeedStreamsBacklogThenNewMessages(t *testing.T) {
	repo := &feedRepo{}
	repo.append("user", "hi")
	repo.append("assistant", "hello")

	srv := httptest.NewServer(NewFeed(repo, 10*time.Millisecond, 50))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?sessionId=s1"
	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "done")

	first := readMessage(ctx, t, ws)
	second := readMessage(ctx, t, ws)
	if first.Content != "hi" || second.Content != "hello" {
		t.Errorf("backlog out of order: %q, %q", first.Content, second.Content)
	}

	repo.append("user", "what next?")
	third := readMessage(ctx, t, ws)
	if third.Content != "what next?" {
		t.Errorf("new message not streamed, got %q", third.Content)
	}

	// No duplicates: the cursor must not re-deliver the backlog.
	if first.ID >= second.ID || second.ID >= third.ID {
		t.Errorf("ids not strictly increasing: %d, %d, %d", first.ID, second.ID, third.ID)
	}
}

func TestFeedRequiresSessionID(t *testing.T) {
	srv := httptest.NewServer(NewFeed(&feedRepo{}, 10*time.Millisecond, 50))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	if _, _, err := websocket.Dial(ctx, wsURL, nil); err == nil {
		t.Fatal("expected dial to fail without sessionId")
	}
}
