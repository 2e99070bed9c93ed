// Package live streams newly appended chat messages to websocket clients,
// sparing the UI from polling the transcript over HTTP.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/browserteacher/browserteacher/internal/domain"
	"github.com/browserteacher/browserteacher/internal/store"
	"github.com/coder/websocket"
)

// Feed serves a per-session message stream over websocket.
type Feed struct {
	repo     store.Repository
	interval time.Duration
	window   int
}

// NewFeed creates a feed that re-reads the newest window of the transcript
// every interval and pushes unseen messages to the client.
func NewFeed(repo store.Repository, interval time.Duration, window int) *Feed {
	return &Feed{repo: repo, interval: interval, window: window}
}

// ServeHTTP upgrades the connection and streams messages until the client
// disconnects or the request context ends.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId required", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept websocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	slog.Info("Message feed attached", "session_id", sessionID, "ip", r.RemoteAddr)

	ctx := r.Context()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	// Cursor is the store-assigned id of the last delivered message, so
	// messages sharing one millisecond timestamp are never re-sent.
	var cursor int64

	for {
		cursor, err = f.push(ctx, ws, sessionID, cursor)
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("Message feed write failed", "error", err, "session_id", sessionID)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// push delivers messages newer than cursor and returns the advanced cursor.
func (f *Feed) push(ctx context.Context, ws *websocket.Conn, sessionID string, cursor int64) (int64, error) {
	messages, err := f.repo.RecentChatMessages(ctx, sessionID, f.window)
	if err != nil {
		// A failed read is retried on the next tick; only writes tear the
		// connection down.
		slog.Warn("Message feed read failed", "error", err, "session_id", sessionID)
		return cursor, nil
	}

	for _, msg := range messages {
		if msg.ID <= cursor {
			continue
		}
		if err := writeJSON(ctx, ws, msg); err != nil {
			return cursor, err
		}
		cursor = msg.ID
	}
	return cursor, nil
}

func writeJSON(ctx context.Context, ws *websocket.Conn, msg *domain.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, payload)
}
