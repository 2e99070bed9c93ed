package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/browserteacher/browserteacher/internal/domain"
	"github.com/go-chi/chi/v5"
)

// MessagesHandler handles chat transcript and agent log endpoints.
type MessagesHandler struct {
	*Handler
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(base *Handler) *MessagesHandler {
	return &MessagesHandler{Handler: base}
}

// RegisterRoutes registers message routes.
func (h *MessagesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/messages", func(r chi.Router) {
		r.Get("/", h.Recent)
		r.Post("/", h.Append)
		r.Get("/history_json", h.AgentHistory)
		r.Post("/append_json", h.AgentAppend)
	})
}

// limitParam parses the limit query parameter, falling back to def when
// absent or malformed.
func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Recent returns the newest messages for a session, oldest first.
func (h *MessagesHandler) Recent(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "sessionId required")
		return
	}
	limit := limitParam(r, h.cfg.ChatHistoryLimit)

	messages, err := h.repo.RecentChatMessages(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("Failed to query chat messages", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to query messages")
		return
	}
	if messages == nil {
		messages = []*domain.ChatMessage{}
	}

	JSON(w, http.StatusOK, messages)
}

type appendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// Append adds one transcript entry. The role value is not constrained beyond
// being a non-empty string.
func (h *MessagesHandler) Append(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.Role == "" || req.Content == "" {
		Error(w, http.StatusBadRequest, "sessionId, role, content required")
		return
	}

	msg, err := h.repo.AppendChatMessage(r.Context(), req.SessionID, req.Role, req.Content)
	if err != nil {
		slog.Error("Failed to append chat message", "error", err, "session_id", req.SessionID)
		Error(w, http.StatusInternalServerError, "failed to append message")
		return
	}

	JSON(w, http.StatusOK, msg)
}

// AgentHistory returns the newest agent payloads for a room, oldest first,
// envelope stripped. Payloads pass through verbatim.
func (h *MessagesHandler) AgentHistory(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		Error(w, http.StatusBadRequest, "roomId required")
		return
	}
	limit := limitParam(r, h.cfg.AgentHistoryLimit)

	payloads, err := h.repo.RecentAgentMessages(r.Context(), roomID, limit)
	if err != nil {
		slog.Error("Failed to query agent messages", "error", err, "room_id", roomID)
		Error(w, http.StatusInternalServerError, "failed to query agent messages")
		return
	}
	if payloads == nil {
		payloads = []json.RawMessage{}
	}

	JSON(w, http.StatusOK, payloads)
}

type agentAppendRequest struct {
	RoomID string `json:"roomId"`
	// Pointer distinguishes an absent field from an empty batch; an empty
	// batch is a valid no-op.
	MessagesJSON *[]json.RawMessage `json:"messagesJson"`
}

// AgentAppend adds a batch of opaque agent payloads for a room.
func (h *MessagesHandler) AgentAppend(w http.ResponseWriter, r *http.Request) {
	var req agentAppendRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoomID == "" || req.MessagesJSON == nil {
		Error(w, http.StatusBadRequest, "roomId and messagesJson required")
		return
	}

	if err := h.repo.AppendAgentMessages(r.Context(), req.RoomID, *req.MessagesJSON); err != nil {
		slog.Error("Failed to append agent messages", "error", err, "room_id", req.RoomID)
		Error(w, http.StatusInternalServerError, "failed to append agent messages")
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
