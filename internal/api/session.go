package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/browserteacher/browserteacher/internal/browser"
	"github.com/browserteacher/browserteacher/internal/domain"
	"github.com/go-chi/chi/v5"
)

// startLocks prevents concurrent session starts for the same room.
var startLocks sync.Map

// Provisioner creates remote browser sessions with the hosting vendor.
type Provisioner interface {
	Create(ctx context.Context) (*browser.ProviderSession, error)
}

// SessionHandler handles browser session endpoints.
type SessionHandler struct {
	*Handler
	provisioner Provisioner
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler, provisioner Provisioner) *SessionHandler {
	return &SessionHandler{Handler: base, provisioner: provisioner}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/start", h.Start)
	})
}

type startSessionRequest struct {
	RoomID string `json:"roomId"`
}

// Start provisions a remote browser and binds it to the room. A room that
// already has a session gets its record overwritten in place, never a
// duplicate.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoomID == "" {
		Error(w, http.StatusBadRequest, "roomId required")
		return
	}

	// Prevent concurrent starts for the same room from double-provisioning.
	lock, _ := startLocks.LoadOrStore(req.RoomID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Session start already in progress", "room_id", req.RoomID)
		Error(w, http.StatusConflict, "start_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		startLocks.Delete(req.RoomID)
	}()

	ctx := r.Context()
	provisioned, err := h.provisioner.Create(ctx)
	if err != nil {
		slog.Error("Failed to provision browser session", "error", err, "room_id", req.RoomID)
		Error(w, http.StatusInternalServerError, "failed to provision browser session")
		return
	}

	session, err := h.repo.StartSession(ctx, req.RoomID, provisioned.ID, provisioned.LiveViewURL, provisioned.ControlEndpoint)
	if err != nil {
		slog.Error("Failed to persist session", "error", err, "room_id", req.RoomID)
		Error(w, http.StatusInternalServerError, "failed to persist session")
		return
	}

	slog.Info("Session started",
		"room_id", req.RoomID,
		"session_id", session.ID,
		"provider_session_id", provisioned.ID)
	JSON(w, http.StatusOK, map[string]string{
		"sessionId":   session.ID,
		"roomId":      session.RoomID,
		"liveViewUrl": session.LiveViewURL,
	})
}

// Get looks up a session by sessionId or roomId. Exactly one key is
// required; an unmatched key is a 404, never a 500.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	roomID := r.URL.Query().Get("roomId")
	if sessionID == "" && roomID == "" {
		Error(w, http.StatusBadRequest, "sessionId or roomId required")
		return
	}

	ctx := r.Context()
	var session *domain.Session
	var err error
	if sessionID != "" {
		session, err = h.repo.GetSessionByID(ctx, sessionID)
	} else {
		session, err = h.repo.GetSessionByRoom(ctx, roomID)
	}
	if err != nil {
		slog.Error("Failed to look up session", "error", err, "session_id", sessionID, "room_id", roomID)
		Error(w, http.StatusInternalServerError, "failed to look up session")
		return
	}
	if session == nil {
		NotFound(w)
		return
	}

	JSON(w, http.StatusOK, session)
}
