package api

import (
	"log/slog"
	"net/http"

	"github.com/browserteacher/browserteacher/internal/voice"
	"github.com/go-chi/chi/v5"
)

// VoiceHandler handles voice token issuance.
type VoiceHandler struct {
	*Handler
	issuer *voice.Issuer
}

// NewVoiceHandler creates a new voice handler. A nil issuer means voice
// credentials are not configured and the endpoint reports unavailable.
func NewVoiceHandler(base *Handler, issuer *voice.Issuer) *VoiceHandler {
	return &VoiceHandler{Handler: base, issuer: issuer}
}

// RegisterRoutes registers voice routes.
func (h *VoiceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/voice/token", h.Token)
}

type tokenRequest struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
}

// Token mints a room access token for the caller. Room is optional; absent,
// a fresh lesson room is named.
func (h *VoiceHandler) Token(w http.ResponseWriter, r *http.Request) {
	if h.issuer == nil {
		Error(w, http.StatusServiceUnavailable, "voice not configured")
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identity == "" {
		Error(w, http.StatusBadRequest, "identity required")
		return
	}

	token, err := h.issuer.Mint(req.Identity, req.Room)
	if err != nil {
		slog.Error("Failed to mint voice token", "error", err, "identity", req.Identity)
		Error(w, http.StatusInternalServerError, "failed to mint token")
		return
	}

	slog.Info("Voice token issued", "room", token.Room, "identity", req.Identity)
	JSON(w, http.StatusOK, token)
}
