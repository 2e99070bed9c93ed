package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/browserteacher/browserteacher/internal/domain"
	"github.com/go-chi/chi/v5"
)

// LessonHandler handles lesson plan endpoints.
type LessonHandler struct {
	*Handler
}

// NewLessonHandler creates a new lesson handler.
func NewLessonHandler(base *Handler) *LessonHandler {
	return &LessonHandler{Handler: base}
}

// RegisterRoutes registers lesson routes.
func (h *LessonHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/lesson", func(r chi.Router) {
		r.Get("/plan", h.GetPlan)
		r.Post("/plan", h.UpsertPlan)
		r.Post("/step", h.ToggleStep)
	})
}

// planPayload mirrors the agent's plan JSON. Required fields are pointers so
// absence is distinguishable from a present-but-empty value.
type planPayload struct {
	Title         *string       `json:"title"`
	Description   *string       `json:"description"`
	Goal          *string       `json:"goal"`
	Objective     *string       `json:"objective"`
	UserObjective *string       `json:"userObjective"`
	Steps         []stepPayload `json:"steps"`
}

type stepPayload struct {
	ID            *string `json:"id"`
	ConceptTitle  *string `json:"conceptTitle"`
	Description   *string `json:"description"`
	Objective     *string `json:"objective"`
	UserObjective *string `json:"userObjective"`
	Done          *bool   `json:"done"`
	Order         *int    `json:"order"`
}

// toDomain validates required-field presence and applies defaults.
func (p *planPayload) toDomain() (*domain.LessonPlan, error) {
	if p.Title == nil || p.Description == nil || p.Goal == nil || p.Objective == nil {
		return nil, fmt.Errorf("plan requires title, description, goal, and objective")
	}
	if p.Steps == nil {
		return nil, fmt.Errorf("plan requires steps")
	}

	plan := &domain.LessonPlan{
		Title:       *p.Title,
		Description: *p.Description,
		Goal:        *p.Goal,
		Objective:   *p.Objective,
		Steps:       make([]domain.LessonStep, 0, len(p.Steps)),
	}
	if p.UserObjective != nil {
		plan.UserObjective = *p.UserObjective
	}

	for i, s := range p.Steps {
		if s.ID == nil || s.ConceptTitle == nil || s.Description == nil || s.Objective == nil || s.Done == nil || s.Order == nil {
			return nil, fmt.Errorf("step %d requires id, conceptTitle, description, objective, done, and order", i)
		}
		step := domain.LessonStep{
			ID:           *s.ID,
			ConceptTitle: *s.ConceptTitle,
			Description:  *s.Description,
			Objective:    *s.Objective,
			Done:         *s.Done,
			Order:        *s.Order,
		}
		if s.UserObjective != nil {
			step.UserObjective = *s.UserObjective
		}
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}

type upsertPlanRequest struct {
	SessionID string       `json:"sessionId"`
	Plan      *planPayload `json:"plan"`
}

// UpsertPlan inserts or fully replaces the plan for a session. Steps absent
// from the payload are dropped; this is a replace, not a merge.
func (h *LessonHandler) UpsertPlan(w http.ResponseWriter, r *http.Request) {
	var req upsertPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.Plan == nil {
		Error(w, http.StatusBadRequest, "sessionId and plan required")
		return
	}

	plan, err := req.Plan.toDomain()
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.repo.UpsertLessonPlan(r.Context(), req.SessionID, plan)
	if err != nil {
		slog.Error("Failed to upsert lesson plan", "error", err, "session_id", req.SessionID)
		Error(w, http.StatusInternalServerError, "failed to upsert lesson plan")
		return
	}

	slog.Info("Lesson plan upserted", "session_id", req.SessionID, "steps", len(stored.Steps))
	JSON(w, http.StatusOK, stored)
}

// GetPlan returns the plan for a session, or 404 before one exists.
func (h *LessonHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "sessionId required")
		return
	}

	plan, err := h.repo.GetLessonPlan(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to get lesson plan", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to get lesson plan")
		return
	}
	if plan == nil {
		NotFound(w)
		return
	}

	JSON(w, http.StatusOK, plan)
}

type toggleStepRequest struct {
	SessionID string `json:"sessionId"`
	StepID    string `json:"stepId"`
	Done      *bool  `json:"done"`
}

// ToggleStep sets or flips the done flag on one step. A stepId matching no
// step returns the unchanged plan; only a missing plan is a 404.
func (h *LessonHandler) ToggleStep(w http.ResponseWriter, r *http.Request) {
	var req toggleStepRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.StepID == "" {
		Error(w, http.StatusBadRequest, "sessionId and stepId required")
		return
	}

	plan, err := h.repo.ToggleLessonStep(r.Context(), req.SessionID, req.StepID, req.Done)
	if err != nil {
		slog.Error("Failed to toggle lesson step", "error", err, "session_id", req.SessionID, "step_id", req.StepID)
		Error(w, http.StatusInternalServerError, "failed to toggle lesson step")
		return
	}
	if plan == nil {
		NotFound(w)
		return
	}

	JSON(w, http.StatusOK, plan)
}
