package domain

import (
	"time"
)

// LessonStep is one unit of a lesson plan with a completion flag.
// ID is unique within its plan's step collection; Order defines display
// order and is not guaranteed contiguous or unique.
type LessonStep struct {
	ID            string `json:"id"`
	ConceptTitle  string `json:"conceptTitle"`
	Description   string `json:"description"`
	Objective     string `json:"objective"`
	UserObjective string `json:"userObjective,omitempty"`
	Done          bool   `json:"done"`
	Order         int    `json:"order"`
}

// LessonPlan is the curriculum generated by the external agent and persisted
// per session. A session has at most one plan; every upsert is a full
// replace of all fields including the step collection.
type LessonPlan struct {
	SessionID     string       `json:"sessionId"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Goal          string       `json:"goal"`
	Objective     string       `json:"objective"`
	UserObjective string       `json:"userObjective"`
	Steps         []LessonStep `json:"steps"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Step returns the step with the given id, or nil if no step matches.
func (p *LessonPlan) Step(id string) *LessonStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// CompletedCount returns the number of steps marked done.
func (p *LessonPlan) CompletedCount() int {
	n := 0
	for i := range p.Steps {
		if p.Steps[i].Done {
			n++
		}
	}
	return n
}
