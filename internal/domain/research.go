package domain

import (
	"context"
	"time"
)

// Research step names written by the company analyzer.
const (
	StepStarted     = "started"
	StepLLMAnalysis = "llm_analysis"
	StepPersisted   = "persisted"
	StepFailed      = "failed"
)

// Research step statuses.
const (
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

// ResearchStep is one company_research_steps row.
type ResearchStep struct {
	ID         int64     `json:"id"`
	ResearchID string    `json:"research_id"`
	UserID     string    `json:"user_id"`
	Step       string    `json:"step"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Terminal reports whether no further steps follow this one.
func (s *ResearchStep) Terminal() bool {
	return s.Step == StepPersisted || s.Step == StepFailed
}

// ResearchStepRepository defines data access for research progress
type ResearchStepRepository interface {
	Append(ctx context.Context, step *ResearchStep) error
	// ListSince returns steps for researchID owned by userID with id > afterID, oldest first.
	ListSince(ctx context.Context, researchID, userID string, afterID int64) ([]*ResearchStep, error)
}
