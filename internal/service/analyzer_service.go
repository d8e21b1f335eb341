package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/reliability/circuitbreaker"
)

// AnalyzeRequest is the company-analyzer body.
type AnalyzeRequest struct {
	WebsiteURL  string `json:"websiteUrl"`
	CompanyName string `json:"companyName,omitempty"`
	ICPID       string `json:"icpId,omitempty"`
	// ResearchID lets the client subscribe to progress before posting.
	ResearchID string `json:"researchId,omitempty"`
}

// AnalyzeResult is the company-analyzer response.
type AnalyzeResult struct {
	ID         string          `json:"id"`
	ResearchID string          `json:"researchId"`
	LLMOutput  json.RawMessage `json:"llm_output"`
}

// ErrAnalyzerUnavailable is returned when no LLM is configured.
var ErrAnalyzerUnavailable = fmt.Errorf("%w: company analyzer requires an OpenRouter key", domain.ErrUpstreamProvider)

// AnalyzerService runs company research and records its progress.
type AnalyzerService struct {
	llm     domain.LLM
	breaker *circuitbreaker.CircuitBreaker
	outputs domain.AnalyzerOutputRepository
	steps   domain.ResearchStepRepository
	logger  *slog.Logger
}

// NewAnalyzerService wires the analyzer. llm may be nil, in which case every
// call fails.
func NewAnalyzerService(llm domain.LLM, breaker *circuitbreaker.CircuitBreaker, outputs domain.AnalyzerOutputRepository, steps domain.ResearchStepRepository, logger *slog.Logger) *AnalyzerService {
	return &AnalyzerService{llm: llm, breaker: breaker, outputs: outputs, steps: steps, logger: logger}
}

// Analyze calls the LLM and stores its output. There is no demo fallback.
func (s *AnalyzerService) Analyze(ctx context.Context, userID string, req AnalyzeRequest) (*AnalyzeResult, error) {
	if strings.TrimSpace(req.WebsiteURL) == "" {
		return nil, domain.Required("websiteUrl")
	}
	researchID := req.ResearchID
	if researchID == "" {
		researchID = uuid.NewString()
	} else if _, err := uuid.Parse(researchID); err != nil {
		return nil, &domain.ValidationError{Field: "researchId", Message: "must be a UUID"}
	}
	var icpID *string
	if req.ICPID != "" {
		if _, err := uuid.Parse(req.ICPID); err != nil {
			return nil, &domain.ValidationError{Field: "icpId", Message: "must be a UUID"}
		}
		icpID = &req.ICPID
	}

	logger := s.logger.With(slog.String("research_id", researchID), slog.String("user_id", userID))
	s.record(ctx, logger, researchID, userID, domain.StepStarted, domain.StepStatusCompleted, req.WebsiteURL)

	if s.llm == nil {
		s.record(ctx, logger, researchID, userID, domain.StepFailed, domain.StepStatusFailed, "no LLM provider configured")
		return nil, ErrAnalyzerUnavailable
	}

	s.record(ctx, logger, researchID, userID, domain.StepLLMAnalysis, domain.StepStatusRunning, "")
	output, err := callProvider(ctx, s.breaker, s.llm.Name(), func(ctx context.Context) (json.RawMessage, error) {
		return completeObject(ctx, s.llm, jsonOnlySystem, buildAnalyzerPrompt(req.CompanyName, req.WebsiteURL))
	})
	if err != nil {
		logger.Error("company analysis failed", slog.String("error", err.Error()))
		s.record(ctx, logger, researchID, userID, domain.StepFailed, domain.StepStatusFailed, "analysis failed")
		return nil, fmt.Errorf("failed to analyze company: %w", err)
	}

	companyName := req.CompanyName
	if companyName == "" {
		companyName = companyNameFrom(output)
	}
	out := &domain.AnalyzerOutput{
		UserID:      userID,
		WebsiteURL:  req.WebsiteURL,
		CompanyName: companyName,
		ICPID:       icpID,
		LLMOutput:   output,
	}
	if err := s.outputs.Create(ctx, out); err != nil {
		s.record(ctx, logger, researchID, userID, domain.StepFailed, domain.StepStatusFailed, "could not save analysis")
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	s.record(ctx, logger, researchID, userID, domain.StepPersisted, domain.StepStatusCompleted, out.ID)
	return &AnalyzeResult{ID: out.ID, ResearchID: researchID, LLMOutput: output}, nil
}

// ListOutputs returns the user's recent analyzer outputs.
func (s *AnalyzerService) ListOutputs(ctx context.Context, userID string, limit int) ([]*domain.AnalyzerOutput, error) {
	return s.outputs.ListByUser(ctx, userID, limit)
}

// StepsSince is polled by the research progress stream.
func (s *AnalyzerService) StepsSince(ctx context.Context, researchID, userID string, afterID int64) ([]*domain.ResearchStep, error) {
	if _, err := uuid.Parse(researchID); err != nil {
		return nil, &domain.ValidationError{Field: "id", Message: "must be a UUID"}
	}
	return s.steps.ListSince(ctx, researchID, userID, afterID)
}

// record appends a progress step. Progress is advisory, so failures are
// logged and the analysis continues.
func (s *AnalyzerService) record(ctx context.Context, logger *slog.Logger, researchID, userID, step, status, detail string) {
	err := s.steps.Append(ctx, &domain.ResearchStep{
		ResearchID: researchID,
		UserID:     userID,
		Step:       step,
		Status:     status,
		Detail:     detail,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("failed to record research step", slog.String("step", step), slog.String("error", err.Error()))
	}
}

func companyNameFrom(output json.RawMessage) string {
	var v struct {
		CompanyName string `json:"companyName"`
	}
	_ = json.Unmarshal(output, &v)
	return v.CompanyName
}
