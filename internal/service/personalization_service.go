package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/personaops/backend/internal/demo"
	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/observability/metrics"
	"github.com/personaops/backend/internal/reliability/circuitbreaker"
)

// EmailContact is the recipient block of an email-personalization request.
type EmailContact struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Title       string `json:"title"`
	CompanyName string `json:"companyName"`
	Email       string `json:"email,omitempty"`
}

// EmailSender identifies who the email is from.
type EmailSender struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty"`
}

// EmailRequest is the email-personalization body.
type EmailRequest struct {
	Contact          *EmailContact `json:"contact"`
	Sender           EmailSender   `json:"sender"`
	ValueProposition string        `json:"valueProposition,omitempty"`
	Tone             string        `json:"tone,omitempty"`
}

// EmailResult is the email-personalization response.
type EmailResult struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Source  string `json:"source"`
}

// PersonalizationService drafts outreach emails.
type PersonalizationService struct {
	llm       domain.LLM
	breaker   *circuitbreaker.CircuitBreaker
	forceDemo func() bool
	logger    *slog.Logger
}

// NewPersonalizationService wires the service. llm may be nil.
func NewPersonalizationService(llm domain.LLM, breaker *circuitbreaker.CircuitBreaker, forceDemo func() bool, logger *slog.Logger) *PersonalizationService {
	if forceDemo == nil {
		forceDemo = func() bool { return false }
	}
	return &PersonalizationService{llm: llm, breaker: breaker, forceDemo: forceDemo, logger: logger}
}

// Personalize drafts an email with OpenRouter, or from the template when the
// provider is missing or fails.
func (s *PersonalizationService) Personalize(ctx context.Context, req EmailRequest) (*EmailResult, error) {
	if req.Contact == nil {
		return nil, domain.Required("contact")
	}
	if strings.TrimSpace(req.Contact.CompanyName) == "" {
		return nil, domain.Required("contact.companyName")
	}

	reason := ""
	switch {
	case s.llm == nil:
		reason = "no_key"
	case s.forceDemo():
		reason = "forced"
	default:
		email, err := callProvider(ctx, s.breaker, s.llm.Name(), func(ctx context.Context) (*domain.Email, error) {
			raw, err := completeObject(ctx, s.llm, emailSystem, buildEmailPrompt(req))
			if err != nil {
				return nil, err
			}
			var e domain.Email
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, fmt.Errorf("decode email: %w", err)
			}
			if strings.TrimSpace(e.Subject) == "" || strings.TrimSpace(e.Body) == "" {
				return nil, fmt.Errorf("model returned an incomplete email")
			}
			return &e, nil
		})
		if err == nil {
			return &EmailResult{Subject: email.Subject, Body: email.Body, Source: SourceOpenRouter}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason = reasonFor(err)
		s.logger.WarnContext(ctx, "provider failed, serving template email",
			slog.String("function", "email-personalization"),
			slog.String("error", err.Error()),
		)
	}

	metrics.ObserveDemoFallback("email-personalization", reason)
	e := demo.Email(demo.EmailInput{
		Contact: domain.Contact{
			FirstName:   req.Contact.FirstName,
			LastName:    req.Contact.LastName,
			Title:       req.Contact.Title,
			Email:       req.Contact.Email,
			CompanyName: req.Contact.CompanyName,
		},
		SenderName:       req.Sender.Name,
		SenderCompany:    req.Sender.Company,
		ValueProposition: req.ValueProposition,
	})
	return &EmailResult{Subject: e.Subject, Body: e.Body, Source: SourceDemo}, nil
}
