package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/pkg/cache"
)

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Company   *string `json:"company"`
	Role      *string `json:"role"`
}

// ProfileService loads and edits user profiles.
type ProfileService struct {
	repo   domain.ProfileRepository
	logger *slog.Logger
}

func NewProfileService(repo domain.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{repo: repo, logger: logger}
}

// Session returns the caller's profile, creating it on first sight.
func (s *ProfileService) Session(ctx context.Context, userID, email string) (*domain.Profile, error) {
	p, err := s.repo.GetByID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	s.logger.Info("creating profile on first session", slog.String("user_id", userID))
	return s.repo.EnsureExists(ctx, userID, email)
}

// Update applies the non-nil fields of upd.
func (s *ProfileService) Update(ctx context.Context, userID, email string, upd ProfileUpdate) (*domain.Profile, error) {
	p, err := s.Session(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	if upd.FirstName != nil {
		p.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		p.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Company != nil {
		p.Company = strings.TrimSpace(*upd.Company)
	}
	if upd.Role != nil {
		p.Role = strings.TrimSpace(*upd.Role)
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveICPRequest is the POST /api/icps body.
type SaveICPRequest struct {
	Name       string          `json:"name"`
	WebsiteURL string          `json:"website_url"`
	Data       json.RawMessage `json:"icp_data"`
}

// ICPLibraryService stores ICPs the user chose to keep.
type ICPLibraryService struct {
	repo domain.ICPRepository
}

func NewICPLibraryService(repo domain.ICPRepository) *ICPLibraryService {
	return &ICPLibraryService{repo: repo}
}

func (s *ICPLibraryService) Save(ctx context.Context, userID string, req SaveICPRequest) (*domain.ICP, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.Required("name")
	}
	if !isJSONObject(req.Data) {
		return nil, &domain.ValidationError{Field: "icp_data", Message: "must be a JSON object"}
	}
	icp := &domain.ICP{UserID: userID, Name: strings.TrimSpace(req.Name), WebsiteURL: req.WebsiteURL, Data: req.Data}
	if err := s.repo.Create(ctx, icp); err != nil {
		return nil, err
	}
	return icp, nil
}

func (s *ICPLibraryService) List(ctx context.Context, userID string) ([]*domain.ICP, error) {
	return s.repo.ListByUser(ctx, userID)
}

// InvitationResult reports whether the invite email went out.
type InvitationResult struct {
	Invitation *domain.Invitation `json:"invitation"`
	EmailSent  bool               `json:"email_sent"`
}

// InvitationService records invitations and emails them when SMTP is set up.
type InvitationService struct {
	repo        domain.InvitationRepository
	mailer      domain.Mailer
	frontendURL string
	logger      *slog.Logger
}

// NewInvitationService wires invitations. mailer may be nil.
func NewInvitationService(repo domain.InvitationRepository, mailer domain.Mailer, frontendURL string, logger *slog.Logger) *InvitationService {
	return &InvitationService{repo: repo, mailer: mailer, frontendURL: strings.TrimRight(frontendURL, "/"), logger: logger}
}

// Invite stores the invitation first; a failed email does not undo it.
func (s *InvitationService) Invite(ctx context.Context, inviterID, inviterEmail, email string) (*InvitationResult, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return nil, &domain.ValidationError{Field: "email", Message: "must be a valid email address"}
	}

	inv := &domain.Invitation{Email: strings.ToLower(addr.Address), InviterUserID: inviterID}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}

	res := &InvitationResult{Invitation: inv}
	if s.mailer == nil {
		return res, nil
	}

	from := inviterEmail
	if from == "" {
		from = "A teammate"
	}
	body := fmt.Sprintf("%s invited you to join their PersonaOps workspace.\n\nCreate your account: %s/signup?email=%s\n",
		from, s.frontendURL, url.QueryEscape(inv.Email))
	if err := s.mailer.Send(ctx, inv.Email, "You're invited to PersonaOps", body); err != nil {
		s.logger.Warn("invitation saved but email failed",
			slog.String("invitation_id", inv.ID),
			slog.String("error", err.Error()),
		)
		return res, nil
	}
	res.EmailSent = true
	return res, nil
}

// CRMSummary is the GET /api/crm/summary response.
type CRMSummary struct {
	Stages      []domain.DealStageCount `json:"stages"`
	TotalDeals  int                     `json:"total_deals"`
	ClosedWon   int                     `json:"closed_won"`
	ClosedLost  int                     `json:"closed_lost"`
	SuccessRate float64                 `json:"success_rate"`
}

const crmSummaryTTL = 30 * time.Second

// CRMService aggregates synced CRM deals.
type CRMService struct {
	repo  domain.CRMRepository
	cache *cache.Cache[*CRMSummary]
}

func NewCRMService(repo domain.CRMRepository) *CRMService {
	return &CRMService{repo: repo, cache: cache.New[*CRMSummary]()}
}

// Summary returns funnel counts and closedwon / (closedwon + closedlost).
func (s *CRMService) Summary(ctx context.Context, userID string) (*CRMSummary, error) {
	if cached, ok := s.cache.Get("crm:" + userID); ok {
		return cached, nil
	}

	stages, err := s.repo.CountByStage(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum := &CRMSummary{Stages: stages}
	for _, st := range stages {
		sum.TotalDeals += st.Count
		switch strings.ToLower(st.Stage) {
		case "closedwon":
			sum.ClosedWon += st.Count
		case "closedlost":
			sum.ClosedLost += st.Count
		}
	}
	if closed := sum.ClosedWon + sum.ClosedLost; closed > 0 {
		sum.SuccessRate = float64(sum.ClosedWon) / float64(closed)
	}

	s.cache.Set("crm:"+userID, sum, crmSummaryTTL)
	return sum, nil
}

// SaveReportRequest is the POST /api/reports body.
type SaveReportRequest struct {
	Title  string          `json:"title"`
	Report json.RawMessage `json:"report"`
}

// ReportService stores dashboard snapshots.
type ReportService struct {
	repo domain.ReportRepository
}

func NewReportService(repo domain.ReportRepository) *ReportService {
	return &ReportService{repo: repo}
}

func (s *ReportService) Save(ctx context.Context, userID string, req SaveReportRequest) (*domain.SavedReport, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, domain.Required("title")
	}
	if !isJSONObject(req.Report) {
		return nil, &domain.ValidationError{Field: "report", Message: "must be a JSON object"}
	}
	rep := &domain.SavedReport{UserID: userID, Title: strings.TrimSpace(req.Title), Report: req.Report}
	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *ReportService) List(ctx context.Context, userID string) ([]*domain.SavedReport, error) {
	return s.repo.ListByUser(ctx, userID)
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
