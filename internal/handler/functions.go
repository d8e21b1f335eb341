package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/personaops/backend/internal/security/auth"
	"github.com/personaops/backend/internal/service"
)

// ICPGenerator produces or recalls an ICP for a website.
type ICPGenerator interface {
	Generate(ctx context.Context, userID, websiteURL string) (*service.GenerationResult, error)
}

// PlaybookGenerator produces or recalls a GTM playbook.
type PlaybookGenerator interface {
	Generate(ctx context.Context, userID, websiteURL string, icp, gtmForm json.RawMessage) (*service.GenerationResult, error)
}

// Discoverer finds companies and contacts.
type Discoverer interface {
	DiscoverCompanies(ctx context.Context, req service.CompanyDiscoveryRequest) (*service.CompanyDiscoveryResult, error)
	DiscoverContacts(ctx context.Context, req service.ContactDiscoveryRequest) (*service.ContactDiscoveryResult, error)
}

// Personalizer drafts outreach emails.
type Personalizer interface {
	Personalize(ctx context.Context, req service.EmailRequest) (*service.EmailResult, error)
}

// Analyzer runs company research.
type Analyzer interface {
	Analyze(ctx context.Context, userID string, req service.AnalyzeRequest) (*service.AnalyzeResult, error)
}

// FunctionsHandler serves POST /functions/v1/<name>. Method and auth checks
// happen in middleware; a missing identity here is still rejected.
type FunctionsHandler struct {
	icp             ICPGenerator
	playbook        PlaybookGenerator
	discovery       Discoverer
	personalization Personalizer
	analyzer        Analyzer
	logger          *slog.Logger
}

// NewFunctionsHandler creates a new functions handler
func NewFunctionsHandler(icp ICPGenerator, playbook PlaybookGenerator, discovery Discoverer, personalization Personalizer, analyzer Analyzer, logger *slog.Logger) *FunctionsHandler {
	return &FunctionsHandler{
		icp:             icp,
		playbook:        playbook,
		discovery:       discovery,
		personalization: personalization,
		analyzer:        analyzer,
		logger:          logger,
	}
}

type icpRequest struct {
	WebsiteURL string `json:"websiteUrl"`
}

type playbookRequest struct {
	WebsiteURL string          `json:"websiteUrl"`
	ICP        json.RawMessage `json:"icp"`
	GTMForm    json.RawMessage `json:"gtmForm"`
}

// ICP handles icp-generator.
func (h *FunctionsHandler) ICP(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req icpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.icp.Generate(r.Context(), userID, req.WebsiteURL)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, generationBody("icp_result", res))
}

// Playbook handles playbook-generator.
func (h *FunctionsHandler) Playbook(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req playbookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.playbook.Generate(r.Context(), userID, req.WebsiteURL, req.ICP, req.GTMForm)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, generationBody("playbook_result", res))
}

// CompanyDiscovery handles company-discovery.
func (h *FunctionsHandler) CompanyDiscovery(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	var req service.CompanyDiscoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.discovery.DiscoverCompanies(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

// ContactDiscovery handles contact-discovery.
func (h *FunctionsHandler) ContactDiscovery(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	var req service.ContactDiscoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.discovery.DiscoverContacts(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

// EmailPersonalization handles email-personalization.
func (h *FunctionsHandler) EmailPersonalization(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	var req service.EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.personalization.Personalize(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

// CompanyAnalyzer handles company-analyzer.
func (h *FunctionsHandler) CompanyAnalyzer(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req service.AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.analyzer.Analyze(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *FunctionsHandler) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeJSON(w, h.logger, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return "", false
	}
	return userID, true
}

// generationBody puts the result under field and marks stored results with
// cached and their original updated_at.
func generationBody(field string, res *service.GenerationResult) map[string]any {
	body := map[string]any{field: res.Result}
	if res.Cached {
		body["cached"] = true
		body["updated_at"] = res.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return body
}
