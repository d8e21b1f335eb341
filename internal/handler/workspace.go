package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/security/auth"
	"github.com/personaops/backend/internal/service"
)

// ProfileStore loads and edits the caller's profile.
type ProfileStore interface {
	Session(ctx context.Context, userID, email string) (*domain.Profile, error)
	Update(ctx context.Context, userID, email string, upd service.ProfileUpdate) (*domain.Profile, error)
}

// ICPLibrary stores saved ICPs.
type ICPLibrary interface {
	Save(ctx context.Context, userID string, req service.SaveICPRequest) (*domain.ICP, error)
	List(ctx context.Context, userID string) ([]*domain.ICP, error)
}

// OutputLister lists analyzer outputs.
type OutputLister interface {
	ListOutputs(ctx context.Context, userID string, limit int) ([]*domain.AnalyzerOutput, error)
}

// Inviter records invitations.
type Inviter interface {
	Invite(ctx context.Context, inviterID, inviterEmail, email string) (*service.InvitationResult, error)
}

// CRMSummarizer aggregates synced deals.
type CRMSummarizer interface {
	Summary(ctx context.Context, userID string) (*service.CRMSummary, error)
}

// ReportStore stores dashboard snapshots.
type ReportStore interface {
	Save(ctx context.Context, userID string, req service.SaveReportRequest) (*domain.SavedReport, error)
	List(ctx context.Context, userID string) ([]*domain.SavedReport, error)
}

// Backfiller links analyzer outputs to their ICPs.
type Backfiller interface {
	RunOnce(ctx context.Context, source string) (int64, error)
}

// WorkspaceServices groups the table-backed /api routes' dependencies.
type WorkspaceServices struct {
	Profiles    ProfileStore
	ICPs        ICPLibrary
	Outputs     OutputLister
	Invitations Inviter
	CRM         CRMSummarizer
	Reports     ReportStore
	Backfill    Backfiller
}

// WorkspaceHandler serves the /api routes read from and written to tables
// directly.
type WorkspaceHandler struct {
	svc    WorkspaceServices
	logger *slog.Logger
}

// NewWorkspaceHandler creates a new workspace handler
func NewWorkspaceHandler(svc WorkspaceServices, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{svc: svc, logger: logger}
}

// GetProfile handles GET /api/profile, creating the row on first load.
func (h *WorkspaceHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}
	p, err := h.svc.Profiles.Session(r.Context(), claims.Subject, claims.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, p)
}

// UpdateProfile handles PUT /api/profile.
func (h *WorkspaceHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}
	var upd service.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.svc.Profiles.Update(r.Context(), claims.Subject, claims.Email, upd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, p)
}

// ListICPs handles GET /api/icps.
func (h *WorkspaceHandler) ListICPs(w http.ResponseWriter, r *http.Request) {
	icps, err := h.svc.ICPs.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"icps": icps})
}

// SaveICP handles POST /api/icps.
func (h *WorkspaceHandler) SaveICP(w http.ResponseWriter, r *http.Request) {
	var req service.SaveICPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	icp, err := h.svc.ICPs.Save(r.Context(), auth.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, icp)
}

// ListAnalyzerOutputs handles GET /api/company-analyzer/outputs?limit=n.
func (h *WorkspaceHandler) ListAnalyzerOutputs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, h.logger, &domain.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = n
	}
	outputs, err := h.svc.Outputs.ListOutputs(r.Context(), auth.UserIDFromContext(r.Context()), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"outputs": outputs})
}

type invitationRequest struct {
	Email string `json:"email"`
}

// Invite handles POST /api/invitations.
func (h *WorkspaceHandler) Invite(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}
	var req invitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.svc.Invitations.Invite(r.Context(), claims.Subject, claims.Email, req.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, res)
}

// CRMSummary handles GET /api/crm/summary.
func (h *WorkspaceHandler) CRMSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.CRM.Summary(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sum)
}

// ListReports handles GET /api/reports.
func (h *WorkspaceHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.Reports.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"reports": reports})
}

// SaveReport handles POST /api/reports.
func (h *WorkspaceHandler) SaveReport(w http.ResponseWriter, r *http.Request) {
	var req service.SaveReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rep, err := h.svc.Reports.Save(r.Context(), auth.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, rep)
}

// BackfillICPIDs handles POST /api/admin/backfill-icp-ids (service role only).
func (h *WorkspaceHandler) BackfillICPIDs(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Backfill.RunOnce(r.Context(), "api")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]int64{"updated": n})
}
