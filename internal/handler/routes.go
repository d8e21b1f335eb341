package handler

import (
	"log/slog"
	"net/http"

	"github.com/personaops/backend/internal/security"
	"github.com/personaops/backend/internal/security/audit"
	"github.com/personaops/backend/internal/security/middleware"
	"github.com/personaops/backend/internal/security/ratelimit"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Functions *FunctionsHandler
	Proxy     *ProxyHandler
	Workspace *WorkspaceHandler
	Research  *ResearchStreamHandler
	Health    *HealthHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler

	Verifier middleware.TokenVerifier
	Authz    *security.AuthorizationService
	Audit    *audit.Logger
	// Limiter throttles function and workspace routes when set.
	Limiter ratelimit.Limiter
	Logger  *slog.Logger
}

// NewRouter registers every route on a fresh ServeMux.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	protected := func(h http.Handler, perm security.Permission, resource string, methods ...string) http.Handler {
		mws := []func(http.Handler) http.Handler{}
		if len(methods) > 0 {
			mws = append(mws, middleware.AllowMethods(methods...))
		}
		mws = append(mws,
			middleware.RequireAuth(cfg.Verifier, cfg.Audit, cfg.Logger),
			middleware.RequirePermission(cfg.Authz, perm, cfg.Audit),
		)
		if cfg.Limiter != nil {
			mws = append(mws, middleware.RateLimit(cfg.Limiter, cfg.Logger))
		}
		mws = append(mws,
			middleware.ValidateJSONContentType(cfg.Logger),
			middleware.Audit(cfg.Audit, resource),
		)
		return middleware.Chain(h, mws...)
	}

	// Ops
	if cfg.Health != nil {
		mux.HandleFunc("GET /healthz", cfg.Health.Health)
		mux.HandleFunc("GET /readyz", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	// Functions. Paths carry no method so AllowMethods answers 405 ahead of auth.
	if f := cfg.Functions; f != nil {
		fns := map[string]struct {
			h    http.HandlerFunc
			perm security.Permission
		}{
			"icp-generator":         {f.ICP, security.PermGenerate},
			"playbook-generator":    {f.Playbook, security.PermGenerate},
			"company-discovery":     {f.CompanyDiscovery, security.PermDiscover},
			"contact-discovery":     {f.ContactDiscovery, security.PermDiscover},
			"email-personalization": {f.EmailPersonalization, security.PermGenerate},
			"company-analyzer":      {f.CompanyAnalyzer, security.PermGenerate},
		}
		for name, fn := range fns {
			mux.Handle("/functions/v1/"+name, protected(fn.h, fn.perm, name, http.MethodPost))
		}
	}

	if cfg.Research != nil {
		mux.Handle("GET /ws/research/{id}", cfg.Research)
	}

	// API proxy layer.
	if p := cfg.Proxy; p != nil {
		for _, name := range ProxiedFunctions {
			mux.Handle("/api/"+name, middleware.MaxBodyBytes(maxBodyBytes)(p.Forward(name)))
		}
		mux.HandleFunc("/api/pipeline/", p.NotImplemented)
		mux.HandleFunc("/api/crm/sync", p.NotImplemented)
		mux.HandleFunc("/api/reports/export", p.NotImplemented)
		mux.HandleFunc("/api/", p.NotFound)
	}

	// Workspace. Same method-less registration as the functions so a wrong
	// method gets 405 instead of falling through to the /api/ catch-all.
	if ws := cfg.Workspace; ws != nil {
		manage := security.PermManageWorkspace
		get, put, post := http.MethodGet, http.MethodPut, http.MethodPost
		mux.Handle("/api/profile", protected(byMethod{get: ws.GetProfile, put: ws.UpdateProfile}, manage, "profile", get, put))
		mux.Handle("/api/icps", protected(byMethod{get: ws.ListICPs, post: ws.SaveICP}, manage, "icps", get, post))
		mux.Handle("/api/company-analyzer/outputs", protected(http.HandlerFunc(ws.ListAnalyzerOutputs), manage, "company_analyzer_outputs", get))
		mux.Handle("/api/invitations", protected(http.HandlerFunc(ws.Invite), manage, "invitations", post))
		mux.Handle("/api/crm/summary", protected(http.HandlerFunc(ws.CRMSummary), manage, "crm_deals", get))
		mux.Handle("/api/reports", protected(byMethod{get: ws.ListReports, post: ws.SaveReport}, manage, "saved_reports", get, post))
		mux.Handle("/api/admin/backfill-icp-ids", protected(http.HandlerFunc(ws.BackfillICPIDs), security.PermRunMaintenance, "icp_backfill", post))
	}

	return mux
}

// byMethod dispatches a path shared by several methods. AllowMethods runs
// first, so only registered methods reach it.
type byMethod map[string]http.HandlerFunc

func (m byMethod) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m[r.Method](w, r)
}
