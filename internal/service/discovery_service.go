package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/personaops/backend/internal/demo"
	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/observability/metrics"
	"github.com/personaops/backend/internal/reliability/circuitbreaker"
)

// Response sources.
const (
	SourceApollo     = "apollo"
	SourceOpenRouter = "openrouter"
	SourceDemo       = "demo"
)

const (
	defaultBatchSize = 10
	maxBatchSize     = 100
)

// CompanyDiscoveryRequest is the company-discovery body.
type CompanyDiscoveryRequest struct {
	ICP        json.RawMessage `json:"icp,omitempty"`
	BatchSize  int             `json:"batchSize"`
	Industries []string        `json:"industries,omitempty"`
	Locations  []string        `json:"locations,omitempty"`
	Keywords   []string        `json:"keywords,omitempty"`
	Page       int             `json:"page,omitempty"`
}

// CompanyDiscoveryResult is the company-discovery response.
type CompanyDiscoveryResult struct {
	Companies []domain.Company `json:"companies"`
	Total     int              `json:"total"`
	Source    string           `json:"source"`
}

// ContactDiscoveryRequest is the contact-discovery body.
type ContactDiscoveryRequest struct {
	CompanyDomain string   `json:"companyDomain,omitempty"`
	CompanyName   string   `json:"companyName,omitempty"`
	Titles        []string `json:"titles,omitempty"`
	BatchSize     int      `json:"batchSize"`
}

// ContactDiscoveryResult is the contact-discovery response.
type ContactDiscoveryResult struct {
	Contacts []domain.Contact `json:"contacts"`
	Total    int              `json:"total"`
	Source   string           `json:"source"`
}

// DiscoveryService serves company-discovery and contact-discovery. Any
// provider problem degrades to demo data instead of failing the request.
type DiscoveryService struct {
	source    domain.LeadSource
	breaker   *circuitbreaker.CircuitBreaker
	catalog   *demo.Catalog
	forceDemo func() bool
	logger    *slog.Logger
}

// NewDiscoveryService wires discovery. source may be nil when no Apollo key
// is configured. forceDemo may be nil.
func NewDiscoveryService(source domain.LeadSource, breaker *circuitbreaker.CircuitBreaker, catalog *demo.Catalog, forceDemo func() bool, logger *slog.Logger) *DiscoveryService {
	if forceDemo == nil {
		forceDemo = func() bool { return false }
	}
	return &DiscoveryService{
		source:    source,
		breaker:   breaker,
		catalog:   catalog,
		forceDemo: forceDemo,
		logger:    logger,
	}
}

// DiscoverCompanies returns up to BatchSize companies from Apollo, or exactly
// BatchSize demo companies when Apollo is unavailable.
func (s *DiscoveryService) DiscoverCompanies(ctx context.Context, req CompanyDiscoveryRequest) (*CompanyDiscoveryResult, error) {
	n := clampBatch(req.BatchSize)
	industries := req.Industries
	if len(industries) == 0 {
		industries = industriesFromICP(req.ICP)
	}

	if reason := s.skipReason(); reason == "" {
		companies, err := callProvider(ctx, s.breaker, SourceApollo, func(ctx context.Context) ([]domain.Company, error) {
			return s.source.SearchOrganizations(ctx, domain.OrganizationQuery{
				Industries: industries,
				Locations:  req.Locations,
				Keywords:   req.Keywords,
				Page:       req.Page,
				PerPage:    n,
			})
		})
		switch {
		case err == nil && len(companies) > 0:
			if len(companies) > n {
				companies = companies[:n]
			}
			return &CompanyDiscoveryResult{Companies: companies, Total: len(companies), Source: SourceApollo}, nil
		case err == nil:
			s.fallback(ctx, "company-discovery", "empty", nil)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			s.fallback(ctx, "company-discovery", reasonFor(err), err)
		}
	} else {
		s.fallback(ctx, "company-discovery", reason, nil)
	}

	seed := fmt.Sprintf("%s|%v|%v|%v|%d", req.ICP, industries, req.Locations, req.Keywords, req.Page)
	companies := demo.Companies(s.catalog, industries, seed, n)
	return &CompanyDiscoveryResult{Companies: companies, Total: len(companies), Source: SourceDemo}, nil
}

// DiscoverContacts returns people at one company, falling back to demo contacts.
func (s *DiscoveryService) DiscoverContacts(ctx context.Context, req ContactDiscoveryRequest) (*ContactDiscoveryResult, error) {
	if strings.TrimSpace(req.CompanyDomain) == "" && strings.TrimSpace(req.CompanyName) == "" {
		return nil, &domain.ValidationError{Field: "companyDomain", Message: "companyDomain or companyName is required"}
	}
	n := clampBatch(req.BatchSize)

	if reason := s.skipReason(); reason == "" {
		contacts, err := callProvider(ctx, s.breaker, SourceApollo, func(ctx context.Context) ([]domain.Contact, error) {
			return s.source.SearchPeople(ctx, domain.PeopleQuery{
				CompanyDomain: req.CompanyDomain,
				CompanyName:   req.CompanyName,
				Titles:        req.Titles,
				PerPage:       n,
			})
		})
		switch {
		case err == nil && len(contacts) > 0:
			if len(contacts) > n {
				contacts = contacts[:n]
			}
			return &ContactDiscoveryResult{Contacts: contacts, Total: len(contacts), Source: SourceApollo}, nil
		case err == nil:
			s.fallback(ctx, "contact-discovery", "empty", nil)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			s.fallback(ctx, "contact-discovery", reasonFor(err), err)
		}
	} else {
		s.fallback(ctx, "contact-discovery", reason, nil)
	}

	contacts := demo.Contacts(s.catalog, req.CompanyName, req.CompanyDomain, req.Titles, n)
	return &ContactDiscoveryResult{Contacts: contacts, Total: len(contacts), Source: SourceDemo}, nil
}

func (s *DiscoveryService) skipReason() string {
	switch {
	case s.source == nil:
		return "no_key"
	case s.forceDemo():
		return "forced"
	default:
		return ""
	}
}

func (s *DiscoveryService) fallback(ctx context.Context, function, reason string, err error) {
	metrics.ObserveDemoFallback(function, reason)
	attrs := []any{slog.String("function", function), slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		s.logger.WarnContext(ctx, "provider failed, serving demo data", attrs...)
		return
	}
	s.logger.DebugContext(ctx, "serving demo data", attrs...)
}

func reasonFor(err error) string {
	if errors.Is(err, errBreakerOpen) {
		return "breaker_open"
	}
	return "provider_error"
}

func clampBatch(n int) int {
	if n <= 0 {
		return defaultBatchSize
	}
	return min(n, maxBatchSize)
}

// industriesFromICP reads firmographics.industries from a generated ICP.
func industriesFromICP(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var icp struct {
		Firmographics struct {
			Industries []string `json:"industries"`
		} `json:"firmographics"`
	}
	if err := json.Unmarshal(raw, &icp); err != nil {
		return nil
	}
	return icp.Firmographics.Industries
}
