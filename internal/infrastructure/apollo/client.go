// Package apollo is a minimal client for the Apollo.io search API.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/personaops/backend/internal/domain"
)

const maxPerPage = 100

// Client implements domain.LeadSource.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client; it fails when no API key is configured.
func NewClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("Apollo API key is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return "apollo" }

type organizationSearchRequest struct {
	Page          int      `json:"page"`
	PerPage       int      `json:"per_page"`
	EmployeeRange []string `json:"organization_num_employees_ranges,omitempty"`
	Locations     []string `json:"organization_locations,omitempty"`
	KeywordTags   []string `json:"q_organization_keyword_tags,omitempty"`
}

type organization struct {
	Name                  string `json:"name"`
	PrimaryDomain         string `json:"primary_domain"`
	WebsiteURL            string `json:"website_url"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	Country               string `json:"country"`
	LinkedInURL           string `json:"linkedin_url"`
	ShortDescription      string `json:"short_description"`
}

type organizationSearchResponse struct {
	Organizations []organization `json:"organizations"`
	Accounts      []organization `json:"accounts"`
}

// SearchOrganizations runs mixed_companies/search.
func (c *Client) SearchOrganizations(ctx context.Context, q domain.OrganizationQuery) ([]domain.Company, error) {
	req := organizationSearchRequest{
		Page:      max(q.Page, 1),
		PerPage:   clampPerPage(q.PerPage),
		Locations: q.Locations,
	}
	req.KeywordTags = append(append([]string{}, q.Industries...), q.Keywords...)
	if q.EmployeeMin > 0 || q.EmployeeMax > 0 {
		hi := q.EmployeeMax
		if hi <= 0 {
			hi = 1000000
		}
		req.EmployeeRange = []string{fmt.Sprintf("%d,%d", max(q.EmployeeMin, 1), hi)}
	}

	var resp organizationSearchResponse
	if err := c.post(ctx, "/mixed_companies/search", req, &resp); err != nil {
		return nil, err
	}

	orgs := append(resp.Accounts, resp.Organizations...)
	out := make([]domain.Company, 0, len(orgs))
	for _, o := range orgs {
		domainName := o.PrimaryDomain
		if domainName == "" {
			domainName = hostFromURL(o.WebsiteURL)
		}
		out = append(out, domain.Company{
			Name:          o.Name,
			Domain:        domainName,
			Industry:      o.Industry,
			EmployeeCount: o.EstimatedNumEmployees,
			Location:      joinNonEmpty(", ", o.City, o.State, o.Country),
			Description:   o.ShortDescription,
			LinkedInURL:   o.LinkedInURL,
		})
	}
	return out, nil
}

type peopleSearchRequest struct {
	Page          int      `json:"page"`
	PerPage       int      `json:"per_page"`
	Domains       []string `json:"q_organization_domains_list,omitempty"`
	Keywords      string   `json:"q_keywords,omitempty"`
	PersonTitles  []string `json:"person_titles,omitempty"`
	ContactStatus []string `json:"contact_email_status,omitempty"`
}

type person struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Title        string `json:"title"`
	Email        string `json:"email"`
	Seniority    string `json:"seniority"`
	LinkedInURL  string `json:"linkedin_url"`
	Organization struct {
		Name          string `json:"name"`
		PrimaryDomain string `json:"primary_domain"`
	} `json:"organization"`
}

type peopleSearchResponse struct {
	People   []person `json:"people"`
	Contacts []person `json:"contacts"`
}

// SearchPeople runs mixed_people/search.
func (c *Client) SearchPeople(ctx context.Context, q domain.PeopleQuery) ([]domain.Contact, error) {
	req := peopleSearchRequest{
		Page:         max(q.Page, 1),
		PerPage:      clampPerPage(q.PerPage),
		PersonTitles: q.Titles,
	}
	if q.CompanyDomain != "" {
		req.Domains = []string{q.CompanyDomain}
	} else {
		req.Keywords = q.CompanyName
	}

	var resp peopleSearchResponse
	if err := c.post(ctx, "/mixed_people/search", req, &resp); err != nil {
		return nil, err
	}

	people := append(resp.Contacts, resp.People...)
	out := make([]domain.Contact, 0, len(people))
	for _, p := range people {
		companyName := p.Organization.Name
		if companyName == "" {
			companyName = q.CompanyName
		}
		companyDomain := p.Organization.PrimaryDomain
		if companyDomain == "" {
			companyDomain = q.CompanyDomain
		}
		out = append(out, domain.Contact{
			FirstName:     p.FirstName,
			LastName:      p.LastName,
			Title:         p.Title,
			Email:         p.Email,
			Seniority:     p.Seniority,
			CompanyName:   companyName,
			CompanyDomain: companyDomain,
			LinkedInURL:   p.LinkedInURL,
		})
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode apollo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build apollo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: apollo %s: %w", domain.ErrUpstreamProvider, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: apollo %s returned %d: %s", domain.ErrUpstreamProvider, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode apollo %s: %w", domain.ErrUpstreamProvider, path, err)
	}
	return nil
}

func clampPerPage(n int) int {
	if n <= 0 {
		return 10
	}
	return min(n, maxPerPage)
}

func hostFromURL(raw string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
