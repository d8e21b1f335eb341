package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Company is one organisation returned by company-discovery.
type Company struct {
	Name          string  `json:"name"`
	Domain        string  `json:"domain"`
	Industry      string  `json:"industry"`
	EmployeeCount int     `json:"employeeCount"`
	Location      string  `json:"location"`
	Description   string  `json:"description,omitempty"`
	LinkedInURL   string  `json:"linkedinUrl,omitempty"`
	MatchScore    float64 `json:"matchScore"`
}

// Contact is one person returned by contact-discovery.
type Contact struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Title         string `json:"title"`
	Email         string `json:"email,omitempty"`
	Seniority     string `json:"seniority,omitempty"`
	CompanyName   string `json:"companyName"`
	CompanyDomain string `json:"companyDomain,omitempty"`
	LinkedInURL   string `json:"linkedinUrl,omitempty"`
}

// Email is a drafted outbound email.
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// OrganizationQuery filters an organisation search.
type OrganizationQuery struct {
	Industries  []string
	Locations   []string
	Keywords    []string
	EmployeeMin int
	EmployeeMax int
	Page        int
	PerPage     int
}

// PeopleQuery filters a people search.
type PeopleQuery struct {
	CompanyDomain string
	CompanyName   string
	Titles        []string
	Page          int
	PerPage       int
}

// LeadSource is an external lead-data provider.
type LeadSource interface {
	SearchOrganizations(ctx context.Context, q OrganizationQuery) ([]Company, error)
	SearchPeople(ctx context.Context, q PeopleQuery) ([]Contact, error)
}

// LLM is an external text-generation provider.
type LLM interface {
	// Complete returns the raw assistant message.
	Complete(ctx context.Context, system, user string) (string, error)
	// CompleteJSON returns the assistant message parsed as a JSON object.
	CompleteJSON(ctx context.Context, system, user string) (json.RawMessage, error)
	Name() string
}

// AnalyzerOutput is one company_analyzer_outputs row.
type AnalyzerOutput struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	WebsiteURL  string          `json:"website_url"`
	CompanyName string          `json:"company_name"`
	ICPID       *string         `json:"icp_id"`
	LLMOutput   json.RawMessage `json:"llm_output"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AnalyzerOutputRepository defines data access for analyzer outputs
type AnalyzerOutputRepository interface {
	Create(ctx context.Context, out *AnalyzerOutput) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*AnalyzerOutput, error)
	// BackfillICPIDs links outputs with a null icp_id to the user's ICP for the
	// same website and returns the number of rows updated.
	BackfillICPIDs(ctx context.Context) (int64, error)
}
