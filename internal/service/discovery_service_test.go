package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/personaops/backend/internal/demo"
	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/reliability/circuitbreaker"
)

func TestDiscoverCompaniesWithoutKeyServesBatch(t *testing.T) {
	catalog := demo.Default()
	svc := NewDiscoveryService(nil, nil, catalog, nil, testLogger())

	for _, size := range []int{1, 7, 25} {
		res, err := svc.DiscoverCompanies(context.Background(), CompanyDiscoveryRequest{BatchSize: size})
		if err != nil {
			t.Fatalf("DiscoverCompanies(%d) error = %v", size, err)
		}
		if res.Source != SourceDemo {
			t.Fatalf("source = %q, want demo", res.Source)
		}
		if len(res.Companies) != size || res.Total != size {
			t.Fatalf("got %d companies (total %d), want %d", len(res.Companies), res.Total, size)
		}
		for _, c := range res.Companies {
			if !catalog.HasIndustry(c.Industry) {
				t.Fatalf("industry %q is not in the catalog", c.Industry)
			}
		}
	}
}

func TestDiscoverCompaniesDefaultBatch(t *testing.T) {
	svc := NewDiscoveryService(nil, nil, demo.Default(), nil, testLogger())
	res, err := svc.DiscoverCompanies(context.Background(), CompanyDiscoveryRequest{})
	if err != nil {
		t.Fatalf("DiscoverCompanies() error = %v", err)
	}
	if len(res.Companies) != defaultBatchSize {
		t.Fatalf("got %d companies, want %d", len(res.Companies), defaultBatchSize)
	}
}

func TestDiscoverCompaniesUsesICPIndustries(t *testing.T) {
	src := &fakeLeadSource{companies: []domain.Company{{Name: "Acme", Industry: "Fintech"}}}
	svc := NewDiscoveryService(src, nil, demo.Default(), nil, testLogger())

	icp := json.RawMessage(`{"firmographics":{"industries":["Fintech","Healthcare"]}}`)
	res, err := svc.DiscoverCompanies(context.Background(), CompanyDiscoveryRequest{ICP: icp, BatchSize: 5})
	if err != nil {
		t.Fatalf("DiscoverCompanies() error = %v", err)
	}
	if res.Source != SourceApollo {
		t.Fatalf("source = %q, want apollo", res.Source)
	}
	if diff := cmp.Diff([]string{"Fintech", "Healthcare"}, src.lastOrg.Industries); diff != "" {
		t.Fatalf("industries mismatch (-want +got):\n%s", diff)
	}
	if src.lastOrg.PerPage != 5 {
		t.Fatalf("per page = %d, want 5", src.lastOrg.PerPage)
	}
}

func TestDiscoverCompaniesTruncatesProviderResults(t *testing.T) {
	src := &fakeLeadSource{companies: make([]domain.Company, 12)}
	svc := NewDiscoveryService(src, nil, demo.Default(), nil, testLogger())

	res, err := svc.DiscoverCompanies(context.Background(), CompanyDiscoveryRequest{BatchSize: 4})
	if err != nil {
		t.Fatalf("DiscoverCompanies() error = %v", err)
	}
	if len(res.Companies) != 4 {
		t.Fatalf("got %d companies, want 4", len(res.Companies))
	}
}

func TestDiscoverCompaniesFallsBack(t *testing.T) {
	tests := []struct {
		name      string
		src       *fakeLeadSource
		forceDemo bool
	}{
		{"provider error", &fakeLeadSource{err: errBoom}, false},
		{"empty results", &fakeLeadSource{}, false},
		{"forced demo", &fakeLeadSource{companies: []domain.Company{{Name: "Real"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewDiscoveryService(tt.src, nil, demo.Default(), func() bool { return tt.forceDemo }, testLogger())
			res, err := svc.DiscoverCompanies(context.Background(), CompanyDiscoveryRequest{BatchSize: 3})
			if err != nil {
				t.Fatalf("DiscoverCompanies() error = %v", err)
			}
			if res.Source != SourceDemo || len(res.Companies) != 3 {
				t.Fatalf("got %d companies from %q, want 3 from demo", len(res.Companies), res.Source)
			}
			if tt.forceDemo && tt.src.calls != 0 {
				t.Fatal("forced demo should not call the provider")
			}
		})
	}
}

func TestDiscoverCompaniesOpenBreakerSkipsProvider(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker(SourceApollo, 2, 1, time.Hour)
	src := &fakeLeadSource{err: errBoom}
	svc := NewDiscoveryService(src, cb, demo.Default(), nil, testLogger())
	ctx := context.Background()

	for range 4 {
		if _, err := svc.DiscoverCompanies(ctx, CompanyDiscoveryRequest{BatchSize: 2}); err != nil {
			t.Fatalf("DiscoverCompanies() error = %v", err)
		}
	}
	if src.calls != 2 {
		t.Fatalf("provider calls = %d, want 2 before the breaker opened", src.calls)
	}
}

func TestDiscoverCompaniesCancelledContext(t *testing.T) {
	src := &fakeLeadSource{err: context.Canceled}
	svc := NewDiscoveryService(src, nil, demo.Default(), nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.DiscoverCompanies(ctx, CompanyDiscoveryRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestDiscoverContacts(t *testing.T) {
	svc := NewDiscoveryService(nil, nil, demo.Default(), nil, testLogger())

	if _, err := svc.DiscoverContacts(context.Background(), ContactDiscoveryRequest{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want validation error", err)
	}

	res, err := svc.DiscoverContacts(context.Background(), ContactDiscoveryRequest{CompanyName: "Acme", CompanyDomain: "acme.io", BatchSize: 4})
	if err != nil {
		t.Fatalf("DiscoverContacts() error = %v", err)
	}
	if res.Source != SourceDemo || len(res.Contacts) != 4 {
		t.Fatalf("got %d contacts from %q, want 4 from demo", len(res.Contacts), res.Source)
	}
	for _, c := range res.Contacts {
		if c.CompanyName != "Acme" {
			t.Fatalf("contact company = %q, want Acme", c.CompanyName)
		}
	}
}

func TestDiscoverContactsFromProvider(t *testing.T) {
	src := &fakeLeadSource{contacts: []domain.Contact{{FirstName: "Ada", CompanyName: "Acme"}}}
	svc := NewDiscoveryService(src, nil, demo.Default(), nil, testLogger())

	res, err := svc.DiscoverContacts(context.Background(), ContactDiscoveryRequest{CompanyDomain: "acme.io"})
	if err != nil {
		t.Fatalf("DiscoverContacts() error = %v", err)
	}
	if res.Source != SourceApollo || res.Total != 1 {
		t.Fatalf("got %+v, want one apollo contact", res)
	}
}
