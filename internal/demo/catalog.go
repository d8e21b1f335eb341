// Package demo holds the fixed placeholder data served when no provider key
// is configured, and the deterministic generators that turn it into
// plausible companies, contacts, emails, ICPs and playbooks.
package demo

// SimilarCompany is a reference customer used in demo ICPs.
type SimilarCompany struct {
	Name     string
	Domain   string
	Industry string
	Reason   string
}

// MarketIntelligence is the canned market summary attached to demo ICPs.
type MarketIntelligence struct {
	MarketSize     string
	GrowthRate     string
	KeyTrends      []string
	Competitors    []string
	BuyingTriggers []string
}

// Catalog is the read-only demo data set. Build one with Default and pass it
// by pointer; nothing in this package mutates it.
type Catalog struct {
	Industries         []string
	NamePrefixes       []string
	NameSuffixes       []string
	Locations          []string
	Titles             []string
	Seniorities        []string
	FirstNames         []string
	LastNames          []string
	PainPoints         []string
	SimilarCompanies   []SimilarCompany
	MarketIntelligence MarketIntelligence
}

// Default returns a fresh copy of the standard demo catalog.
func Default() *Catalog {
	return &Catalog{
		Industries:   []string{"SaaS", "Fintech", "Healthcare", "E-commerce", "EdTech"},
		NamePrefixes: []string{"Nova", "Bright", "Quantum", "Apex", "Blue", "Summit", "Vertex", "Lumen", "Cobalt", "Harbor"},
		NameSuffixes: []string{"Labs", "Systems", "Analytics", "Cloud", "Health", "Pay", "Learning", "Commerce", "Works", "AI"},
		Locations:    []string{"San Francisco, CA", "New York, NY", "Austin, TX", "Boston, MA", "Seattle, WA", "Denver, CO", "Chicago, IL", "London, UK"},
		Titles:       []string{"VP of Sales", "Head of Growth", "Chief Revenue Officer", "Director of Marketing", "Head of Operations", "VP of Engineering"},
		Seniorities:  []string{"vp", "head", "c_suite", "director", "head", "vp"},
		FirstNames:   []string{"Alex", "Jordan", "Taylor", "Morgan", "Casey", "Riley", "Jamie", "Avery", "Quinn", "Parker"},
		LastNames:    []string{"Chen", "Patel", "Garcia", "Kim", "Nguyen", "Smith", "Johnson", "Lopez", "Brown", "Davis"},
		PainPoints: []string{
			"Manual prospect research slows pipeline growth",
			"Low reply rates on generic outbound sequences",
			"Poor visibility into which segments convert",
			"Sales and marketing disagree on the target account list",
		},
		SimilarCompanies: []SimilarCompany{
			{Name: "Acme Analytics", Domain: "acmeanalytics.com", Industry: "SaaS", Reason: "Similar ACV and buying committee"},
			{Name: "LedgerLoop", Domain: "ledgerloop.io", Industry: "Fintech", Reason: "Same mid-market expansion motion"},
			{Name: "CareBridge", Domain: "carebridge.health", Industry: "Healthcare", Reason: "Comparable compliance-heavy sales cycle"},
			{Name: "ShopSprout", Domain: "shopsprout.com", Industry: "E-commerce", Reason: "High-velocity SMB funnel"},
			{Name: "LearnLoop", Domain: "learnloop.edu", Industry: "EdTech", Reason: "Seat-based pricing with district buyers"},
		},
		MarketIntelligence: MarketIntelligence{
			MarketSize:     "$4.2B",
			GrowthRate:     "14% CAGR",
			KeyTrends:      []string{"AI-assisted prospecting", "Consolidation of sales tooling", "Intent-data driven outbound"},
			Competitors:    []string{"ZoomInfo", "Clay", "Apollo"},
			BuyingTriggers: []string{"New sales leadership", "Recent funding round", "Headcount growth in revenue teams"},
		},
	}
}

// HasIndustry reports whether industry is part of the demo list.
func (c *Catalog) HasIndustry(industry string) bool {
	for _, i := range c.Industries {
		if i == industry {
			return true
		}
	}
	return false
}
