package demo

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/personaops/backend/internal/domain"
)

// seed hashes the inputs so the same request always yields the same data.
func seed(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func pick(list []string, n uint64) string {
	if len(list) == 0 {
		return ""
	}
	return list[n%uint64(len(list))]
}

// Companies returns exactly n placeholder companies. Industries come only from
// the catalog list; when wanted names catalog industries the result cycles over
// those, otherwise over the full list.
func Companies(c *Catalog, wanted []string, seedText string, n int) []domain.Company {
	if n <= 0 {
		return []domain.Company{}
	}

	industries := make([]string, 0, len(c.Industries))
	for _, w := range wanted {
		if c.HasIndustry(w) {
			industries = append(industries, w)
		}
	}
	if len(industries) == 0 {
		industries = c.Industries
	}

	s := seed(seedText)
	out := make([]domain.Company, 0, n)
	for i := 0; i < n; i++ {
		k := s + uint64(i)*7919
		name := pick(c.NamePrefixes, k) + " " + pick(c.NameSuffixes, k/uint64(len(c.NamePrefixes)+1))
		if i >= len(c.NamePrefixes)*len(c.NameSuffixes) {
			name = fmt.Sprintf("%s %d", name, i)
		}
		industry := industries[i%len(industries)]
		out = append(out, domain.Company{
			Name:          name,
			Domain:        slug(name) + ".com",
			Industry:      industry,
			EmployeeCount: 50 + int(k%950),
			Location:      pick(c.Locations, k>>3),
			Description:   fmt.Sprintf("%s company focused on %s teams.", industry, strings.ToLower(pick(c.Titles, k>>5))),
			LinkedInURL:   "https://www.linkedin.com/company/" + slug(name),
			MatchScore:    float64(60+k%40) / 100,
		})
	}
	return out
}

// Contacts returns exactly n placeholder people at the given company.
func Contacts(c *Catalog, companyName, companyDomain string, titles []string, n int) []domain.Contact {
	if n <= 0 {
		return []domain.Contact{}
	}
	if companyName == "" {
		companyName = companyFromDomain(companyDomain)
	}
	if companyDomain == "" {
		companyDomain = slug(companyName) + ".com"
	}

	s := seed(companyName, companyDomain)
	out := make([]domain.Contact, 0, n)
	for i := 0; i < n; i++ {
		k := s + uint64(i)*104729
		first := pick(c.FirstNames, k)
		last := pick(c.LastNames, k>>4)
		title := pick(c.Titles, k>>8)
		seniority := pick(c.Seniorities, k>>8)
		if len(titles) > 0 {
			title = titles[i%len(titles)]
			seniority = ""
		}
		out = append(out, domain.Contact{
			FirstName:     first,
			LastName:      last,
			Title:         title,
			Email:         strings.ToLower(first+"."+last) + "@" + companyDomain,
			Seniority:     seniority,
			CompanyName:   companyName,
			CompanyDomain: companyDomain,
			LinkedInURL:   "https://www.linkedin.com/in/" + strings.ToLower(first+"-"+last),
		})
	}
	return out
}

// EmailInput is the data a template email is built from.
type EmailInput struct {
	Contact          domain.Contact
	SenderName       string
	SenderCompany    string
	ValueProposition string
}

// Email returns the template outreach email. The subject always names the
// contact's company.
func Email(in EmailInput) domain.Email {
	first := in.Contact.FirstName
	if first == "" {
		first = "there"
	}
	value := in.ValueProposition
	if value == "" {
		value = "help revenue teams find and engage their best-fit accounts faster"
	}
	sender := in.SenderName
	if sender == "" {
		sender = "The PersonaOps team"
	}
	signoff := sender
	if in.SenderCompany != "" {
		signoff += "\n" + in.SenderCompany
	}

	role := ""
	if in.Contact.Title != "" {
		role = " as " + in.Contact.Title
	}

	return domain.Email{
		Subject: fmt.Sprintf("Quick idea for %s", in.Contact.CompanyName),
		Body: fmt.Sprintf("Hi %s,\n\nI noticed your work%s at %s. We %s.\n\nWould you be open to a 15-minute call next week to see if it fits %s?\n\nBest,\n%s",
			first, role, in.Contact.CompanyName, value, in.Contact.CompanyName, signoff),
	}
}

// ICP returns a placeholder Ideal Customer Profile for websiteURL.
func ICP(c *Catalog, websiteURL string) json.RawMessage {
	s := seed(websiteURL)
	company := companyFromDomain(hostOf(websiteURL))
	primary := pick(c.Industries, s)
	secondary := pick(c.Industries, s+1)

	similar := make([]map[string]string, 0, 3)
	for i := 0; i < 3; i++ {
		sc := c.SimilarCompanies[(s+uint64(i))%uint64(len(c.SimilarCompanies))]
		similar = append(similar, map[string]string{
			"name": sc.Name, "domain": sc.Domain, "industry": sc.Industry, "reason": sc.Reason,
		})
	}

	icp := map[string]any{
		"company":    company,
		"websiteUrl": websiteURL,
		"summary":    fmt.Sprintf("%s sells best to growing %s and %s companies with an established revenue team.", company, primary, secondary),
		"firmographics": map[string]any{
			"industries":    []string{primary, secondary},
			"employeeRange": "50-1000",
			"revenueRange":  "$5M-$100M",
			"regions":       []string{"North America", "Western Europe"},
		},
		"personas": []map[string]any{
			{"title": pick(c.Titles, s), "goals": []string{"Grow qualified pipeline"}, "painPoints": []string{pick(c.PainPoints, s)}},
			{"title": pick(c.Titles, s+2), "goals": []string{"Improve conversion rates"}, "painPoints": []string{pick(c.PainPoints, s+1)}},
		},
		"similarCompanies": similar,
		"marketIntelligence": map[string]any{
			"marketSize":     c.MarketIntelligence.MarketSize,
			"growthRate":     c.MarketIntelligence.GrowthRate,
			"keyTrends":      c.MarketIntelligence.KeyTrends,
			"competitors":    c.MarketIntelligence.Competitors,
			"buyingTriggers": c.MarketIntelligence.BuyingTriggers,
		},
		"source": "demo",
	}
	return mustJSON(icp)
}

// Playbook returns a placeholder GTM playbook for the ICP and GTM form.
func Playbook(c *Catalog, websiteURL string, icp, gtmForm json.RawMessage) json.RawMessage {
	s := seed(websiteURL, string(icp), string(gtmForm))
	company := companyFromDomain(hostOf(websiteURL))
	persona := pick(c.Titles, s)

	playbook := map[string]any{
		"company":     company,
		"websiteUrl":  websiteURL,
		"positioning": fmt.Sprintf("%s helps %s teams remove busywork from prospecting.", company, strings.ToLower(pick(c.Industries, s))),
		"channels": []map[string]any{
			{"channel": "email", "cadence": "5 touches over 14 days"},
			{"channel": "linkedin", "cadence": "connect + 2 follow-ups"},
		},
		"sequence": []map[string]any{
			{"day": 1, "channel": "email", "goal": "Open with a relevant pain point for the " + persona},
			{"day": 3, "channel": "linkedin", "goal": "Connect referencing the first email"},
			{"day": 7, "channel": "email", "goal": "Share a short case study from a similar company"},
			{"day": 14, "channel": "email", "goal": "Break-up email with a clear call to action"},
		},
		"objections": []map[string]string{
			{"objection": "We already have a data provider", "response": "We complement it with ICP-level prioritisation."},
			{"objection": "No budget this quarter", "response": "Start with a pilot scoped to one segment."},
		},
		"kpis":   []string{"Reply rate", "Meetings booked", "Pipeline created"},
		"source": "demo",
	}
	return mustJSON(playbook)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("demo: marshal fixed data: %v", err))
	}
	return b
}

func hostOf(websiteURL string) string {
	raw := strings.TrimSpace(websiteURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return websiteURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func companyFromDomain(domainName string) string {
	base := domainName
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	if base == "" {
		return "Your Company"
	}
	r, size := utf8.DecodeRuneInString(base)
	return string(unicode.ToUpper(r)) + base[size:]
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
