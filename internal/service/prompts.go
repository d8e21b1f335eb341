package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const jsonOnlySystem = `You are a senior B2B go-to-market strategist. Respond with a single JSON object and nothing else. Do not wrap it in markdown.`

const icpPrompt = `Research the company whose website is %s and produce its Ideal Customer Profile.

Return JSON with these fields:
- company: the company name
- summary: two sentences on who buys from this company and why
- firmographics: { industries: [string], employeeRange: string, revenueRange: string, regions: [string] }
- personas: [{ title: string, goals: [string], painPoints: [string] }] (2 to 4 entries)
- similarCompanies: [{ name, domain, industry, reason }] (3 entries)
- marketIntelligence: { marketSize, growthRate, keyTrends: [string], competitors: [string], buyingTriggers: [string] }`

const playbookPrompt = `Build a go-to-market playbook for the company at %s.

Ideal Customer Profile:
%s

GTM inputs from the user:
%s

Return JSON with these fields:
- positioning: one paragraph
- channels: [{ channel, cadence }]
- sequence: [{ day: number, channel, goal }] covering at least 14 days
- objections: [{ objection, response }]
- kpis: [string]`

const emailSystem = `You write short, specific cold outreach emails for B2B sales teams. Respond with a JSON object {"subject": string, "body": string} and nothing else.`

const emailPrompt = `Write a %s outreach email.

Recipient: %s %s, %s at %s.
Sender: %s%s.
Value proposition: %s

Keep the body under 120 words, mention %s by name, and end with a single clear call to action.`

const analyzerPrompt = `Analyze the company %s (website: %s) as a potential customer.

Return JSON with these fields:
- companyName
- overview: short paragraph
- products: [string]
- targetMarket: string
- techStack: [string]
- recentSignals: [string]
- fitScore: number from 0 to 100
- fitRationale: string
- suggestedApproach: string`

func buildICPPrompt(websiteURL string) string {
	return fmt.Sprintf(icpPrompt, websiteURL)
}

func buildPlaybookPrompt(websiteURL string, icp, gtmForm json.RawMessage) string {
	return fmt.Sprintf(playbookPrompt, websiteURL, indentJSON(icp), indentJSON(gtmForm))
}

func buildEmailPrompt(in EmailRequest) string {
	tone := in.Tone
	if tone == "" {
		tone = "friendly, professional"
	}
	sender := in.Sender.Name
	if sender == "" {
		sender = "the sender"
	}
	senderCompany := ""
	if in.Sender.Company != "" {
		senderCompany = " from " + in.Sender.Company
	}
	value := in.ValueProposition
	if value == "" {
		value = "not provided; infer a relevant benefit from the recipient's role"
	}
	return fmt.Sprintf(emailPrompt, tone,
		in.Contact.FirstName, in.Contact.LastName, orDefault(in.Contact.Title, "a leader"), in.Contact.CompanyName,
		sender, senderCompany, value, in.Contact.CompanyName)
}

func buildAnalyzerPrompt(companyName, websiteURL string) string {
	if companyName == "" {
		companyName = "at " + websiteURL
	}
	return fmt.Sprintf(analyzerPrompt, companyName, websiteURL)
}

func indentJSON(raw json.RawMessage) string {
	var b bytes.Buffer
	if err := json.Indent(&b, raw, "", "  "); err != nil {
		return string(raw)
	}
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
