package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/personaops/backend/internal/demo"
	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/reliability/circuitbreaker"
)

// PlaybookService serves playbook-generator.
type PlaybookService struct {
	gen     *cachedGeneration[domain.PlaybookKey]
	llm     domain.LLM
	breaker *circuitbreaker.CircuitBreaker
	catalog *demo.Catalog
}

// NewPlaybookService wires the generator. llm may be nil.
func NewPlaybookService(repo domain.PlaybookAnalysisRepository, llm domain.LLM, breaker *circuitbreaker.CircuitBreaker, catalog *demo.Catalog, logger *slog.Logger) *PlaybookService {
	return &PlaybookService{
		gen:     newCachedGeneration("playbook-generator", repo, logger),
		llm:     llm,
		breaker: breaker,
		catalog: catalog,
	}
}

// Generate returns the playbook for the exact (user, website, icp, gtmForm)
// tuple. icp and gtmForm are compacted but otherwise keyed verbatim.
func (s *PlaybookService) Generate(ctx context.Context, userID, websiteURL string, icp, gtmForm json.RawMessage) (*GenerationResult, error) {
	if strings.TrimSpace(websiteURL) == "" {
		return nil, domain.Required("websiteUrl")
	}
	icpKey, err := compactJSON("icp", icp)
	if err != nil {
		return nil, err
	}
	gtmKey, err := compactJSON("gtmForm", gtmForm)
	if err != nil {
		return nil, err
	}

	key := domain.PlaybookKey{UserID: userID, WebsiteURL: websiteURL, ICP: icpKey, GTMForm: gtmKey}
	flight := userID + "\x00" + websiteURL + "\x00" + key.CacheKey()

	return s.gen.run(ctx, key, flight, func(ctx context.Context) (json.RawMessage, error) {
		if s.llm == nil {
			return demo.Playbook(s.catalog, websiteURL, icpKey, gtmKey), nil
		}
		return callProvider(ctx, s.breaker, s.llm.Name(), func(ctx context.Context) (json.RawMessage, error) {
			return completeObject(ctx, s.llm, jsonOnlySystem, buildPlaybookPrompt(websiteURL, icpKey, gtmKey))
		})
	})
}

// compactJSON strips insignificant whitespace. JSON null and absent values
// count as missing.
func compactJSON(field string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, domain.Required(field)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, &domain.ValidationError{Field: field, Message: "must be valid JSON"}
	}
	return buf.Bytes(), nil
}
