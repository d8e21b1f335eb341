package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/personaops/backend/internal/demo"
	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/reliability/circuitbreaker"
)

// ICPService serves icp-generator.
type ICPService struct {
	gen     *cachedGeneration[domain.ICPKey]
	llm     domain.LLM
	breaker *circuitbreaker.CircuitBreaker
	catalog *demo.Catalog
}

// NewICPService wires the generator. llm may be nil, in which case results
// come from the demo catalog.
func NewICPService(repo domain.ICPAnalysisRepository, llm domain.LLM, breaker *circuitbreaker.CircuitBreaker, catalog *demo.Catalog, logger *slog.Logger) *ICPService {
	return &ICPService{
		gen:     newCachedGeneration("icp-generator", repo, logger),
		llm:     llm,
		breaker: breaker,
		catalog: catalog,
	}
}

// Generate returns the ICP for (userID, websiteURL), generating it on a miss.
func (s *ICPService) Generate(ctx context.Context, userID, websiteURL string) (*GenerationResult, error) {
	if strings.TrimSpace(websiteURL) == "" {
		return nil, domain.Required("websiteUrl")
	}
	key := domain.ICPKey{UserID: userID, WebsiteURL: websiteURL}
	flight := userID + "\x00" + websiteURL

	return s.gen.run(ctx, key, flight, func(ctx context.Context) (json.RawMessage, error) {
		if s.llm == nil {
			return demo.ICP(s.catalog, websiteURL), nil
		}
		return callProvider(ctx, s.breaker, s.llm.Name(), func(ctx context.Context) (json.RawMessage, error) {
			return completeObject(ctx, s.llm, jsonOnlySystem, buildICPPrompt(websiteURL))
		})
	})
}
