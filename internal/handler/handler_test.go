package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/infrastructure/logger"
	"github.com/personaops/backend/internal/security/auth"
)

const testSecret = "test-jwt-secret"

type memCache[K comparable] struct {
	mu   sync.Mutex
	rows map[K]*domain.CachedResult
}

func newMemCache[K comparable]() *memCache[K] {
	return &memCache[K]{rows: map[K]*domain.CachedResult{}}
}

func (m *memCache[K]) Lookup(_ context.Context, k K) (*domain.CachedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[k]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memCache[K]) InsertIfAbsent(_ context.Context, k K, result json.RawMessage) (*domain.CachedResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[k]; ok {
		return r, false, nil
	}
	r := &domain.CachedResult{Result: result, UpdatedAt: time.Now()}
	m.rows[k] = r
	return r, true, nil
}

type memPlaybooks struct{ inner *memCache[string] }

func (m memPlaybooks) key(k domain.PlaybookKey) string {
	return k.UserID + "|" + k.WebsiteURL + "|" + k.CacheKey()
}

func (m memPlaybooks) Lookup(ctx context.Context, k domain.PlaybookKey) (*domain.CachedResult, error) {
	return m.inner.Lookup(ctx, m.key(k))
}

func (m memPlaybooks) InsertIfAbsent(ctx context.Context, k domain.PlaybookKey, r json.RawMessage) (*domain.CachedResult, bool, error) {
	return m.inner.InsertIfAbsent(ctx, m.key(k), r)
}

type memOutputs struct {
	rows       []*domain.AnalyzerOutput
	backfilled int64
}

func (m *memOutputs) Create(_ context.Context, o *domain.AnalyzerOutput) error {
	o.ID = fmt.Sprintf("out-%d", len(m.rows)+1)
	m.rows = append(m.rows, o)
	return nil
}

func (m *memOutputs) ListByUser(_ context.Context, userID string, limit int) ([]*domain.AnalyzerOutput, error) {
	return m.rows, nil
}

func (m *memOutputs) BackfillICPIDs(context.Context) (int64, error) { return m.backfilled, nil }

type memSteps struct {
	mu    sync.Mutex
	steps []*domain.ResearchStep
}

func (m *memSteps) Append(_ context.Context, s *domain.ResearchStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.steps) + 1)
	m.steps = append(m.steps, s)
	return nil
}

func (m *memSteps) ListSince(_ context.Context, researchID, userID string, afterID int64) ([]*domain.ResearchStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ResearchStep
	for _, s := range m.steps {
		if s.ResearchID == researchID && s.UserID == userID && s.ID > afterID {
			out = append(out, s)
		}
	}
	return out, nil
}

func testVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(context.Background(), auth.VerifierConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.NewTokenManager(testSecret, "").GenerateToken(userID, userID+"@example.com", role, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return "Bearer " + tok
}

func do(t *testing.T, h http.Handler, method, path, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not a JSON object: %q", rec.Body.String())
	}
	return body
}

var testLog = logger.Discard()

func newExpiredToken() (string, error) {
	return auth.NewTokenManager(testSecret, "").GenerateToken("u1", "", "", -time.Hour)
}
