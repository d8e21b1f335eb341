package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/personaops/backend/internal/domain"
)

type memAnalysisCache[K comparable] struct {
	mu        sync.Mutex
	rows      map[K]*domain.CachedResult
	lookups   atomic.Int32
	insertErr error
	// raced, when set, is stored by another writer just before our insert.
	raced json.RawMessage
}

func newMemAnalysisCache[K comparable]() *memAnalysisCache[K] {
	return &memAnalysisCache[K]{rows: map[K]*domain.CachedResult{}}
}

func (m *memAnalysisCache[K]) Lookup(_ context.Context, key K) (*domain.CachedResult, error) {
	m.lookups.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[key]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memAnalysisCache[K]) InsertIfAbsent(_ context.Context, key K, result json.RawMessage) (*domain.CachedResult, bool, error) {
	if m.insertErr != nil {
		return nil, false, m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raced != nil {
		m.rows[key] = &domain.CachedResult{Result: m.raced, UpdatedAt: time.Unix(100, 0)}
		m.raced = nil
	}
	if r, ok := m.rows[key]; ok {
		return r, false, nil
	}
	r := &domain.CachedResult{Result: result, UpdatedAt: time.Now()}
	m.rows[key] = r
	return r, true, nil
}

func (m *memAnalysisCache[K]) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// playbookCache adapts memAnalysisCache to PlaybookKey, whose raw JSON
// fields are not comparable.
type playbookCache struct {
	inner *memAnalysisCache[string]
}

func newPlaybookCache() *playbookCache {
	return &playbookCache{inner: newMemAnalysisCache[string]()}
}

func pkey(k domain.PlaybookKey) string {
	return k.UserID + "|" + k.WebsiteURL + "|" + k.CacheKey()
}

func (p *playbookCache) Lookup(ctx context.Context, k domain.PlaybookKey) (*domain.CachedResult, error) {
	return p.inner.Lookup(ctx, pkey(k))
}

func (p *playbookCache) InsertIfAbsent(ctx context.Context, k domain.PlaybookKey, r json.RawMessage) (*domain.CachedResult, bool, error) {
	return p.inner.InsertIfAbsent(ctx, pkey(k), r)
}

type fakeLLM struct {
	calls atomic.Int32
	reply json.RawMessage
	err   error
	// gate, when set, is called before replying.
	gate func()
}

func (f *fakeLLM) Name() string { return "openrouter" }

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	raw, err := f.CompleteJSON(ctx, system, user)
	return string(raw), err
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, system, user string) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.gate != nil {
		f.gate()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type fakeLeadSource struct {
	companies []domain.Company
	contacts  []domain.Contact
	err       error
	calls     int
	lastOrg   domain.OrganizationQuery
}

func (f *fakeLeadSource) SearchOrganizations(_ context.Context, q domain.OrganizationQuery) ([]domain.Company, error) {
	f.calls++
	f.lastOrg = q
	return f.companies, f.err
}

func (f *fakeLeadSource) SearchPeople(_ context.Context, q domain.PeopleQuery) ([]domain.Contact, error) {
	f.calls++
	return f.contacts, f.err
}

type memOutputs struct {
	rows      []*domain.AnalyzerOutput
	createErr error
}

func (m *memOutputs) Create(_ context.Context, o *domain.AnalyzerOutput) error {
	if m.createErr != nil {
		return m.createErr
	}
	o.ID = fmt.Sprintf("out-%d", len(m.rows)+1)
	o.CreatedAt = time.Now()
	m.rows = append(m.rows, o)
	return nil
}

func (m *memOutputs) ListByUser(_ context.Context, userID string, limit int) ([]*domain.AnalyzerOutput, error) {
	out := []*domain.AnalyzerOutput{}
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memOutputs) BackfillICPIDs(context.Context) (int64, error) { return 0, nil }

type memSteps struct {
	mu    sync.Mutex
	steps []*domain.ResearchStep
}

func (m *memSteps) Append(_ context.Context, s *domain.ResearchStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.steps) + 1)
	s.CreatedAt = time.Now()
	m.steps = append(m.steps, s)
	return nil
}

func (m *memSteps) ListSince(_ context.Context, researchID, userID string, afterID int64) ([]*domain.ResearchStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.ResearchStep{}
	for _, s := range m.steps {
		if s.ResearchID == researchID && s.UserID == userID && s.ID > afterID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSteps) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.steps))
	for _, s := range m.steps {
		out = append(out, s.Step)
	}
	return out
}

type memProfiles struct {
	byID map[string]*domain.Profile
}

func (m *memProfiles) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memProfiles) EnsureExists(ctx context.Context, id, email string) (*domain.Profile, error) {
	if _, ok := m.byID[id]; !ok {
		m.byID[id] = &domain.Profile{ID: id, Email: email, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	}
	return m.GetByID(ctx, id)
}

func (m *memProfiles) Update(_ context.Context, p *domain.Profile) error {
	if _, ok := m.byID[p.ID]; !ok {
		return domain.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

type memInvitations struct {
	rows []*domain.Invitation
}

func (m *memInvitations) Create(_ context.Context, inv *domain.Invitation) error {
	inv.ID = fmt.Sprintf("inv-%d", len(m.rows)+1)
	inv.CreatedAt = time.Now()
	m.rows = append(m.rows, inv)
	return nil
}

type fakeMailer struct {
	sent   []string
	bodies []string
	err    error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeCRM struct {
	counts []domain.DealStageCount
	calls  int
}

func (f *fakeCRM) CountByStage(context.Context, string) ([]domain.DealStageCount, error) {
	f.calls++
	return f.counts, nil
}

var errBoom = errors.New("boom")
