package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/personaops/backend/internal/demo"
	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/infrastructure/logger"
	"github.com/personaops/backend/internal/reliability/circuitbreaker"
)

func testLogger() *slog.Logger {
	return logger.Discard()
}

func TestICPGenerateCachesFirstResult(t *testing.T) {
	repo := newMemAnalysisCache[domain.ICPKey]()
	llm := &fakeLLM{reply: json.RawMessage(`{"firmographics":{"industries":["SaaS"]}}`)}
	svc := NewICPService(repo, llm, NewProviderBreaker("openrouter"), demo.Default(), testLogger())
	ctx := context.Background()

	first, err := svc.Generate(ctx, "user-1", "https://acme.io")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if first.Cached {
		t.Fatal("first call should not be cached")
	}

	second, err := svc.Generate(ctx, "user-1", "https://acme.io")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !second.Cached {
		t.Fatal("second call should be cached")
	}
	if string(second.Result) != string(first.Result) {
		t.Fatalf("cached result = %s, want %s", second.Result, first.Result)
	}
	if second.UpdatedAt.IsZero() {
		t.Fatal("cached result should carry updated_at")
	}
	if got := llm.calls.Load(); got != 1 {
		t.Fatalf("llm calls = %d, want 1", got)
	}
}

func TestICPGenerateKeysByUserAndWebsite(t *testing.T) {
	repo := newMemAnalysisCache[domain.ICPKey]()
	llm := &fakeLLM{reply: json.RawMessage(`{}`)}
	svc := NewICPService(repo, llm, nil, demo.Default(), testLogger())
	ctx := context.Background()

	for _, k := range []domain.ICPKey{
		{UserID: "u1", WebsiteURL: "https://a.io"},
		{UserID: "u2", WebsiteURL: "https://a.io"},
		{UserID: "u1", WebsiteURL: "https://b.io"},
	} {
		res, err := svc.Generate(ctx, k.UserID, k.WebsiteURL)
		if err != nil {
			t.Fatalf("Generate(%v) error = %v", k, err)
		}
		if res.Cached {
			t.Fatalf("Generate(%v) cached, want fresh", k)
		}
	}
	if repo.count() != 3 {
		t.Fatalf("rows = %d, want 3", repo.count())
	}
}

func TestICPGenerateRequiresWebsite(t *testing.T) {
	svc := NewICPService(newMemAnalysisCache[domain.ICPKey](), nil, nil, demo.Default(), testLogger())
	_, err := svc.Generate(context.Background(), "u1", "  ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want validation error", err)
	}
}

func TestICPGenerateWithoutLLMUsesCatalog(t *testing.T) {
	repo := newMemAnalysisCache[domain.ICPKey]()
	svc := NewICPService(repo, nil, nil, demo.Default(), testLogger())

	res, err := svc.Generate(context.Background(), "u1", "https://acme.io")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !json.Valid(res.Result) {
		t.Fatalf("result is not JSON: %s", res.Result)
	}
	if repo.count() != 1 {
		t.Fatal("demo result should still be stored")
	}
}

func TestICPGenerateProviderErrorStoresNothing(t *testing.T) {
	repo := newMemAnalysisCache[domain.ICPKey]()
	llm := &fakeLLM{err: errBoom}
	svc := NewICPService(repo, llm, NewProviderBreaker("openrouter"), demo.Default(), testLogger())

	_, err := svc.Generate(context.Background(), "u1", "https://acme.io")
	if !errors.Is(err, domain.ErrUpstreamProvider) {
		t.Fatalf("error = %v, want ErrUpstreamProvider", err)
	}
	if repo.count() != 0 {
		t.Fatal("failed generation must not be stored")
	}
}

func TestGenerateRejectsNonObjectReplies(t *testing.T) {
	replies := map[string]string{
		"array":  `[1]`,
		"number": `42`,
		"string": `"no data"`,
		"null":   `null`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			icps := newMemAnalysisCache[domain.ICPKey]()
			llm := &fakeLLM{reply: json.RawMessage(reply)}
			_, err := NewICPService(icps, llm, nil, demo.Default(), testLogger()).Generate(context.Background(), "u1", "https://acme.io")
			if !errors.Is(err, domain.ErrUpstreamProvider) {
				t.Fatalf("icp error = %v, want ErrUpstreamProvider", err)
			}
			if icps.count() != 0 {
				t.Fatal("icp reply that is not an object must not be stored")
			}

			playbooks := newPlaybookCache()
			_, err = NewPlaybookService(playbooks, llm, nil, demo.Default(), testLogger()).
				Generate(context.Background(), "u1", "https://acme.io", json.RawMessage(`{"a":1}`), json.RawMessage(`{"b":2}`))
			if !errors.Is(err, domain.ErrUpstreamProvider) {
				t.Fatalf("playbook error = %v, want ErrUpstreamProvider", err)
			}
			if playbooks.inner.count() != 0 {
				t.Fatal("playbook reply that is not an object must not be stored")
			}
		})
	}
}

func TestICPGenerateInsertFailureDiscardsResult(t *testing.T) {
	repo := newMemAnalysisCache[domain.ICPKey]()
	repo.insertErr = errors.Join(domain.ErrPersistence, errBoom)
	llm := &fakeLLM{reply: json.RawMessage(`{"ok":true}`)}
	svc := NewICPService(repo, llm, nil, demo.Default(), testLogger())

	res, err := svc.Generate(context.Background(), "u1", "https://acme.io")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("error = %v, want ErrPersistence", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
}

func TestICPGenerateLostRaceReturnsStoredRow(t *testing.T) {
	repo := newMemAnalysisCache[domain.ICPKey]()
	repo.raced = json.RawMessage(`{"winner":true}`)
	llm := &fakeLLM{reply: json.RawMessage(`{"winner":false}`)}
	svc := NewICPService(repo, llm, nil, demo.Default(), testLogger())

	res, err := svc.Generate(context.Background(), "u1", "https://acme.io")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !res.Cached {
		t.Fatal("losing writer should report cached")
	}
	if string(res.Result) != `{"winner":true}` {
		t.Fatalf("result = %s, want the first writer's row", res.Result)
	}
}

func TestICPGenerateCollapsesConcurrentCalls(t *testing.T) {
	const callers = 8
	repo := newMemAnalysisCache[domain.ICPKey]()
	llm := &fakeLLM{reply: json.RawMessage(`{"shared":true}`)}
	llm.gate = func() {
		deadline := time.Now().Add(2 * time.Second)
		for repo.lookups.Load() < callers && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(50 * time.Millisecond)
	}
	svc := NewICPService(repo, llm, nil, demo.Default(), testLogger())

	var wg sync.WaitGroup
	results := make([]*GenerationResult, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Generate(context.Background(), "u1", "https://acme.io")
		}()
	}
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if string(results[i].Result) != `{"shared":true}` {
			t.Fatalf("caller %d result = %s", i, results[i].Result)
		}
	}
	if got := llm.calls.Load(); got != 1 {
		t.Fatalf("llm calls = %d, want 1", got)
	}
	if repo.count() != 1 {
		t.Fatalf("rows = %d, want 1", repo.count())
	}
}

func TestICPGenerateCallerCancelReturnsEarly(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	llm := &fakeLLM{reply: json.RawMessage(`{}`), gate: func() { <-release }}
	svc := NewICPService(newMemAnalysisCache[domain.ICPKey](), llm, nil, demo.Default(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Generate(ctx, "u1", "https://acme.io")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestICPGenerateSurvivesLeaderCancel(t *testing.T) {
	release := make(chan struct{})
	repo := newMemAnalysisCache[domain.ICPKey]()
	llm := &fakeLLM{reply: json.RawMessage(`{"kept":true}`), gate: func() { <-release }}
	svc := NewICPService(repo, llm, nil, demo.Default(), testLogger())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Generate(leaderCtx, "u1", "https://acme.io")
		leaderErr <- err
	}()
	waitFor(t, func() bool { return llm.calls.Load() == 1 })

	type outcome struct {
		res *GenerationResult
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		res, err := svc.Generate(context.Background(), "u1", "https://acme.io")
		follower <- outcome{res, err}
	}()
	waitFor(t, func() bool { return repo.lookups.Load() == 2 })
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader error = %v, want context.Canceled", err)
	}
	close(release)

	got := <-follower
	if got.err != nil {
		t.Fatalf("follower error = %v", got.err)
	}
	if string(got.res.Result) != `{"kept":true}` {
		t.Fatalf("follower result = %s", got.res.Result)
	}
	if repo.count() != 1 || llm.calls.Load() != 1 {
		t.Fatalf("rows = %d, llm calls = %d, want 1 and 1", repo.count(), llm.calls.Load())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestICPGenerateOpenBreakerFailsFast(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker("openrouter", 1, 1, time.Hour)
	cb.RecordFailure()
	llm := &fakeLLM{reply: json.RawMessage(`{}`)}
	svc := NewICPService(newMemAnalysisCache[domain.ICPKey](), llm, cb, demo.Default(), testLogger())

	_, err := svc.Generate(context.Background(), "u1", "https://acme.io")
	if !errors.Is(err, domain.ErrUpstreamProvider) {
		t.Fatalf("error = %v, want ErrUpstreamProvider", err)
	}
	if llm.calls.Load() != 0 {
		t.Fatal("open breaker should not call the provider")
	}
}

func TestPlaybookGenerateKeysOnExactInputs(t *testing.T) {
	repo := newPlaybookCache()
	llm := &fakeLLM{reply: json.RawMessage(`{"plays":[]}`)}
	svc := NewPlaybookService(repo, llm, nil, demo.Default(), testLogger())
	ctx := context.Background()
	icp := json.RawMessage(`{"industry": "SaaS"}`)

	first, err := svc.Generate(ctx, "u1", "https://acme.io", icp, json.RawMessage(`{"motion":"outbound"}`))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if first.Cached {
		t.Fatal("first call should be fresh")
	}

	// Whitespace-only differences hit the same row.
	again, err := svc.Generate(ctx, "u1", "https://acme.io", json.RawMessage(`{"industry":"SaaS"}`), json.RawMessage(`{ "motion" : "outbound" }`))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !again.Cached {
		t.Fatal("compacted inputs should hit the cache")
	}

	other, err := svc.Generate(ctx, "u1", "https://acme.io", icp, json.RawMessage(`{"motion":"plg"}`))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if other.Cached {
		t.Fatal("a different gtmForm must miss")
	}
	if got := llm.calls.Load(); got != 2 {
		t.Fatalf("llm calls = %d, want 2", got)
	}
}

func TestPlaybookGenerateValidatesInputs(t *testing.T) {
	svc := NewPlaybookService(newPlaybookCache(), nil, nil, demo.Default(), testLogger())
	ctx := context.Background()

	tests := []struct {
		name    string
		website string
		icp     json.RawMessage
		gtm     json.RawMessage
	}{
		{"missing website", "", json.RawMessage(`{}`), json.RawMessage(`{}`)},
		{"missing icp", "https://a.io", nil, json.RawMessage(`{}`)},
		{"null gtm", "https://a.io", json.RawMessage(`{}`), json.RawMessage(`null`)},
		{"invalid icp", "https://a.io", json.RawMessage(`{nope`), json.RawMessage(`{}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Generate(ctx, "u1", tt.website, tt.icp, tt.gtm)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("error = %v, want validation error", err)
			}
		})
	}
}
