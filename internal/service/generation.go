package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/observability/metrics"
)

const (
	breakerCooldown = 30 * time.Second
	// flightTimeout bounds a shared generation once it no longer follows the
	// caller that started it.
	flightTimeout = 2 * time.Minute
)

// GenerationResult is what a cache-or-generate call hands to the handler.
type GenerationResult struct {
	Result json.RawMessage
	// Cached is true when the value came from the table, either on lookup
	// or because a concurrent writer inserted first.
	Cached    bool
	UpdatedAt time.Time
}

// cachedGeneration runs the lookup / generate / insert-if-absent sequence for
// one generation function.
type cachedGeneration[K any] struct {
	name   string
	repo   domain.AnalysisCache[K]
	group  singleflight.Group
	logger *slog.Logger
}

func newCachedGeneration[K any](name string, repo domain.AnalysisCache[K], logger *slog.Logger) *cachedGeneration[K] {
	return &cachedGeneration[K]{name: name, repo: repo, logger: logger.With(slog.String("function", name))}
}

// run returns the stored result for key or produces, persists and returns a
// new one. flightKey must uniquely encode key; identical in-flight calls share
// a single generate.
func (g *cachedGeneration[K]) run(ctx context.Context, key K, flightKey string, generate func(context.Context) (json.RawMessage, error)) (*GenerationResult, error) {
	hit, err := g.repo.Lookup(ctx, key)
	switch {
	case err == nil:
		metrics.ObserveGenerationLookup(g.name, "hit")
		return &GenerationResult{Result: hit.Result, Cached: true, UpdatedAt: hit.UpdatedAt}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("failed to look up cached %s: %w", g.name, err)
	}
	metrics.ObserveGenerationLookup(g.name, "miss")

	// The flight outlives the caller that started it: other waiters and the
	// stored row should not depend on that one connection.
	ch := g.group.DoChan(flightKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		return g.generateAndStore(flightCtx, key, generate)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*GenerationResult), nil
	}
}

func (g *cachedGeneration[K]) generateAndStore(ctx context.Context, key K, generate func(context.Context) (json.RawMessage, error)) (*GenerationResult, error) {
	start := time.Now()
	result, err := generate(ctx)
	if err != nil {
		metrics.ObserveGeneration(g.name, "error", time.Since(start))
		g.logger.Error("generation failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to generate %s: %w", g.name, err)
	}
	metrics.ObserveGeneration(g.name, "success", time.Since(start))

	stored, inserted, err := g.repo.InsertIfAbsent(ctx, key, result)
	if err != nil {
		g.logger.Error("failed to store generated result, discarding it", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to store %s: %w", g.name, err)
	}
	if !inserted {
		metrics.ObserveGenerationLookup(g.name, "lost_race")
		g.logger.Info("concurrent writer stored result first; returning stored row")
		return &GenerationResult{Result: stored.Result, Cached: true, UpdatedAt: stored.UpdatedAt}, nil
	}
	return &GenerationResult{Result: result, UpdatedAt: stored.UpdatedAt}, nil
}
