package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/observability/metrics"
	"github.com/personaops/backend/internal/observability/tracing"
	"github.com/personaops/backend/internal/reliability/circuitbreaker"
)

// errBreakerOpen is returned without calling the provider.
var errBreakerOpen = fmt.Errorf("%w: circuit breaker open", domain.ErrUpstreamProvider)

// callProvider runs fn once through the provider's breaker. There is no
// retry; callers decide between fallback and failure.
func callProvider[T any](ctx context.Context, cb *circuitbreaker.CircuitBreaker, provider string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if cb != nil && !cb.AllowRequest() {
		metrics.ObserveProviderCall(provider, "short_circuit")
		return zero, errBreakerOpen
	}

	ctx, span := tracing.StartSpan(ctx, "provider."+provider, attribute.String("provider", provider))
	v, err := fn(ctx)
	tracing.EndSpan(span, err)
	if err != nil {
		// A caller hanging up says nothing about the provider's health.
		if cb != nil && !errors.Is(err, context.Canceled) {
			cb.RecordFailure()
		}
		metrics.ObserveProviderCall(provider, "error")
		if !errors.Is(err, domain.ErrUpstreamProvider) {
			err = fmt.Errorf("%w: %s: %w", domain.ErrUpstreamProvider, provider, err)
		}
		return zero, err
	}
	if cb != nil {
		cb.RecordSuccess()
	}
	metrics.ObserveProviderCall(provider, "success")
	return v, nil
}

// completeObject asks llm for a JSON object. Anything else is a provider
// failure, so it is never stored.
func completeObject(ctx context.Context, llm domain.LLM, system, user string) (json.RawMessage, error) {
	raw, err := llm.CompleteJSON(ctx, system, user)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %s returned a non-object reply", domain.ErrUpstreamProvider, llm.Name())
	}
	return trimmed, nil
}

// NewProviderBreaker builds a breaker that publishes its state as a metric.
func NewProviderBreaker(provider string) *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.NewCircuitBreaker(provider, 5, 1, breakerCooldown)
	cb.SetStateChangeCallback(func(name string, _, to circuitbreaker.State) {
		metrics.SetBreakerState(name, int(to))
	})
	metrics.SetBreakerState(provider, int(circuitbreaker.StateClosed))
	return cb
}
