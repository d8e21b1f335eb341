package domain

import (
	"context"
	"encoding/json"
	"time"
)

// CachedResult is a stored generation result. Rows are never updated once written.
type CachedResult struct {
	Result    json.RawMessage
	UpdatedAt time.Time
}

// ICPKey identifies an icp_analyses row. Matching is exact on both fields.
type ICPKey struct {
	UserID     string
	WebsiteURL string
}

// PlaybookKey identifies a playbook_analyses row. ICP and GTMForm are the
// compacted JSON the caller sent; CacheKey is their exact concatenation.
type PlaybookKey struct {
	UserID     string
	WebsiteURL string
	ICP        json.RawMessage
	GTMForm    json.RawMessage
}

// CacheKey is the text column that makes (icp, gtm_form) indexable.
func (k PlaybookKey) CacheKey() string {
	return string(k.ICP) + "\x1f" + string(k.GTMForm)
}

// AnalysisCache is an exact-match memo table for one generation function.
type AnalysisCache[K any] interface {
	// Lookup returns ErrNotFound when no row matches the key.
	Lookup(ctx context.Context, key K) (*CachedResult, error)
	// InsertIfAbsent writes result unless a row already exists for key. It
	// returns the stored row and whether this call inserted it.
	InsertIfAbsent(ctx context.Context, key K, result json.RawMessage) (*CachedResult, bool, error)
}

// ICPAnalysisRepository stores icp-generator results.
type ICPAnalysisRepository = AnalysisCache[ICPKey]

// PlaybookAnalysisRepository stores playbook-generator results.
type PlaybookAnalysisRepository = AnalysisCache[PlaybookKey]
