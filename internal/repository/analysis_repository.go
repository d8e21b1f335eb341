package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/personaops/backend/internal/domain"
)

// PostgresICPAnalysisRepository implements domain.ICPAnalysisRepository.
type PostgresICPAnalysisRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresICPAnalysisRepository creates a new icp_analyses repository
func NewPostgresICPAnalysisRepository(db *sql.DB, logger *slog.Logger) *PostgresICPAnalysisRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresICPAnalysisRepository{db: db, logger: logger}
}

// Lookup finds the stored result for an exact (user_id, website_url) match.
func (r *PostgresICPAnalysisRepository) Lookup(ctx context.Context, key domain.ICPKey) (*domain.CachedResult, error) {
	query := `
		SELECT icp_result, updated_at
		FROM icp_analyses
		WHERE user_id = $1 AND website_url = $2
	`

	var res domain.CachedResult
	err := r.db.QueryRowContext(ctx, query, key.UserID, key.WebsiteURL).Scan(&res.Result, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to look up icp analysis",
			slog.String("user_id", key.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: failed to look up icp analysis: %w", domain.ErrPersistence, err)
	}
	return &res, nil
}

// InsertIfAbsent stores result unless a concurrent writer got there first,
// in which case the existing row is returned.
func (r *PostgresICPAnalysisRepository) InsertIfAbsent(ctx context.Context, key domain.ICPKey, result json.RawMessage) (*domain.CachedResult, bool, error) {
	query := `
		INSERT INTO icp_analyses (user_id, website_url, icp_result)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, website_url) DO NOTHING
		RETURNING icp_result, updated_at
	`

	var res domain.CachedResult
	err := r.db.QueryRowContext(ctx, query, key.UserID, key.WebsiteURL, []byte(result)).Scan(&res.Result, &res.UpdatedAt)
	if err == nil {
		return &res, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.logger.Error("failed to insert icp analysis",
			slog.String("user_id", key.UserID),
			slog.String("error", err.Error()),
		)
		return nil, false, fmt.Errorf("%w: failed to insert icp analysis: %w", domain.ErrPersistence, err)
	}

	existing, err := r.Lookup(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// PostgresPlaybookAnalysisRepository implements domain.PlaybookAnalysisRepository.
type PostgresPlaybookAnalysisRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPlaybookAnalysisRepository creates a new playbook_analyses repository
func NewPostgresPlaybookAnalysisRepository(db *sql.DB, logger *slog.Logger) *PostgresPlaybookAnalysisRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPlaybookAnalysisRepository{db: db, logger: logger}
}

// Lookup matches on user, website and the exact (icp, gtm_form) cache key.
func (r *PostgresPlaybookAnalysisRepository) Lookup(ctx context.Context, key domain.PlaybookKey) (*domain.CachedResult, error) {
	query := `
		SELECT playbook_result, updated_at
		FROM playbook_analyses
		WHERE user_id = $1 AND website_url = $2 AND cache_key = $3
	`

	var res domain.CachedResult
	err := r.db.QueryRowContext(ctx, query, key.UserID, key.WebsiteURL, key.CacheKey()).Scan(&res.Result, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to look up playbook analysis",
			slog.String("user_id", key.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: failed to look up playbook analysis: %w", domain.ErrPersistence, err)
	}
	return &res, nil
}

// InsertIfAbsent stores result keyed by the exact inputs.
func (r *PostgresPlaybookAnalysisRepository) InsertIfAbsent(ctx context.Context, key domain.PlaybookKey, result json.RawMessage) (*domain.CachedResult, bool, error) {
	query := `
		INSERT INTO playbook_analyses (user_id, website_url, icp, gtm_form, cache_key, playbook_result)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, website_url, cache_key) DO NOTHING
		RETURNING playbook_result, updated_at
	`

	var res domain.CachedResult
	err := r.db.QueryRowContext(ctx, query,
		key.UserID,
		key.WebsiteURL,
		[]byte(key.ICP),
		[]byte(key.GTMForm),
		key.CacheKey(),
		[]byte(result),
	).Scan(&res.Result, &res.UpdatedAt)
	if err == nil {
		return &res, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.logger.Error("failed to insert playbook analysis",
			slog.String("user_id", key.UserID),
			slog.String("error", err.Error()),
		)
		return nil, false, fmt.Errorf("%w: failed to insert playbook analysis: %w", domain.ErrPersistence, err)
	}

	existing, err := r.Lookup(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
