package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/personaops/backend/internal/domain"
)

// PostgresAnalyzerOutputRepository implements domain.AnalyzerOutputRepository.
type PostgresAnalyzerOutputRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresAnalyzerOutputRepository creates a new analyzer output repository
func NewPostgresAnalyzerOutputRepository(db *sql.DB, logger *slog.Logger) *PostgresAnalyzerOutputRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAnalyzerOutputRepository{db: db, logger: logger}
}

// Create inserts an analyzer output.
func (r *PostgresAnalyzerOutputRepository) Create(ctx context.Context, out *domain.AnalyzerOutput) error {
	query := `
		INSERT INTO company_analyzer_outputs (user_id, website_url, company_name, icp_id, llm_output)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		out.UserID,
		out.WebsiteURL,
		out.CompanyName,
		out.ICPID,
		[]byte(out.LLMOutput),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create analyzer output",
			slog.String("user_id", out.UserID),
			slog.String("website_url", out.WebsiteURL),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: failed to create analyzer output: %w", domain.ErrPersistence, err)
	}
	return nil
}

// ListByUser returns up to limit outputs, newest first.
func (r *PostgresAnalyzerOutputRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AnalyzerOutput, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, website_url, company_name, icp_id, llm_output, created_at
		FROM company_analyzer_outputs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		r.logger.Error("failed to list analyzer outputs",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: failed to list analyzer outputs: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	outputs := []*domain.AnalyzerOutput{}
	for rows.Next() {
		o := &domain.AnalyzerOutput{}
		var icpID sql.NullString
		if err := rows.Scan(&o.ID, &o.UserID, &o.WebsiteURL, &o.CompanyName, &icpID, &o.LLMOutput, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan analyzer output: %w", domain.ErrPersistence, err)
		}
		if icpID.Valid {
			o.ICPID = &icpID.String
		}
		outputs = append(outputs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate analyzer outputs: %w", domain.ErrPersistence, err)
	}
	return outputs, nil
}

// BackfillICPIDs links outputs that have no icp_id to the newest ICP the same
// user saved for the same website.
func (r *PostgresAnalyzerOutputRepository) BackfillICPIDs(ctx context.Context) (int64, error) {
	query := `
		UPDATE company_analyzer_outputs o
		SET icp_id = (
			SELECT i.id FROM icps i
			WHERE i.user_id = o.user_id AND i.website_url = o.website_url
			ORDER BY i.created_at DESC
			LIMIT 1
		)
		WHERE o.icp_id IS NULL
		AND EXISTS (
			SELECT 1 FROM icps i
			WHERE i.user_id = o.user_id AND i.website_url = o.website_url
		)
	`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		r.logger.Error("failed to backfill icp ids", slog.String("error", err.Error()))
		return 0, fmt.Errorf("%w: failed to backfill icp ids: %w", domain.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read backfill row count: %w", err)
	}
	return n, nil
}
