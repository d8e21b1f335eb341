package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/personaops/backend/internal/domain"
)

// PostgresResearchStepRepository implements domain.ResearchStepRepository.
type PostgresResearchStepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresResearchStepRepository creates a new research step repository
func NewPostgresResearchStepRepository(db *sql.DB, logger *slog.Logger) *PostgresResearchStepRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresResearchStepRepository{db: db, logger: logger}
}

// Append records one progress step.
func (r *PostgresResearchStepRepository) Append(ctx context.Context, step *domain.ResearchStep) error {
	query := `
		INSERT INTO company_research_steps (research_id, user_id, step, status, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, step.ResearchID, step.UserID, step.Step, step.Status, step.Detail).
		Scan(&step.ID, &step.CreatedAt)
	if err != nil {
		r.logger.Error("failed to append research step",
			slog.String("research_id", step.ResearchID),
			slog.String("step", step.Step),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: failed to append research step: %w", domain.ErrPersistence, err)
	}
	return nil
}

// ListSince returns steps after afterID in insertion order.
func (r *PostgresResearchStepRepository) ListSince(ctx context.Context, researchID, userID string, afterID int64) ([]*domain.ResearchStep, error) {
	query := `
		SELECT id, research_id, user_id, step, status, detail, created_at
		FROM company_research_steps
		WHERE research_id = $1 AND user_id = $2 AND id > $3
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, researchID, userID, afterID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list research steps: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	steps := []*domain.ResearchStep{}
	for rows.Next() {
		s := &domain.ResearchStep{}
		if err := rows.Scan(&s.ID, &s.ResearchID, &s.UserID, &s.Step, &s.Status, &s.Detail, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan research step: %w", domain.ErrPersistence, err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate research steps: %w", domain.ErrPersistence, err)
	}
	return steps, nil
}
