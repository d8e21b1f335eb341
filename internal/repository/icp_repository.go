package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/pkg/database"
)

// PostgresICPRepository implements domain.ICPRepository using PostgreSQL
type PostgresICPRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresICPRepository creates a new saved-ICP repository
func NewPostgresICPRepository(db *sql.DB, logger *slog.Logger) *PostgresICPRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresICPRepository{db: db, logger: logger}
}

// Create inserts a saved ICP and fills in its id and timestamp.
func (r *PostgresICPRepository) Create(ctx context.Context, icp *domain.ICP) error {
	query := `
		INSERT INTO icps (user_id, name, website_url, icp_data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, icp.UserID, icp.Name, icp.WebsiteURL, []byte(icp.Data)).
		Scan(&icp.ID, &icp.CreatedAt)
	if database.IsUniqueViolation(err) {
		return &domain.ValidationError{Field: "name", Message: "an ICP with this name already exists"}
	}
	if err != nil {
		r.logger.Error("failed to create icp",
			slog.String("user_id", icp.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: failed to create icp: %w", domain.ErrPersistence, err)
	}
	return nil
}

// ListByUser returns the user's saved ICPs, newest first.
func (r *PostgresICPRepository) ListByUser(ctx context.Context, userID string) ([]*domain.ICP, error) {
	query := `
		SELECT id, user_id, name, website_url, icp_data, created_at
		FROM icps
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to list icps",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: failed to list icps: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	icps := []*domain.ICP{}
	for rows.Next() {
		icp := &domain.ICP{}
		if err := rows.Scan(&icp.ID, &icp.UserID, &icp.Name, &icp.WebsiteURL, &icp.Data, &icp.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan icp: %w", domain.ErrPersistence, err)
		}
		icps = append(icps, icp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate icps: %w", domain.ErrPersistence, err)
	}
	return icps, nil
}
