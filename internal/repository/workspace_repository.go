package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/personaops/backend/internal/domain"
)

// PostgresInvitationRepository implements domain.InvitationRepository.
type PostgresInvitationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresInvitationRepository creates a new invitation repository
func NewPostgresInvitationRepository(db *sql.DB, logger *slog.Logger) *PostgresInvitationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInvitationRepository{db: db, logger: logger}
}

// Create records an invitation.
func (r *PostgresInvitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	query := `
		INSERT INTO invitations (email, inviter_user_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowContext(ctx, query, inv.Email, inv.InviterUserID).Scan(&inv.ID, &inv.CreatedAt); err != nil {
		r.logger.Error("failed to create invitation",
			slog.String("inviter", inv.InviterUserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: failed to create invitation: %w", domain.ErrPersistence, err)
	}
	return nil
}

// PostgresCRMRepository implements domain.CRMRepository.
type PostgresCRMRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCRMRepository creates a new CRM repository
func NewPostgresCRMRepository(db *sql.DB, logger *slog.Logger) *PostgresCRMRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCRMRepository{db: db, logger: logger}
}

// CountByStage groups the user's deals by HubSpot dealstage.
func (r *PostgresCRMRepository) CountByStage(ctx context.Context, userID string) ([]domain.DealStageCount, error) {
	query := `
		SELECT COALESCE(NULLIF(data->'properties'->>'dealstage', ''), 'unknown') AS stage, count(*)
		FROM crm_deals
		WHERE user_id = $1
		GROUP BY 1
		ORDER BY 1
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to count crm deals",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: failed to count crm deals: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	counts := []domain.DealStageCount{}
	for rows.Next() {
		var c domain.DealStageCount
		if err := rows.Scan(&c.Stage, &c.Count); err != nil {
			return nil, fmt.Errorf("%w: failed to scan deal count: %w", domain.ErrPersistence, err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate deal counts: %w", domain.ErrPersistence, err)
	}
	return counts, nil
}

// PostgresReportRepository implements domain.ReportRepository.
type PostgresReportRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresReportRepository creates a new saved report repository
func NewPostgresReportRepository(db *sql.DB, logger *slog.Logger) *PostgresReportRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReportRepository{db: db, logger: logger}
}

// Create saves a report snapshot.
func (r *PostgresReportRepository) Create(ctx context.Context, rep *domain.SavedReport) error {
	query := `
		INSERT INTO saved_reports (user_id, title, report)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowContext(ctx, query, rep.UserID, rep.Title, []byte(rep.Report)).Scan(&rep.ID, &rep.CreatedAt); err != nil {
		r.logger.Error("failed to create report",
			slog.String("user_id", rep.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: failed to create report: %w", domain.ErrPersistence, err)
	}
	return nil
}

// ListByUser returns the user's saved reports, newest first.
func (r *PostgresReportRepository) ListByUser(ctx context.Context, userID string) ([]*domain.SavedReport, error) {
	query := `
		SELECT id, user_id, title, report, created_at
		FROM saved_reports
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list reports: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	reports := []*domain.SavedReport{}
	for rows.Next() {
		rep := &domain.SavedReport{}
		if err := rows.Scan(&rep.ID, &rep.UserID, &rep.Title, &rep.Report, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan report: %w", domain.ErrPersistence, err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate reports: %w", domain.ErrPersistence, err)
	}
	return reports, nil
}
