package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/personaops/backend/internal/domain"
)

// PostgresProfileRepository implements domain.ProfileRepository using PostgreSQL
type PostgresProfileRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProfileRepository creates a new profile repository
func NewPostgresProfileRepository(db *sql.DB, logger *slog.Logger) *PostgresProfileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProfileRepository{db: db, logger: logger}
}

const profileColumns = `id, email, first_name, last_name, company, role, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*domain.Profile, error) {
	p := &domain.Profile{}
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Company, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetByID retrieves a profile by auth subject
func (r *PostgresProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("failed to get profile",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: failed to get profile: %w", domain.ErrPersistence, err)
	}
	return p, nil
}

// EnsureExists creates a bare profile on first sight of a user.
func (r *PostgresProfileRepository) EnsureExists(ctx context.Context, id, email string) (*domain.Profile, error) {
	query := `
		INSERT INTO profiles (id, email)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, id, email); err != nil {
		r.logger.Error("failed to ensure profile",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: failed to ensure profile: %w", domain.ErrPersistence, err)
	}
	return r.GetByID(ctx, id)
}

// Update writes the editable profile fields.
func (r *PostgresProfileRepository) Update(ctx context.Context, p *domain.Profile) error {
	query := `
		UPDATE profiles
		SET first_name = $2, last_name = $3, company = $4, role = $5, updated_at = now()
		WHERE id = $1
		RETURNING email, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, p.ID, p.FirstName, p.LastName, p.Company, p.Role).
		Scan(&p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		r.logger.Error("failed to update profile",
			slog.String("id", p.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: failed to update profile: %w", domain.ErrPersistence, err)
	}
	return nil
}
