package domain

import (
	"context"
	"time"
)

// Profile mirrors a Supabase Auth user. ID is the auth subject.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Company   string    `json:"company"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileRepository defines data access for profiles
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	// EnsureExists inserts a bare profile row if none exists and returns the stored row.
	EnsureExists(ctx context.Context, id, email string) (*Profile, error)
	Update(ctx context.Context, profile *Profile) error
}
