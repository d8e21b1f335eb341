package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Invitation records that a user invited an email address. There is no
// acceptance or expiry state.
type Invitation struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	InviterUserID string    `json:"inviter_user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// InvitationRepository defines data access for invitations
type InvitationRepository interface {
	Create(ctx context.Context, inv *Invitation) error
}

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// DealStageCount is the number of CRM deals in one stage.
type DealStageCount struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// CRMRepository reads the crm_deals table.
type CRMRepository interface {
	CountByStage(ctx context.Context, userID string) ([]DealStageCount, error)
}

// SavedReport is a user-saved dashboard snapshot.
type SavedReport struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Report    json.RawMessage `json:"report"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReportRepository defines data access for saved reports
type ReportRepository interface {
	Create(ctx context.Context, r *SavedReport) error
	ListByUser(ctx context.Context, userID string) ([]*SavedReport, error)
}
