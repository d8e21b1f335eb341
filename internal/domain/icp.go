package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ICP is a saved Ideal Customer Profile.
type ICP struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Name       string          `json:"name"`
	WebsiteURL string          `json:"website_url"`
	Data       json.RawMessage `json:"icp_data"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ICPRepository defines data access for saved ICPs
type ICPRepository interface {
	Create(ctx context.Context, icp *ICP) error
	ListByUser(ctx context.Context, userID string) ([]*ICP, error)
}
