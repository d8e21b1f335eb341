package security

import (
	"fmt"
	"log/slog"
	"slices"
)

// Role is the Supabase "role" claim.
type Role string

const (
	RoleAuthenticated Role = "authenticated"
	RoleServiceRole   Role = "service_role"
)

// Permission represents an action permission
type Permission string

const (
	PermGenerate        Permission = "generate"
	PermDiscover        Permission = "discover"
	PermManageWorkspace Permission = "manage_workspace"
	PermRunMaintenance  Permission = "run_maintenance"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleServiceRole: {
		PermGenerate,
		PermDiscover,
		PermManageWorkspace,
		PermRunMaintenance,
	},
	RoleAuthenticated: {
		PermGenerate,
		PermDiscover,
		PermManageWorkspace,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

// HasPermission checks if a role has a specific permission. Tokens without a
// role claim are treated as authenticated users.
func (as *AuthorizationService) HasPermission(role Role, permission Permission) bool {
	if role == "" {
		role = RoleAuthenticated
	}
	return slices.Contains(RolePermissions[role], permission)
}

// ValidatePermission validates that a role has a specific permission
func (as *AuthorizationService) ValidatePermission(role Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("permission denied: %s role cannot %s", role, permission)
	}
	return nil
}
