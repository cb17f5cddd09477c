package auth

import (
	"slices"

	"github.com/google/uuid"
)

// Role is the claim that gates operations
type Role string

const (
	RoleManager  Role = "manager"
	RoleVerifier Role = "verifier"
	RoleBuyer    Role = "buyer"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleVerifier, RoleBuyer:
		return true
	default:
		return false
	}
}

// Principal is the authenticated caller as asserted by the identity provider
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	OrgID  string    `json:"org_id,omitempty"`
	Role   Role      `json:"role"`
}

// HasRole reports whether the principal holds one of roles
func (p Principal) HasRole(roles ...Role) bool {
	return slices.Contains(roles, p.Role)
}
