package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's application role within (or above) a tenant.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RolePrincipal  Role = "principal"
	RoleTeacher    Role = "teacher"
	RoleParent     Role = "parent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RolePrincipal, RoleTeacher, RoleParent:
		return true
	}
	return false
}

// CanIssueInvitations reports whether r may create invitation codes.
func (r Role) CanIssueInvitations() bool {
	return r == RoleSuperadmin || r == RolePrincipal || r == RoleAdmin
}

// UserProfile binds one directory identity to a role and (usually) a tenant.
// Role and TenantID here are authoritative; the directory is only a credential store.
type UserProfile struct {
	ID         uuid.UUID  `json:"id"`
	IdentityID uuid.UUID  `json:"identity_id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	TenantID   *uuid.UUID `json:"tenant_id,omitempty"` // nil only for superadmin
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// BelongsTo reports whether the profile is scoped to the given tenant.
func (p *UserProfile) BelongsTo(tenantID uuid.UUID) bool {
	return p.TenantID != nil && *p.TenantID == tenantID
}
