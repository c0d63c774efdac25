package models

import (
	"time"

	"github.com/google/uuid"
)

// InvitationCode is a single-use, time-bounded grant of {role, tenant} to an
// optional target email. used_at is set at most once, by the conditional
// mark-used write; revocation is modeled as expires_at <= now.
type InvitationCode struct {
	Code        string     `json:"code"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Role        Role       `json:"role"`
	InvitedBy   uuid.UUID  `json:"invited_by"`
	TargetEmail *string    `json:"target_email,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	UsedBy      *string    `json:"used_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsUsed reports whether the code has already been redeemed.
func (c *InvitationCode) IsUsed() bool { return c.UsedAt != nil }

// IsExpired reports whether the code is outside its validity window at now.
// The window is half-open: a code expires at exactly expires_at.
func (c *InvitationCode) IsExpired(now time.Time) bool { return !now.Before(c.ExpiresAt) }
