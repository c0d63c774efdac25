package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleSuperadmin, RoleAdmin, RolePrincipal, RoleTeacher, RoleParent} {
		assert.True(t, r.Valid(), "role %s", r)
	}
	assert.False(t, Role("owner").Valid())
	assert.False(t, Role("").Valid())
}

func TestRoleCanIssueInvitations(t *testing.T) {
	assert.True(t, RoleSuperadmin.CanIssueInvitations())
	assert.True(t, RolePrincipal.CanIssueInvitations())
	assert.True(t, RoleAdmin.CanIssueInvitations())
	assert.False(t, RoleTeacher.CanIssueInvitations())
	assert.False(t, RoleParent.CanIssueInvitations())
}

func TestProfileBelongsTo(t *testing.T) {
	tenantID := uuid.New()
	p := &UserProfile{TenantID: &tenantID}
	assert.True(t, p.BelongsTo(tenantID))
	assert.False(t, p.BelongsTo(uuid.New()))

	superadmin := &UserProfile{Role: RoleSuperadmin}
	assert.False(t, superadmin.BelongsTo(tenantID))
}

func TestInvitationCodeWindow(t *testing.T) {
	now := time.Now()
	c := &InvitationCode{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, c.IsExpired(now))
	assert.False(t, c.IsExpired(now.Add(time.Hour-time.Second)))
	// The window is half-open: the code is expired at exactly expires_at.
	assert.True(t, c.IsExpired(now.Add(time.Hour)))
	assert.True(t, c.IsExpired(now.Add(time.Hour+time.Second)))
	assert.False(t, c.IsUsed())

	used := now
	c.UsedAt = &used
	assert.True(t, c.IsUsed())
}
