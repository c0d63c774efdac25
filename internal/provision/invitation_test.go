package provision

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsteps/backend/internal/identity"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/notify"
)

func TestIssueInvitation(t *testing.T) {
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")

	target := "teacher@willowcreek.example.com"
	inv, err := env.engine.IssueInvitation(context.Background(), tenant.ID, models.RoleTeacher, principal.ID, &target, 0)
	require.NoError(t, err)
	assert.Len(t, inv.Code, 32)
	assert.Equal(t, models.RoleTeacher, inv.Role)
	assert.Equal(t, tenant.ID, inv.TenantID)
	require.NotNil(t, inv.TargetEmail)
	assert.Equal(t, target, *inv.TargetEmail)
	assert.WithinDuration(t, time.Now().Add(DefaultInviteTTL), inv.ExpiresAt, time.Minute)

	mails := env.notifier.byTemplate(notify.TemplateInvitation)
	require.Len(t, mails, 1)
	assert.Equal(t, target, mails[0].To)
	assert.Equal(t, inv.Code, mails[0].Data["code"])
}

func TestIssueInvitationAuthorization(t *testing.T) {
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	other := env.seedTenant("Oak Lane")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")
	teacher := env.seedMember(tenant.ID, models.RoleTeacher, "t@willowcreek.example.com")
	superadmin := env.seedSuperadmin()

	ctx := context.Background()

	// Teachers cannot issue at all.
	_, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleParent, teacher.ID, nil, 0)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// A principal cannot issue into another tenant.
	_, err = env.engine.IssueInvitation(ctx, other.ID, models.RoleTeacher, principal.ID, nil, 0)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Nobody can grant superadmin by invitation.
	_, err = env.engine.IssueInvitation(ctx, tenant.ID, models.RoleSuperadmin, superadmin.ID, nil, 0)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// A superadmin can issue into any tenant.
	_, err = env.engine.IssueInvitation(ctx, other.ID, models.RoleAdmin, superadmin.ID, nil, 0)
	assert.NoError(t, err)
}

func TestRedeemInvitationCreatesMember(t *testing.T) {
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")
	target := "new.teacher@example.com"
	inv, err := env.engine.IssueInvitation(context.Background(), tenant.ID, models.RoleTeacher, principal.ID, &target, 0)
	require.NoError(t, err)

	ctx := context.Background()
	result, err := env.engine.RedeemInvitation(ctx, inv.Code, "new.teacher@example.com", "New Teacher", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, result.Role)
	assert.Equal(t, tenant.ID, result.TenantID)

	profile, err := env.profiles.GetByID(ctx, result.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, profile.Role)
	require.NotNil(t, profile.TenantID)
	assert.Equal(t, tenant.ID, *profile.TenantID)
	assert.True(t, profile.IsActive)

	// The chosen password authenticates.
	_, err = env.dir.Authenticate(ctx, target, "s3cret-pass")
	assert.NoError(t, err)

	// The code is spent and records the redeemer.
	stored, err := env.invitations.GetByCode(ctx, inv.Code)
	require.NoError(t, err)
	require.NotNil(t, stored.UsedAt)
	require.NotNil(t, stored.UsedBy)
	assert.Equal(t, target, *stored.UsedBy)
}

func TestRedeemInvitationValidationOrder(t *testing.T) {
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		_, err := env.engine.RedeemInvitation(ctx, "nosuchcodenosuchcodenosuchcode22", "a@x.com", "A", "password-1")
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("used before expired", func(t *testing.T) {
		// A code both used and expired reports AlreadyUsed.
		inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleParent, principal.ID, nil, time.Hour)
		require.NoError(t, err)
		_, err = env.engine.RedeemInvitation(ctx, inv.Code, "first@x.com", "First", "password-1")
		require.NoError(t, err)
		require.NoError(t, env.invitations.Expire(ctx, inv.Code, time.Now().Add(-time.Hour)))

		_, err = env.engine.RedeemInvitation(ctx, inv.Code, "second@x.com", "Second", "password-2")
		assert.ErrorIs(t, err, ErrAlreadyUsed)
	})

	t.Run("expired", func(t *testing.T) {
		inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleParent, principal.ID, nil, time.Hour)
		require.NoError(t, err)
		require.NoError(t, env.invitations.Expire(ctx, inv.Code, time.Now().Add(-time.Second)))

		_, err = env.engine.RedeemInvitation(ctx, inv.Code, "late@x.com", "Late", "password-1")
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("expired at exactly the boundary", func(t *testing.T) {
		issued := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
		env.engine.Now = func() time.Time { return issued }
		inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleParent, principal.ID, nil, time.Hour)
		require.NoError(t, err)

		env.engine.Now = func() time.Time { return issued.Add(time.Hour) }
		_, err = env.engine.RedeemInvitation(ctx, inv.Code, "edge@x.com", "Edge", "password-1")
		assert.ErrorIs(t, err, ErrExpired)
		env.engine.Now = time.Now
	})

	t.Run("email mismatch", func(t *testing.T) {
		target := "a@x.com"
		inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleParent, principal.ID, &target, time.Hour)
		require.NoError(t, err)

		_, err = env.engine.RedeemInvitation(ctx, inv.Code, "b@x.com", "B", "password-1")
		assert.ErrorIs(t, err, ErrEmailMismatch)

		// No account was created for the mismatched redeemer.
		_, ferr := env.dir.FindByEmail(ctx, "b@x.com")
		assert.ErrorIs(t, ferr, identity.ErrNotFound)
	})

	t.Run("target email match is case-insensitive", func(t *testing.T) {
		target := "a2@x.com"
		inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleParent, principal.ID, &target, time.Hour)
		require.NoError(t, err)

		_, err = env.engine.RedeemInvitation(ctx, inv.Code, "A2@X.com", "A", "password-1")
		assert.NoError(t, err)
	})
}

func TestRedeemInvitationExistingAccountRequiresPassword(t *testing.T) {
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")
	ctx := context.Background()

	_, err := env.dir.CreateAccount(ctx, "parent@x.com", "their-own-pass", true)
	require.NoError(t, err)

	inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleParent, principal.ID, nil, time.Hour)
	require.NoError(t, err)

	// Wrong password: rejected, code stays unused, account survives.
	_, err = env.engine.RedeemInvitation(ctx, inv.Code, "parent@x.com", "Parent", "guessed-pass")
	require.ErrorIs(t, err, ErrUnauthorized)
	stored, gerr := env.invitations.GetByCode(ctx, inv.Code)
	require.NoError(t, gerr)
	assert.Nil(t, stored.UsedAt)
	_, ferr := env.dir.FindByEmail(ctx, "parent@x.com")
	assert.NoError(t, ferr)

	// Correct password: the existing account is adopted, not recreated.
	before := env.dir.creates
	result, err := env.engine.RedeemInvitation(ctx, inv.Code, "parent@x.com", "Parent", "their-own-pass")
	require.NoError(t, err)
	assert.Equal(t, models.RoleParent, result.Role)
	assert.Equal(t, before, env.dir.creates)
}

func TestRedeemInvitationConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")
	inv, err := env.engine.IssueInvitation(context.Background(), tenant.ID, models.RoleTeacher, principal.ID, nil, time.Hour)
	require.NoError(t, err)

	emails := []string{"one@x.com", "two@x.com"}
	results := make([]error, len(emails))
	var wg sync.WaitGroup
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			_, results[i] = env.engine.RedeemInvitation(context.Background(), inv.Code, email, "Racer", "password-"+email)
		}(i, email)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, ErrAlreadyUsed)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	// Exactly one member profile was granted; the loser's was compensated.
	stored, err := env.invitations.GetByCode(context.Background(), inv.Code)
	require.NoError(t, err)
	require.NotNil(t, stored.UsedBy)
	members, err := env.profiles.ListByTenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	active := 0
	for _, m := range members {
		if m.Role == models.RoleTeacher && m.IsActive {
			active++
			assert.Equal(t, *stored.UsedBy, m.Email)
		}
	}
	assert.Equal(t, 1, active)
}

func TestRedeemInvitationLostRaceRestoresDeactivatedProfile(t *testing.T) {
	// The redeemer has a pre-existing, deactivated profile. Losing the race at
	// the mark-used write must restore the profile to its prior state, not
	// leave it reactivated with the invited role.
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	other := env.seedTenant("Oak Lane")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")
	ctx := context.Background()

	ref, err := env.dir.CreateAccount(ctx, "returning@x.com", "their-own-pass", true)
	require.NoError(t, err)
	prior := &models.UserProfile{
		IdentityID: ref.ID,
		Email:      "returning@x.com",
		Name:       "Returning Parent",
		Role:       models.RoleParent,
		TenantID:   &other.ID,
		IsActive:   false,
	}
	require.NoError(t, env.profiles.Create(ctx, prior))

	inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleTeacher, principal.ID, nil, time.Hour)
	require.NoError(t, err)

	// A rival redemption lands just before this one reaches the conditional write.
	env.invitations.beforeMarkUsed = func() {
		_, _ = env.invitations.MarkUsed(ctx, inv.Code, "rival@x.com", time.Now())
	}

	_, err = env.engine.RedeemInvitation(ctx, inv.Code, "returning@x.com", "Returning Parent", "their-own-pass")
	require.ErrorIs(t, err, ErrAlreadyUsed)

	restored, err := env.profiles.GetByID(ctx, prior.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleParent, restored.Role)
	require.NotNil(t, restored.TenantID)
	assert.Equal(t, other.ID, *restored.TenantID)
	assert.False(t, restored.IsActive)

	// The pre-existing directory account survives the compensation.
	_, err = env.dir.FindByEmail(ctx, "returning@x.com")
	assert.NoError(t, err)
}

func TestRevokeInvitation(t *testing.T) {
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	other := env.seedTenant("Oak Lane")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")
	outsider := env.seedMember(other.ID, models.RolePrincipal, "head@oaklane.example.com")
	ctx := context.Background()

	inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleTeacher, principal.ID, nil, time.Hour)
	require.NoError(t, err)

	// A principal of another tenant cannot revoke it.
	err = env.engine.RevokeInvitation(ctx, inv.Code, outsider.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, env.engine.RevokeInvitation(ctx, inv.Code, principal.ID))

	// Revocation reads back as expiry.
	_, err = env.engine.RedeemInvitation(ctx, inv.Code, "late@x.com", "Late", "password-1")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRevokeInvitationAlreadyRedeemed(t *testing.T) {
	env := newTestEnv()
	tenant := env.seedTenant("Willow Creek")
	principal := env.seedMember(tenant.ID, models.RolePrincipal, "head@willowcreek.example.com")
	ctx := context.Background()

	inv, err := env.engine.IssueInvitation(ctx, tenant.ID, models.RoleParent, principal.ID, nil, time.Hour)
	require.NoError(t, err)
	_, err = env.engine.RedeemInvitation(ctx, inv.Code, "parent@x.com", "Parent", "password-1")
	require.NoError(t, err)

	err = env.engine.RevokeInvitation(ctx, inv.Code, principal.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}
