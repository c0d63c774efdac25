package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/identity"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/notify"
	"github.com/brightsteps/backend/internal/store"
)

// RedeemResult is the outcome of a successful invitation redemption.
type RedeemResult struct {
	ProfileID uuid.UUID   `json:"profile_id"`
	Role      models.Role `json:"role"`
	TenantID  uuid.UUID   `json:"tenant_id"`
}

// IssueInvitation creates a single-use code granting {role, tenant} to an
// optional target email. ttl <= 0 uses the engine default. When a target
// email is given, the invitation is mailed to it best-effort.
func (e *Engine) IssueInvitation(ctx context.Context, tenantID uuid.UUID, role models.Role,
	issuerID uuid.UUID, targetEmail *string, ttl time.Duration) (*models.InvitationCode, error) {
	if !role.Valid() || role == models.RoleSuperadmin {
		return nil, fmt.Errorf("role %q cannot be granted by invitation: %w", role, ErrUnauthorized)
	}
	issuer, err := e.profiles.GetByID(ctx, issuerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("issuer: %w", ErrNotFound)
		}
		return nil, err
	}
	if !issuer.Role.CanIssueInvitations() {
		return nil, fmt.Errorf("role %s cannot issue invitations: %w", issuer.Role, ErrUnauthorized)
	}
	if issuer.Role != models.RoleSuperadmin && !issuer.BelongsTo(tenantID) {
		return nil, fmt.Errorf("issuer is not a member of the tenant: %w", ErrUnauthorized)
	}

	tenant, err := e.tenants.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("tenant: %w", ErrNotFound)
		}
		return nil, err
	}

	code, err := GenerateInviteCode()
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = e.InviteTTL
	}
	inv := &models.InvitationCode{
		Code:      code,
		TenantID:  tenantID,
		Role:      role,
		InvitedBy: issuerID,
		ExpiresAt: e.Now().Add(ttl),
	}
	if targetEmail != nil && *targetEmail != "" {
		email := strings.ToLower(strings.TrimSpace(*targetEmail))
		inv.TargetEmail = &email
	}
	if err := e.withRetry(ctx, "create invitation", func(ctx context.Context) error {
		return e.invitations.Create(ctx, inv)
	}); err != nil {
		return nil, mapProviderErr(err)
	}

	if inv.TargetEmail != nil {
		if err := e.notifier.Send(ctx, *inv.TargetEmail, notify.TemplateInvitation, map[string]string{
			"tenant_name": tenant.Name,
			"role":        string(role),
			"code":        inv.Code,
			"redeem_url":  e.AppBaseURL + "/join",
			"expires_at":  inv.ExpiresAt.Format(time.RFC1123),
		}, &tenantID); err != nil {
			e.logger.Warn("invitation email failed", zap.Error(err), zap.String("code", inv.Code))
		}
	}
	return inv, nil
}

// RedeemInvitation turns an anonymous signup into a role-and-tenant-scoped
// member. Validation fails fast with distinct error kinds; the conditional
// mark-used write is the sole linearization point for concurrent redemptions
// of one code.
func (e *Engine) RedeemInvitation(ctx context.Context, code, email, name, password string) (*RedeemResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	inv, err := e.invitations.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, mapProviderErr(err)
	}
	if inv.IsUsed() {
		return nil, ErrAlreadyUsed
	}
	if inv.IsExpired(e.Now()) {
		return nil, ErrExpired
	}
	if inv.TargetEmail != nil && !strings.EqualFold(*inv.TargetEmail, email) {
		return nil, ErrEmailMismatch
	}

	// Step 5: find-or-create the directory account. A pre-existing account is
	// reused only when the supplied password proves control of it.
	var (
		ref             *identity.Ref
		createdIdentity bool
	)
	err = e.withRetry(ctx, "find directory account", func(ctx context.Context) error {
		var ferr error
		ref, ferr = e.dir.FindByEmail(ctx, email)
		if errors.Is(ferr, identity.ErrNotFound) {
			return nil
		}
		return ferr
	})
	if err != nil {
		return nil, mapProviderErr(err)
	}
	if ref == nil {
		err = e.withRetry(ctx, "create directory account", func(ctx context.Context) error {
			var cerr error
			ref, cerr = e.dir.CreateAccount(ctx, email, password, true)
			return cerr
		})
		if err != nil {
			return nil, mapProviderErr(err)
		}
		createdIdentity = true
	} else {
		if _, aerr := e.dir.Authenticate(ctx, email, password); aerr != nil {
			if errors.Is(aerr, identity.ErrBadCredentials) {
				return nil, fmt.Errorf("existing account requires its password: %w", ErrUnauthorized)
			}
			return nil, mapProviderErr(aerr)
		}
	}

	// Step 6: create-or-update the profile with the granted role and tenant.
	prior, perr := e.profiles.GetByIdentityID(ctx, ref.ID)
	if perr != nil && !errors.Is(perr, store.ErrNotFound) {
		e.rollbackIdentity(ctx, ref.ID, createdIdentity)
		return nil, mapProviderErr(perr)
	}
	profile := &models.UserProfile{
		IdentityID: ref.ID,
		Email:      email,
		Name:       name,
		Role:       inv.Role,
		TenantID:   &inv.TenantID,
		IsActive:   true,
	}
	if err := e.withRetry(ctx, "upsert profile", func(ctx context.Context) error {
		return e.profiles.Upsert(ctx, profile)
	}); err != nil {
		e.rollbackIdentity(ctx, ref.ID, createdIdentity)
		return nil, mapProviderErr(err)
	}

	// Step 7: conditional mark-used. Not retried: a timeout leaves the
	// outcome ambiguous and must be re-resolved by re-reading the row.
	now := e.Now()
	var applied bool
	err = e.callOnce(ctx, func(ctx context.Context) error {
		var merr error
		applied, merr = e.invitations.MarkUsed(ctx, code, email, now)
		return merr
	})
	if err != nil {
		applied, err = e.resolveAmbiguousMarkUsed(ctx, code, email, err)
		if err != nil {
			e.compensateRedemption(ctx, profile, prior, ref.ID, createdIdentity)
			return nil, err
		}
	}
	if !applied {
		// Lost the race: undo the grant this invocation made and report.
		e.compensateRedemption(ctx, profile, prior, ref.ID, createdIdentity)
		return nil, ErrAlreadyUsed
	}

	return &RedeemResult{ProfileID: profile.ID, Role: inv.Role, TenantID: inv.TenantID}, nil
}

// resolveAmbiguousMarkUsed re-reads the code after a failed conditional write
// to decide whether it was applied.
func (e *Engine) resolveAmbiguousMarkUsed(ctx context.Context, code, email string, cause error) (bool, error) {
	inv, err := e.invitations.GetByCode(ctx, code)
	if err != nil {
		return false, mapProviderErr(cause)
	}
	if inv.UsedAt == nil {
		return false, mapProviderErr(cause)
	}
	if inv.UsedBy != nil && strings.EqualFold(*inv.UsedBy, email) {
		return true, nil
	}
	return false, nil
}

// compensateRedemption undoes the profile grant of a losing redemption: a
// freshly created profile is deactivated (and its fresh identity deleted), a
// pre-existing profile is restored to its prior role and tenant.
func (e *Engine) compensateRedemption(ctx context.Context, granted *models.UserProfile, prior *models.UserProfile, identityID uuid.UUID, createdIdentity bool) {
	if prior != nil {
		restore := *prior
		if err := e.profiles.Upsert(ctx, &restore); err != nil {
			e.logger.Error("compensate: restore profile failed",
				zap.Error(err), zap.String("profile_id", prior.ID.String()))
			return
		}
		// The upsert reactivates unconditionally; put back the prior state
		// when the profile was deactivated before the redemption attempt.
		if !prior.IsActive {
			if err := e.profiles.SetActive(ctx, prior.ID, false); err != nil {
				e.logger.Error("compensate: redeactivate profile failed",
					zap.Error(err), zap.String("profile_id", prior.ID.String()))
			}
		}
		return
	}
	if err := e.profiles.SetActive(ctx, granted.ID, false); err != nil {
		e.logger.Error("compensate: deactivate profile failed",
			zap.Error(err), zap.String("profile_id", granted.ID.String()))
	}
	e.rollbackIdentity(ctx, identityID, createdIdentity)
}

// rollbackIdentity deletes a directory account this invocation created.
// Pre-existing accounts are never deleted.
func (e *Engine) rollbackIdentity(ctx context.Context, id uuid.UUID, created bool) {
	if !created {
		return
	}
	if err := e.dir.DeleteAccount(ctx, id); err != nil {
		e.logger.Error("rollback: delete directory account failed",
			zap.Error(err), zap.String("identity_id", id.String()))
	}
}

// RevokeInvitation expires a code immediately (soft revoke, audit preserved).
func (e *Engine) RevokeInvitation(ctx context.Context, code string, issuerID uuid.UUID) error {
	inv, err := e.invitations.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("invitation: %w", ErrNotFound)
		}
		return mapProviderErr(err)
	}
	if inv.IsUsed() {
		return fmt.Errorf("invitation already redeemed: %w", ErrInvalidState)
	}

	issuer, err := e.profiles.GetByID(ctx, issuerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("issuer: %w", ErrNotFound)
		}
		return err
	}
	if !issuer.Role.CanIssueInvitations() {
		return fmt.Errorf("role %s cannot revoke invitations: %w", issuer.Role, ErrUnauthorized)
	}
	if issuer.Role != models.RoleSuperadmin && !issuer.BelongsTo(inv.TenantID) {
		return fmt.Errorf("issuer is not a member of the tenant: %w", ErrUnauthorized)
	}

	if err := e.invitations.Expire(ctx, code, e.Now()); err != nil {
		return mapProviderErr(err)
	}
	return nil
}
