package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/notify"
	"github.com/brightsteps/backend/internal/store"
)

// canAdminister reports whether caller may manage member's account: a
// superadmin always, a principal or admin only within their own tenant.
func canAdminister(caller, member *models.UserProfile) bool {
	if caller.Role == models.RoleSuperadmin {
		return true
	}
	if caller.Role != models.RolePrincipal && caller.Role != models.RoleAdmin {
		return false
	}
	return member.TenantID != nil && caller.BelongsTo(*member.TenantID)
}

// ResetMemberPassword generates a fresh temporary password for a member,
// replaces their directory credential and mails it to them. Returns the
// temporary password so admin tooling can display it once.
func (e *Engine) ResetMemberPassword(ctx context.Context, memberProfileID, callerProfileID uuid.UUID) (string, error) {
	caller, member, err := e.loadCallerAndMember(ctx, callerProfileID, memberProfileID)
	if err != nil {
		return "", err
	}
	if !canAdminister(caller, member) {
		return "", fmt.Errorf("cannot reset password for this member: %w", ErrUnauthorized)
	}

	tempPassword, err := GenerateTempPassword()
	if err != nil {
		return "", err
	}
	if err := e.withRetry(ctx, "update directory password", func(ctx context.Context) error {
		return e.dir.UpdatePassword(ctx, member.IdentityID, tempPassword)
	}); err != nil {
		return "", mapProviderErr(err)
	}

	if err := e.notifier.Send(ctx, member.Email, notify.TemplatePasswordReset, map[string]string{
		"name":          member.Name,
		"temp_password": tempPassword,
	}, member.TenantID); err != nil {
		e.logger.Warn("password reset email failed", zap.Error(err),
			zap.String("profile_id", member.ID.String()))
	}
	return tempPassword, nil
}

// DeactivateMember disables a member's profile. Profiles are never deleted;
// deactivation is the only removal this workflow performs.
func (e *Engine) DeactivateMember(ctx context.Context, memberProfileID, callerProfileID uuid.UUID) error {
	caller, member, err := e.loadCallerAndMember(ctx, callerProfileID, memberProfileID)
	if err != nil {
		return err
	}
	if !canAdminister(caller, member) {
		return fmt.Errorf("cannot deactivate this member: %w", ErrUnauthorized)
	}
	if caller.ID == member.ID {
		return fmt.Errorf("cannot deactivate yourself: %w", ErrInvalidState)
	}
	if err := e.withRetry(ctx, "deactivate profile", func(ctx context.Context) error {
		return e.profiles.SetActive(ctx, member.ID, false)
	}); err != nil {
		return mapProviderErr(err)
	}
	return nil
}

func (e *Engine) loadCallerAndMember(ctx context.Context, callerID, memberID uuid.UUID) (*models.UserProfile, *models.UserProfile, error) {
	caller, err := e.profiles.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("caller: %w", ErrNotFound)
		}
		return nil, nil, err
	}
	member, err := e.profiles.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("member: %w", ErrNotFound)
		}
		return nil, nil, err
	}
	return caller, member, nil
}
