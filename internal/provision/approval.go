package provision

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/identity"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/notify"
	"github.com/brightsteps/backend/internal/store"
)

// ApprovalResult is the outcome of a tenant approval.
type ApprovalResult struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	AdminEmail   string    `json:"admin_email"`
	TempPassword string    `json:"temp_password,omitempty"`
	// Replayed is true when the request was already approved and the
	// previously provisioned tenant was returned (idempotent re-approve).
	Replayed bool `json:"replayed,omitempty"`
}

// ApproveOnboarding turns a pending request into a provisioned tenant with a
// principal account. Steps run strictly in order; profile creation is the
// commit point. Re-invoking on an approved request is a no-op returning the
// recorded tenant. A PartialFailureError may be returned alongside a non-nil
// result when a post-commit status write did not persist.
func (e *Engine) ApproveOnboarding(ctx context.Context, requestID, reviewerID uuid.UUID) (*ApprovalResult, error) {
	reviewer, err := e.profiles.GetByID(ctx, reviewerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("reviewer: %w", ErrNotFound)
		}
		return nil, err
	}
	if reviewer.Role != models.RoleSuperadmin {
		return nil, fmt.Errorf("approve requires superadmin: %w", ErrUnauthorized)
	}

	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("request: %w", ErrNotFound)
		}
		return nil, err
	}
	switch req.Status {
	case models.RequestPending:
	case models.RequestApproved:
		return e.replayApproval(ctx, req)
	default:
		return nil, fmt.Errorf("request is %s: %w", req.Status, ErrInvalidState)
	}

	if n, err := e.tenants.CountByContactEmail(ctx, req.AdminEmail); err == nil && n > 0 {
		e.logger.Warn("contact email already used by an active tenant",
			zap.String("email", req.AdminEmail), zap.Int("existing", n))
	}

	// Step 1: create the tenant.
	tenant := &models.Tenant{
		Name:               req.TenantName,
		ContactEmail:       req.AdminEmail,
		SubscriptionPlan:   "trial",
		SubscriptionStatus: "active",
		OnboardingStatus:   models.TenantOnboardingPending,
	}
	if err := e.createTenantUniqueSlug(ctx, tenant); err != nil {
		return nil, mapProviderErr(err)
	}

	// Step 2: temporary credential.
	tempPassword, err := GenerateTempPassword()
	if err != nil {
		e.rollbackTenant(ctx, tenant.ID)
		return nil, err
	}

	// Step 3: directory account, pre-confirmed so the first login works.
	var ref *identity.Ref
	err = e.withRetry(ctx, "create directory account", func(ctx context.Context) error {
		var cerr error
		ref, cerr = e.dir.CreateAccount(ctx, req.AdminEmail, tempPassword, true)
		return cerr
	})
	if err != nil {
		e.rollbackTenant(ctx, tenant.ID)
		return nil, mapProviderErr(err)
	}

	// Step 4: profile bound to the new identity. Commit point once it exists.
	profile := &models.UserProfile{
		IdentityID: ref.ID,
		Email:      req.AdminEmail,
		Name:       req.AdminName,
		Role:       models.RolePrincipal,
		TenantID:   &tenant.ID,
		IsActive:   true,
	}
	err = e.withRetry(ctx, "create profile", func(ctx context.Context) error {
		return e.profiles.Create(ctx, profile)
	})
	if err != nil {
		if derr := e.dir.DeleteAccount(ctx, ref.ID); derr != nil {
			e.logger.Error("rollback: delete directory account failed",
				zap.Error(derr), zap.String("identity_id", ref.ID.String()))
		}
		e.rollbackTenant(ctx, tenant.ID)
		return nil, mapProviderErr(err)
	}

	result := &ApprovalResult{TenantID: tenant.ID, AdminEmail: req.AdminEmail, TempPassword: tempPassword}

	// Steps 5-6: post-commit status writes, retried then surfaced as partial
	// failure. The tenant is considered provisioned from here on.
	var failed []string
	var lastErr error
	if err := e.withRetry(ctx, "complete tenant onboarding", func(ctx context.Context) error {
		return e.tenants.SetOnboardingStatus(ctx, tenant.ID, models.TenantOnboardingCompleted)
	}); err != nil {
		failed = append(failed, "tenant.onboarding_status")
		lastErr = err
	}
	if err := e.withRetry(ctx, "mark request approved", func(ctx context.Context) error {
		applied, aerr := e.requests.MarkReviewed(ctx, req.ID, models.RequestApproved, reviewerID, &tenant.ID, e.Now())
		if aerr != nil {
			return aerr
		}
		if !applied {
			return fmt.Errorf("request %s left pending state concurrently: %w", req.ID, ErrInvalidState)
		}
		return nil
	}); err != nil {
		failed = append(failed, "request.status")
		lastErr = err
	}

	// Step 7: welcome email, best-effort.
	e.notifyWelcome(ctx, tenant, req, tempPassword)

	if len(failed) > 0 {
		return result, &PartialFailureError{Entity: "tenant", EntityID: tenant.ID, Fields: failed, Err: lastErr}
	}
	return result, nil
}

// replayApproval serves the idempotent re-approve: the request recorded the
// tenant it provisioned, so return exactly that tenant. The slug is never
// re-derived here: it may have been suffixed at creation when an unrelated
// tenant held the base slug.
func (e *Engine) replayApproval(ctx context.Context, req *models.OnboardingRequest) (*ApprovalResult, error) {
	if req.TenantID == nil {
		return nil, fmt.Errorf("approved request %s has no recorded tenant: %w", req.ID, ErrNotFound)
	}
	tenant, err := e.tenants.GetByID(ctx, *req.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("approved request %s has no tenant: %w", req.ID, ErrNotFound)
		}
		return nil, err
	}
	return &ApprovalResult{TenantID: tenant.ID, AdminEmail: req.AdminEmail, Replayed: true}, nil
}

// RejectOnboarding is a single guarded write: pending -> rejected, no
// provisioning side effects. The applicant is notified best-effort.
func (e *Engine) RejectOnboarding(ctx context.Context, requestID, reviewerID uuid.UUID, reason string) error {
	reviewer, err := e.profiles.GetByID(ctx, reviewerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("reviewer: %w", ErrNotFound)
		}
		return err
	}
	if reviewer.Role != models.RoleSuperadmin {
		return fmt.Errorf("reject requires superadmin: %w", ErrUnauthorized)
	}

	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("request: %w", ErrNotFound)
		}
		return err
	}

	applied, err := e.requests.MarkReviewed(ctx, requestID, models.RequestRejected, reviewerID, nil, e.Now())
	if err != nil {
		return mapProviderErr(err)
	}
	if !applied {
		return fmt.Errorf("request is not pending: %w", ErrInvalidState)
	}

	if err := e.notifier.Send(ctx, req.AdminEmail, notify.TemplateRequestRejected, map[string]string{
		"admin_name":  req.AdminName,
		"tenant_name": req.TenantName,
		"reason":      reason,
	}, nil); err != nil {
		e.logger.Warn("rejection email failed", zap.Error(err), zap.String("request_id", requestID.String()))
	}
	return nil
}

// createTenantUniqueSlug creates the tenant, suffixing the derived slug when
// an unrelated tenant already holds it.
func (e *Engine) createTenantUniqueSlug(ctx context.Context, tenant *models.Tenant) error {
	base := Slugify(tenant.Name)
	if base == "" {
		base = "school"
	}
	for i := 0; i < maxAttempts; i++ {
		tenant.Slug = base
		if i > 0 {
			tenant.Slug = base + "-" + strconv.Itoa(i+1)
		}
		err := e.withRetry(ctx, "create tenant", func(ctx context.Context) error {
			return e.tenants.Create(ctx, tenant)
		})
		if err == nil {
			return nil
		}
		if !isDuplicate(err) {
			return err
		}
	}
	return fmt.Errorf("no free slug for %q", tenant.Name)
}

func (e *Engine) rollbackTenant(ctx context.Context, tenantID uuid.UUID) {
	if err := e.tenants.Delete(ctx, tenantID); err != nil {
		e.logger.Error("rollback: delete tenant failed",
			zap.Error(err), zap.String("tenant_id", tenantID.String()))
	}
}

func (e *Engine) notifyWelcome(ctx context.Context, tenant *models.Tenant, req *models.OnboardingRequest, tempPassword string) {
	err := e.notifier.Send(ctx, req.AdminEmail, notify.TemplateTenantWelcome, map[string]string{
		"admin_name":    req.AdminName,
		"admin_email":   req.AdminEmail,
		"tenant_name":   tenant.Name,
		"temp_password": tempPassword,
		"login_url":     e.AppBaseURL + "/login",
	}, &tenant.ID)
	if err != nil {
		e.logger.Warn("welcome email failed", zap.Error(err), zap.String("tenant_id", tenant.ID.String()))
	}
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func mapProviderErr(err error) error {
	if errors.Is(err, identity.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}
