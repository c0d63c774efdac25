// Package provision is the tenant provisioning engine: it runs the onboarding
// approval and invitation redemption pipelines as ordered steps with
// compensating rollback, and is the sole writer of Tenant.onboarding_status,
// UserProfile.role/tenant_id and InvitationCode.used_at.
package provision

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/identity"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/notify"
	"github.com/brightsteps/backend/internal/store"
)

const (
	// maxAttempts bounds retries of transient failures (and post-commit writes).
	maxAttempts = 3
	// defaultCallTimeout bounds each external call.
	defaultCallTimeout = 10 * time.Second
	// DefaultInviteTTL is the invitation validity when the issuer gives none.
	DefaultInviteTTL = 7 * 24 * time.Hour
)

// Engine orchestrates the provisioning pipelines. It holds no state beyond
// the current invocation; many invocations may run concurrently, including
// across processes.
type Engine struct {
	dir         identity.Directory
	requests    store.OnboardingRequests
	tenants     store.Tenants
	profiles    store.Profiles
	invitations store.Invitations
	notifier    notify.Notifier
	logger      *zap.Logger

	// Now and RetryBackoff are overridable for tests.
	Now          func() time.Time
	RetryBackoff time.Duration
	CallTimeout  time.Duration
	InviteTTL    time.Duration
	AppBaseURL   string
}

// NewEngine creates a provisioning engine.
func NewEngine(dir identity.Directory, requests store.OnboardingRequests, tenants store.Tenants,
	profiles store.Profiles, invitations store.Invitations, notifier notify.Notifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		dir:          dir,
		requests:     requests,
		tenants:      tenants,
		profiles:     profiles,
		invitations:  invitations,
		notifier:     notifier,
		logger:       logger,
		Now:          time.Now,
		RetryBackoff: 500 * time.Millisecond,
		CallTimeout:  defaultCallTimeout,
		InviteTTL:    DefaultInviteTTL,
	}
}

// SubmitOnboarding records a school's application (anonymous submission).
func (e *Engine) SubmitOnboarding(ctx context.Context, req *models.OnboardingRequest) error {
	req.AdminEmail = strings.ToLower(strings.TrimSpace(req.AdminEmail))
	req.TenantName = strings.TrimSpace(req.TenantName)
	req.Status = models.RequestPending
	return e.withRetry(ctx, "create onboarding request", func(ctx context.Context) error {
		return e.requests.Create(ctx, req)
	})
}

// withRetry runs fn with a bounded timeout, retrying transient failures up to
// maxAttempts with doubling backoff. Non-transient errors return immediately.
func (e *Engine) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := e.RetryBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.CallTimeout)
		err = fn(callCtx)
		cancel()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt < maxAttempts {
			e.logger.Warn("transient failure, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return err
}

// callOnce runs fn under the per-call timeout without retry. Used for the
// conditional mark-used write, whose outcome is ambiguous on timeout.
func (e *Engine) callOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func isTransient(err error) bool {
	return errors.Is(err, identity.ErrUnavailable) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
