// Package store is the record store client: typed CRUD over the workflow's
// four tables plus the email log. The provisioning engine depends on the
// interfaces here; the Postgres implementations live alongside.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brightsteps/backend/internal/models"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// OnboardingRequests persists school applications.
type OnboardingRequests interface {
	Create(ctx context.Context, req *models.OnboardingRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.OnboardingRequest, error)
	ListByStatus(ctx context.Context, status string) ([]models.OnboardingRequest, error)
	// MarkReviewed transitions pending -> status, recording the reviewer and,
	// for approvals, the provisioned tenant. Returns applied=false when the
	// row is no longer pending.
	MarkReviewed(ctx context.Context, id uuid.UUID, status string, reviewerID uuid.UUID, tenantID *uuid.UUID, at time.Time) (bool, error)
}

// Tenants persists provisioned schools.
type Tenants interface {
	Create(ctx context.Context, t *models.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	CountByContactEmail(ctx context.Context, email string) (int, error)
	SetOnboardingStatus(ctx context.Context, id uuid.UUID, status string) error
	// Delete hard-deletes a tenant. Used only to roll back a failed approval.
	Delete(ctx context.Context, id uuid.UUID) error
}

// Profiles persists user profiles.
type Profiles interface {
	Create(ctx context.Context, p *models.UserProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error)
	GetByIdentityID(ctx context.Context, identityID uuid.UUID) (*models.UserProfile, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.UserProfile, error)
	// Upsert creates the profile or, if one exists for the identity, updates
	// role, tenant, name and reactivates it. Invitation redemption path.
	Upsert(ctx context.Context, p *models.UserProfile) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// Invitations persists invitation codes.
type Invitations interface {
	Create(ctx context.Context, c *models.InvitationCode) error
	GetByCode(ctx context.Context, code string) (*models.InvitationCode, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.InvitationCode, error)
	// MarkUsed sets used_at/used_by only if used_at is currently null.
	// This conditional write is the sole linearization point for concurrent
	// redemptions of one code.
	MarkUsed(ctx context.Context, code, email string, at time.Time) (applied bool, err error)
	// Expire sets expires_at, used for soft revocation.
	Expire(ctx context.Context, code string, at time.Time) error
}

// EmailLogs persists notifier send attempts.
type EmailLogs interface {
	Create(ctx context.Context, l *models.EmailLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EmailLog, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.EmailLog, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}
