package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightsteps/backend/internal/models"
)

// TenantRepo handles tenants persistence.
type TenantRepo struct {
	pool *pgxpool.Pool
}

// NewTenantRepo creates a tenants repository.
func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

const tenantCols = `id, name, slug, contact_email, subscription_plan, subscription_status, onboarding_status, created_at`

// Create inserts a tenant.
func (r *TenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	const q = `INSERT INTO tenants (id, name, slug, contact_email, subscription_plan, subscription_status, onboarding_status)
		VALUES (gen_random_uuid(), $1, $2, lower($3), $4, $5, $6)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, t.Name, t.Slug, t.ContactEmail, t.SubscriptionPlan, t.SubscriptionStatus, t.OnboardingStatus).
		Scan(&t.ID, &t.CreatedAt)
}

// GetByID returns a tenant by ID.
func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return r.get(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id = $1`, id)
}

// GetBySlug returns a tenant by slug.
func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return r.get(ctx, `SELECT `+tenantCols+` FROM tenants WHERE slug = $1`, slug)
}

func (r *TenantRepo) get(ctx context.Context, q string, arg any) (*models.Tenant, error) {
	var t models.Tenant
	err := r.pool.QueryRow(ctx, q, arg).
		Scan(&t.ID, &t.Name, &t.Slug, &t.ContactEmail, &t.SubscriptionPlan, &t.SubscriptionStatus, &t.OnboardingStatus, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CountByContactEmail counts tenants sharing a contact email. Duplicates are a
// data-quality signal, not an error; the engine only logs them.
func (r *TenantRepo) CountByContactEmail(ctx context.Context, email string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants WHERE contact_email = lower($1)`, email).Scan(&n)
	return n, err
}

// SetOnboardingStatus updates the tenant's onboarding status. The engine is
// the sole writer of this field.
func (r *TenantRepo) SetOnboardingStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tenants SET onboarding_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete hard-deletes a tenant (approval rollback only).
func (r *TenantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	return err
}
