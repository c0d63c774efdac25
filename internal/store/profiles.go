package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightsteps/backend/internal/models"
)

// ProfileRepo handles user_profiles persistence.
type ProfileRepo struct {
	pool *pgxpool.Pool
}

// NewProfileRepo creates a profiles repository.
func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

const profileCols = `id, identity_id, email, COALESCE(name,''), role, tenant_id, is_active, created_at, updated_at`

// Create inserts a profile bound to a directory identity.
func (r *ProfileRepo) Create(ctx context.Context, p *models.UserProfile) error {
	const q = `INSERT INTO user_profiles (id, identity_id, email, name, role, tenant_id, is_active)
		VALUES (gen_random_uuid(), $1, lower($2), NULLIF($3,''), $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, p.IdentityID, p.Email, p.Name, string(p.Role), p.TenantID, p.IsActive).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID returns a profile by ID.
func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	return r.get(ctx, `SELECT `+profileCols+` FROM user_profiles WHERE id = $1`, id)
}

// GetByIdentityID returns the profile bound to a directory identity.
// identity_id is unique: at most one profile per account.
func (r *ProfileRepo) GetByIdentityID(ctx context.Context, identityID uuid.UUID) (*models.UserProfile, error) {
	return r.get(ctx, `SELECT `+profileCols+` FROM user_profiles WHERE identity_id = $1`, identityID)
}

func (r *ProfileRepo) get(ctx context.Context, q string, arg any) (*models.UserProfile, error) {
	var p models.UserProfile
	var role string
	err := r.pool.QueryRow(ctx, q, arg).
		Scan(&p.ID, &p.IdentityID, &p.Email, &p.Name, &role, &p.TenantID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Role = models.Role(role)
	return &p, nil
}

// ListByTenant returns profiles scoped to a tenant, oldest first.
func (r *ProfileRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.UserProfile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileCols+` FROM user_profiles WHERE tenant_id = $1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserProfile
	for rows.Next() {
		var p models.UserProfile
		var role string
		if err := rows.Scan(&p.ID, &p.IdentityID, &p.Email, &p.Name, &role, &p.TenantID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Role = models.Role(role)
		list = append(list, p)
	}
	return list, rows.Err()
}

// Upsert creates the profile or updates role/tenant/name on the existing row
// for the identity, reactivating it. Re-redemption of a still-valid code for
// the same email lands here.
func (r *ProfileRepo) Upsert(ctx context.Context, p *models.UserProfile) error {
	const q = `INSERT INTO user_profiles (id, identity_id, email, name, role, tenant_id, is_active)
		VALUES (gen_random_uuid(), $1, lower($2), NULLIF($3,''), $4, $5, TRUE)
		ON CONFLICT (identity_id) DO UPDATE
		SET role = EXCLUDED.role,
			tenant_id = EXCLUDED.tenant_id,
			name = COALESCE(EXCLUDED.name, user_profiles.name),
			is_active = TRUE,
			updated_at = NOW()
		RETURNING id, is_active, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, p.IdentityID, p.Email, p.Name, string(p.Role), p.TenantID).
		Scan(&p.ID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
}

// SetActive flips is_active. Profiles are never deleted by the workflow.
func (r *ProfileRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_profiles SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
