package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightsteps/backend/internal/models"
)

// InvitationRepo handles invitation_codes persistence.
type InvitationRepo struct {
	pool *pgxpool.Pool
}

// NewInvitationRepo creates an invitations repository.
func NewInvitationRepo(pool *pgxpool.Pool) *InvitationRepo {
	return &InvitationRepo{pool: pool}
}

const invitationCols = `code, tenant_id, role, invited_by, target_email, expires_at, used_at, used_by, created_at`

// Create inserts an invitation code.
func (r *InvitationRepo) Create(ctx context.Context, c *models.InvitationCode) error {
	const q = `INSERT INTO invitation_codes (code, tenant_id, role, invited_by, target_email, expires_at)
		VALUES ($1, $2, $3, $4, lower($5), $6)
		RETURNING created_at`
	var target any
	if c.TargetEmail != nil {
		target = *c.TargetEmail
	}
	return r.pool.QueryRow(ctx, q, c.Code, c.TenantID, string(c.Role), c.InvitedBy, target, c.ExpiresAt).
		Scan(&c.CreatedAt)
}

// GetByCode returns an invitation by its code string.
func (r *InvitationRepo) GetByCode(ctx context.Context, code string) (*models.InvitationCode, error) {
	var c models.InvitationCode
	var role string
	err := r.pool.QueryRow(ctx, `SELECT `+invitationCols+` FROM invitation_codes WHERE code = $1`, code).
		Scan(&c.Code, &c.TenantID, &role, &c.InvitedBy, &c.TargetEmail, &c.ExpiresAt, &c.UsedAt, &c.UsedBy, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Role = models.Role(role)
	return &c, nil
}

// ListByTenant returns invitations for a tenant, newest first.
func (r *InvitationRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.InvitationCode, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invitationCols+` FROM invitation_codes WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.InvitationCode
	for rows.Next() {
		var c models.InvitationCode
		var role string
		if err := rows.Scan(&c.Code, &c.TenantID, &role, &c.InvitedBy, &c.TargetEmail, &c.ExpiresAt, &c.UsedAt, &c.UsedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Role = models.Role(role)
		list = append(list, c)
	}
	return list, rows.Err()
}

// MarkUsed sets used_at/used_by only if used_at is currently null. Two
// concurrent redemptions of one code cannot both see applied=true.
func (r *InvitationRepo) MarkUsed(ctx context.Context, code, email string, at time.Time) (bool, error) {
	const q = `UPDATE invitation_codes SET used_at = $2, used_by = lower($3) WHERE code = $1 AND used_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, code, at, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Expire sets expires_at (soft revoke; rows are never hard-deleted).
func (r *InvitationRepo) Expire(ctx context.Context, code string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invitation_codes SET expires_at = $2 WHERE code = $1`, code, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
