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

// OnboardingRepo handles onboarding_requests persistence.
type OnboardingRepo struct {
	pool *pgxpool.Pool
}

// NewOnboardingRepo creates an onboarding requests repository.
func NewOnboardingRepo(pool *pgxpool.Pool) *OnboardingRepo {
	return &OnboardingRepo{pool: pool}
}

const onboardingCols = `id, tenant_name, admin_name, admin_email, COALESCE(phone,''), COALESCE(address,''),
	student_count, teacher_count, COALESCE(message,''), status, reviewed_by, reviewed_at, tenant_id, created_at`

// Create inserts a pending request.
func (r *OnboardingRepo) Create(ctx context.Context, req *models.OnboardingRequest) error {
	const q = `INSERT INTO onboarding_requests
		(id, tenant_name, admin_name, admin_email, phone, address, student_count, teacher_count, message, status)
		VALUES (gen_random_uuid(), $1, $2, lower($3), NULLIF($4,''), NULLIF($5,''), $6, $7, NULLIF($8,''), 'pending')
		RETURNING id, status, created_at`
	return r.pool.QueryRow(ctx, q,
		req.TenantName, req.AdminName, req.AdminEmail, req.Phone, req.Address,
		req.StudentCount, req.TeacherCount, req.Message).
		Scan(&req.ID, &req.Status, &req.CreatedAt)
}

// GetByID returns a request by ID.
func (r *OnboardingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.OnboardingRequest, error) {
	var req models.OnboardingRequest
	err := r.pool.QueryRow(ctx, `SELECT `+onboardingCols+` FROM onboarding_requests WHERE id = $1`, id).
		Scan(&req.ID, &req.TenantName, &req.AdminName, &req.AdminEmail, &req.Phone, &req.Address,
			&req.StudentCount, &req.TeacherCount, &req.Message, &req.Status, &req.ReviewedBy, &req.ReviewedAt, &req.TenantID, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ListByStatus returns requests in the given status, oldest first. Empty status returns all.
func (r *OnboardingRepo) ListByStatus(ctx context.Context, status string) ([]models.OnboardingRequest, error) {
	q := `SELECT ` + onboardingCols + ` FROM onboarding_requests`
	args := []any{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.OnboardingRequest
	for rows.Next() {
		var req models.OnboardingRequest
		if err := rows.Scan(&req.ID, &req.TenantName, &req.AdminName, &req.AdminEmail, &req.Phone, &req.Address,
			&req.StudentCount, &req.TeacherCount, &req.Message, &req.Status, &req.ReviewedBy, &req.ReviewedAt, &req.TenantID, &req.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

// MarkReviewed transitions pending -> status exactly once; reviewed_by and
// reviewed_at are set together with the status or not at all. tenantID is the
// provisioned tenant on approval, nil on rejection.
func (r *OnboardingRepo) MarkReviewed(ctx context.Context, id uuid.UUID, status string, reviewerID uuid.UUID, tenantID *uuid.UUID, at time.Time) (bool, error) {
	const q = `UPDATE onboarding_requests
		SET status = $2, reviewed_by = $3, reviewed_at = $4, tenant_id = $5
		WHERE id = $1 AND status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, id, status, reviewerID, at, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
