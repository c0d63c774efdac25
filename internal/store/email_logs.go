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

// EmailLogRepo handles email_logs persistence.
type EmailLogRepo struct {
	pool *pgxpool.Pool
}

// NewEmailLogRepo creates an email logs repository.
func NewEmailLogRepo(pool *pgxpool.Pool) *EmailLogRepo {
	return &EmailLogRepo{pool: pool}
}

const emailLogCols = `id, tenant_id, recipient_email, template, COALESCE(subject,''), status, COALESCE(error_message,''), sent_at, created_at`

// Create inserts a log row (status=queued).
func (r *EmailLogRepo) Create(ctx context.Context, l *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, tenant_id, recipient_email, template, subject, status)
		VALUES (gen_random_uuid(), $1, lower($2), $3, NULLIF($4,''), $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, l.TenantID, l.RecipientEmail, l.Template, l.Subject, l.Status).
		Scan(&l.ID, &l.CreatedAt)
}

// GetByID returns a log row.
func (r *EmailLogRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.EmailLog, error) {
	var l models.EmailLog
	err := r.pool.QueryRow(ctx, `SELECT `+emailLogCols+` FROM email_logs WHERE id = $1`, id).
		Scan(&l.ID, &l.TenantID, &l.RecipientEmail, &l.Template, &l.Subject, &l.Status, &l.ErrorMessage, &l.SentAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// ListByTenant returns log rows for a tenant, newest first.
func (r *EmailLogRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.EmailLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+emailLogCols+` FROM email_logs WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EmailLog
	for rows.Next() {
		var l models.EmailLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.RecipientEmail, &l.Template, &l.Subject, &l.Status, &l.ErrorMessage, &l.SentAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// MarkSent records successful delivery.
func (r *EmailLogRepo) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs SET status = 'sent', sent_at = $2, error_message = NULL WHERE id = $1`, id, at)
	return err
}

// MarkFailed records a delivery failure.
func (r *EmailLogRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_logs SET status = 'failed', error_message = $2 WHERE id = $1`, id, errMsg)
	return err
}
