package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLen is the directory's minimum accepted password length.
const MinPasswordLen = 8

// PostgresDirectory is the production Directory backed by the identities table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a Postgres-backed directory.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// FindByEmail returns the account for email (case-insensitive), or ErrNotFound.
func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (*Ref, error) {
	const q = `SELECT id, email, confirmed, created_at FROM identities WHERE lower(email) = lower($1)`
	var ref Ref
	err := d.pool.QueryRow(ctx, q, email).Scan(&ref.ID, &ref.Email, &ref.Confirmed, &ref.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapUnavailable(err)
	}
	return &ref, nil
}

// CreateAccount inserts an account with a bcrypt password hash.
func (d *PostgresDirectory) CreateAccount(ctx context.Context, email, password string, preConfirmed bool) (*Ref, error) {
	if len(password) < MinPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO identities (id, email, password_hash, confirmed)
		VALUES (gen_random_uuid(), lower($1), $2, $3)
		RETURNING id, email, confirmed, created_at`
	var ref Ref
	err = d.pool.QueryRow(ctx, q, email, string(hash), preConfirmed).
		Scan(&ref.ID, &ref.Email, &ref.Confirmed, &ref.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, wrapUnavailable(err)
	}
	return &ref, nil
}

// DeleteAccount removes an account by id.
func (d *PostgresDirectory) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// Authenticate verifies email+password against the stored hash.
func (d *PostgresDirectory) Authenticate(ctx context.Context, email, password string) (*Ref, error) {
	const q = `SELECT id, email, password_hash, confirmed, created_at FROM identities WHERE lower(email) = lower($1)`
	var (
		ref  Ref
		hash string
	)
	err := d.pool.QueryRow(ctx, q, email).Scan(&ref.ID, &ref.Email, &hash, &ref.Confirmed, &ref.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, wrapUnavailable(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return &ref, nil
}

// UpdatePassword replaces the stored hash. Used by the admin password-reset helper.
func (d *PostgresDirectory) UpdatePassword(ctx context.Context, id uuid.UUID, password string) error {
	if len(password) < MinPasswordLen {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	tag, err := d.pool.Exec(ctx, `UPDATE identities SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, string(hash))
	if err != nil {
		return wrapUnavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}

func wrapUnavailable(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUnavailable
	}
	return err
}
