// Package identity wraps the external credential directory. The directory
// stores email+password accounts and nothing else: application roles and
// tenant scope live on UserProfile, never in directory metadata.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates no account exists for the email.
	ErrNotFound = errors.New("identity not found")
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrWeakPassword indicates the password fails the directory's policy.
	ErrWeakPassword = errors.New("password too weak")
	// ErrBadCredentials indicates an authentication failure.
	ErrBadCredentials = errors.New("invalid email or password")
	// ErrUnavailable indicates a transient directory failure.
	ErrUnavailable = errors.New("identity directory unavailable")
)

// Ref identifies a directory account.
type Ref struct {
	ID        uuid.UUID
	Email     string
	Confirmed bool
	CreatedAt time.Time
}

// Directory is the identity provider surface the provisioning engine consumes.
type Directory interface {
	// FindByEmail returns the account for email, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*Ref, error)
	// CreateAccount creates an account. preConfirmed skips the
	// email-verification round trip so the first login works immediately.
	CreateAccount(ctx context.Context, email, password string, preConfirmed bool) (*Ref, error)
	// DeleteAccount removes an account. Used only for rollback; best-effort.
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	// Authenticate verifies email+password, returning the account or ErrBadCredentials.
	Authenticate(ctx context.Context, email, password string) (*Ref, error)
	// UpdatePassword replaces the account's credential.
	UpdatePassword(ctx context.Context, id uuid.UUID, password string) error
}
