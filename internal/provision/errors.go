package provision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Workflow error taxonomy. Validation errors are returned immediately with no
// side effects; ErrProviderUnavailable is retried before the commit point and
// degrades to PartialFailureError after it.
var (
	ErrInvalidState        = errors.New("invalid state for requested transition")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("not authorized")
	ErrInvalidCode         = errors.New("invalid invitation code")
	ErrAlreadyUsed         = errors.New("invitation code already used")
	ErrExpired             = errors.New("invitation code expired")
	ErrEmailMismatch       = errors.New("invitation is for a different email")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// PartialFailureError reports that a pipeline passed its commit point but one
// or more post-commit writes did not persist after retries. It names the
// entity and fields so a repair pass can finish the job; it is never swallowed.
type PartialFailureError struct {
	Entity   string
	EntityID uuid.UUID
	Fields   []string
	Err      error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure: %s %s fields [%s] not persisted: %v",
		e.Entity, e.EntityID, strings.Join(e.Fields, ", "), e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// AsPartialFailure extracts a PartialFailureError from err, if any.
func AsPartialFailure(err error) (*PartialFailureError, bool) {
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}
