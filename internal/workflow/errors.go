package workflow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brightsteps/backend/internal/identity"
	"github.com/brightsteps/backend/internal/provision"
	"github.com/brightsteps/backend/pkg/response"
)

// respondError maps a provisioning error to a stable code and HTTP status.
// Raw provider errors and directory identifiers are never exposed.
func respondError(c *gin.Context, err error) {
	if pf, ok := provision.AsPartialFailure(err); ok {
		response.WithCode(c, http.StatusInternalServerError, "partial_failure", pf.Error())
		return
	}
	switch {
	case errors.Is(err, provision.ErrNotFound):
		response.WithCode(c, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, provision.ErrUnauthorized):
		response.WithCode(c, http.StatusForbidden, "unauthorized", "not authorized for this operation")
	case errors.Is(err, provision.ErrInvalidState):
		response.WithCode(c, http.StatusConflict, "invalid_state", "invalid state for this operation")
	case errors.Is(err, provision.ErrInvalidCode):
		response.WithCode(c, http.StatusNotFound, "invalid_code", "invalid invitation code")
	case errors.Is(err, provision.ErrAlreadyUsed):
		response.WithCode(c, http.StatusConflict, "already_used", "invitation code already used")
	case errors.Is(err, provision.ErrExpired):
		response.WithCode(c, http.StatusGone, "expired", "invitation code expired")
	case errors.Is(err, provision.ErrEmailMismatch):
		response.WithCode(c, http.StatusForbidden, "email_mismatch", "invitation is for a different email")
	case errors.Is(err, identity.ErrEmailTaken):
		response.WithCode(c, http.StatusConflict, "email_taken", "an account already exists for this email")
	case errors.Is(err, identity.ErrWeakPassword):
		response.WithCode(c, http.StatusBadRequest, "weak_password", "password does not meet requirements")
	case errors.Is(err, provision.ErrProviderUnavailable):
		response.WithCode(c, http.StatusServiceUnavailable, "provider_unavailable", "a backing service is unavailable, try again")
	default:
		response.WithCode(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
