package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/identity"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/store"
	"github.com/brightsteps/backend/pkg/response"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token   string              `json:"token"`
	Profile *models.UserProfile `json:"profile"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	dir      identity.Directory
	profiles store.Profiles
	jwt      *JWTService
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(dir identity.Directory, profiles store.Profiles, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{dir: dir, profiles: profiles, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login: authenticate against the directory, load
// the active profile, issue a session token. The profile, not the directory,
// is the source of role and tenant scope.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	ref, err := h.dir.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrBadCredentials) {
			response.Unauthorized(c, "invalid email or password")
			return
		}
		h.logger.Error("directory authenticate failed", zap.Error(err))
		response.ServiceUnavailable(c, "identity directory unavailable")
		return
	}

	profile, err := h.profiles.GetByIdentityID(c.Request.Context(), ref.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Forbidden(c, "no profile for this account")
			return
		}
		response.Internal(c, "failed to load profile")
		return
	}
	if !profile.IsActive {
		response.Forbidden(c, "account is deactivated")
		return
	}

	token, err := h.jwt.Generate(profile)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Token: token, Profile: profile})
}
