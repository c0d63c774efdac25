package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/brightsteps/backend/internal/auth"
	"github.com/brightsteps/backend/pkg/response"
)

const (
	// ContextProfileID is the key for the caller's profile ID in gin context.
	ContextProfileID = "profile_id"
	// ContextRole is the key for the caller's role in gin context.
	ContextRole = "role"
	// ContextEmail is the key for the caller's email in gin context.
	ContextEmail = "email"
	// ContextTenantID is the key for the caller's tenant ID (may be absent for superadmin).
	ContextTenantID = "tenant_id"
)

// JWT returns a middleware that validates the session token and sets caller
// identity in context. Caller identity is always explicit from here on; no
// ambient session state exists.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextProfileID, claims.ProfileID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextEmail, claims.Email)
		if claims.TenantID != nil {
			c.Set(ContextTenantID, *claims.TenantID)
		}
		c.Next()
	}
}
