package workflow

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/middleware"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/provision"
	"github.com/brightsteps/backend/internal/store"
	"github.com/brightsteps/backend/pkg/response"
)

// MemberHandler handles tenant member administration endpoints.
type MemberHandler struct {
	engine    *provision.Engine
	profiles  store.Profiles
	emailLogs store.EmailLogs
	logger    *zap.Logger
}

// NewMemberHandler creates a member admin handler.
func NewMemberHandler(engine *provision.Engine, profiles store.Profiles, emailLogs store.EmailLogs, logger *zap.Logger) *MemberHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberHandler{engine: engine, profiles: profiles, emailLogs: emailLogs, logger: logger}
}

// tenantAccess verifies the caller may read tenant-scoped admin data:
// superadmin always, principal/admin of the same tenant otherwise.
func tenantAccess(c *gin.Context, tenantID uuid.UUID) bool {
	role, _ := c.MustGet(middleware.ContextRole).(string)
	if role == string(models.RoleSuperadmin) {
		return true
	}
	if role != string(models.RolePrincipal) && role != string(models.RoleAdmin) {
		return false
	}
	own, ok := c.Get(middleware.ContextTenantID)
	return ok && own.(uuid.UUID) == tenantID
}

// ListMembers handles GET /tenants/:id/members.
func (h *MemberHandler) ListMembers(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid tenant id")
		return
	}
	if !tenantAccess(c, tenantID) {
		response.Forbidden(c, "not authorized for this tenant")
		return
	}
	list, err := h.profiles.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("list members failed", zap.Error(err))
		response.Internal(c, "failed to list members")
		return
	}
	response.OK(c, list)
}

// ListEmails handles GET /tenants/:id/emails (notifier audit trail).
func (h *MemberHandler) ListEmails(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid tenant id")
		return
	}
	if !tenantAccess(c, tenantID) {
		response.Forbidden(c, "not authorized for this tenant")
		return
	}
	list, err := h.emailLogs.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err))
		response.Internal(c, "failed to list email logs")
		return
	}
	response.OK(c, list)
}

// ResetPassword handles POST /members/:id/reset-password.
func (h *MemberHandler) ResetPassword(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid member id")
		return
	}
	callerID := c.MustGet(middleware.ContextProfileID).(uuid.UUID)

	tempPassword, err := h.engine.ResetMemberPassword(c.Request.Context(), memberID, callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, gin.H{"temp_password": tempPassword})
}

// Deactivate handles POST /members/:id/deactivate.
func (h *MemberHandler) Deactivate(c *gin.Context) {
	memberID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid member id")
		return
	}
	callerID := c.MustGet(middleware.ContextProfileID).(uuid.UUID)

	if err := h.engine.DeactivateMember(c.Request.Context(), memberID, callerID); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, gin.H{"deactivated": true})
}
