package workflow

import (
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/middleware"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/provision"
	"github.com/brightsteps/backend/internal/store"
	"github.com/brightsteps/backend/pkg/response"
)

// Invitation codes are 32 chars from an unambiguous alphanumeric alphabet.
var codeRegex = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

// InvitationHandler handles invitation endpoints.
type InvitationHandler struct {
	engine      *provision.Engine
	invitations store.Invitations
	logger      *zap.Logger
}

// NewInvitationHandler creates an invitations handler.
func NewInvitationHandler(engine *provision.Engine, invitations store.Invitations, logger *zap.Logger) *InvitationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationHandler{engine: engine, invitations: invitations, logger: logger}
}

// IssueRequest is the body for POST /invitations.
type IssueRequest struct {
	TenantID    uuid.UUID `json:"tenant_id" binding:"required"`
	Role        string    `json:"role" binding:"required"`
	TargetEmail *string   `json:"target_email" binding:"omitempty,email"`
	TTLHours    int       `json:"ttl_hours" binding:"omitempty,min=1"`
}

// RedeemRequest is the body for POST /invitations/redeem.
type RedeemRequest struct {
	Code     string `json:"code" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required,min=8"`
}

// Issue handles POST /invitations (superadmin, principal, admin).
func (h *InvitationHandler) Issue(c *gin.Context) {
	var body IssueRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	issuerID := c.MustGet(middleware.ContextProfileID).(uuid.UUID)

	ttl := time.Duration(body.TTLHours) * time.Hour
	inv, err := h.engine.IssueInvitation(c.Request.Context(), body.TenantID, models.Role(body.Role), issuerID, body.TargetEmail, ttl)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, inv)
}

// List handles GET /invitations (scoped to caller's tenant; superadmin may
// pass ?tenant_id= for any tenant).
func (h *InvitationHandler) List(c *gin.Context) {
	role, _ := c.MustGet(middleware.ContextRole).(string)

	var tenantID uuid.UUID
	if q := c.Query("tenant_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			response.BadRequest(c, "invalid tenant id")
			return
		}
		if role != string(models.RoleSuperadmin) {
			if own, ok := c.Get(middleware.ContextTenantID); !ok || own.(uuid.UUID) != id {
				response.Forbidden(c, "not authorized for this tenant")
				return
			}
		}
		tenantID = id
	} else {
		own, ok := c.Get(middleware.ContextTenantID)
		if !ok {
			response.BadRequest(c, "tenant_id required")
			return
		}
		tenantID = own.(uuid.UUID)
	}

	list, err := h.invitations.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("list invitations failed", zap.Error(err))
		response.Internal(c, "failed to list invitations")
		return
	}
	response.OK(c, list)
}

// Redeem handles POST /invitations/redeem (public, anonymous).
func (h *InvitationHandler) Redeem(c *gin.Context) {
	var body RedeemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !codeRegex.MatchString(body.Code) {
		respondError(c, provision.ErrInvalidCode)
		return
	}

	result, err := h.engine.RedeemInvitation(c.Request.Context(), body.Code, body.Email, body.Name, body.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, result)
}

// Revoke handles POST /invitations/:code/revoke (superadmin, principal, admin).
func (h *InvitationHandler) Revoke(c *gin.Context) {
	code := c.Param("code")
	if !codeRegex.MatchString(code) {
		response.BadRequest(c, "invalid code format")
		return
	}
	issuerID := c.MustGet(middleware.ContextProfileID).(uuid.UUID)

	if err := h.engine.RevokeInvitation(c.Request.Context(), code, issuerID); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, gin.H{"revoked": true})
}
