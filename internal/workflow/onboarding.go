// Package workflow is the HTTP boundary of the provisioning engine. Handlers
// validate input shape and authorization roles only; all business-state
// transitions happen inside the engine.
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

// OnboardingHandler handles onboarding request endpoints.
type OnboardingHandler struct {
	engine   *provision.Engine
	requests store.OnboardingRequests
	logger   *zap.Logger
}

// NewOnboardingHandler creates an onboarding handler.
func NewOnboardingHandler(engine *provision.Engine, requests store.OnboardingRequests, logger *zap.Logger) *OnboardingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardingHandler{engine: engine, requests: requests, logger: logger}
}

// SubmitRequest is the body for POST /onboarding/requests.
type SubmitRequest struct {
	TenantName   string `json:"tenant_name" binding:"required"`
	AdminName    string `json:"admin_name" binding:"required"`
	AdminEmail   string `json:"admin_email" binding:"required,email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	StudentCount int    `json:"student_count" binding:"omitempty,min=0"`
	TeacherCount int    `json:"teacher_count" binding:"omitempty,min=0"`
	Message      string `json:"message"`
}

// ReviewRequest is the body for POST /onboarding/requests/:id/reject.
type ReviewRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Submit handles POST /onboarding/requests (public, anonymous).
func (h *OnboardingHandler) Submit(c *gin.Context) {
	var body SubmitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req := &models.OnboardingRequest{
		TenantName:   body.TenantName,
		AdminName:    body.AdminName,
		AdminEmail:   body.AdminEmail,
		Phone:        body.Phone,
		Address:      body.Address,
		StudentCount: body.StudentCount,
		TeacherCount: body.TeacherCount,
		Message:      body.Message,
	}
	if err := h.engine.SubmitOnboarding(c.Request.Context(), req); err != nil {
		h.logger.Error("submit onboarding failed", zap.Error(err))
		respondError(c, err)
		return
	}
	response.Created(c, gin.H{"request_id": req.ID})
}

// List handles GET /onboarding/requests?status= (superadmin only).
func (h *OnboardingHandler) List(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", models.RequestPending, models.RequestApproved, models.RequestRejected:
	default:
		response.BadRequest(c, "invalid status filter")
		return
	}
	list, err := h.requests.ListByStatus(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("list onboarding requests failed", zap.Error(err))
		response.Internal(c, "failed to list requests")
		return
	}
	response.OK(c, list)
}

// Approve handles POST /onboarding/requests/:id/approve (superadmin only).
func (h *OnboardingHandler) Approve(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}
	reviewerID := c.MustGet(middleware.ContextProfileID).(uuid.UUID)

	result, err := h.engine.ApproveOnboarding(c.Request.Context(), requestID, reviewerID)
	if err != nil {
		if _, partial := provision.AsPartialFailure(err); partial && result != nil {
			// Commit point was reached: the tenant exists. Surface both.
			h.logger.Error("approval partially failed", zap.Error(err),
				zap.String("tenant_id", result.TenantID.String()))
			respondError(c, err)
			return
		}
		h.logger.Warn("approval failed", zap.Error(err), zap.String("request_id", requestID.String()))
		respondError(c, err)
		return
	}
	response.OK(c, result)
}

// Reject handles POST /onboarding/requests/:id/reject (superadmin only).
func (h *OnboardingHandler) Reject(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid request id")
		return
	}
	var body ReviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "reason required")
		return
	}
	reviewerID := c.MustGet(middleware.ContextProfileID).(uuid.UUID)

	if err := h.engine.RejectOnboarding(c.Request.Context(), requestID, reviewerID, body.Reason); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, gin.H{"status": models.RequestRejected})
}
