package models

import (
	"time"

	"github.com/google/uuid"
)

// Onboarding request status. Transitions only pending->approved or
// pending->rejected, exactly once; rows are kept forever for audit.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// OnboardingRequest is a school's application for access.
type OnboardingRequest struct {
	ID           uuid.UUID  `json:"id"`
	TenantName   string     `json:"tenant_name"`
	AdminName    string     `json:"admin_name"`
	AdminEmail   string     `json:"admin_email"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	StudentCount int        `json:"student_count"`
	TeacherCount int        `json:"teacher_count"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	ReviewedBy   *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	// TenantID records the tenant provisioned by an approval. The approved
	// state owns this link; slug lookups cannot stand in for it because slugs
	// are suffixed on collision.
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
