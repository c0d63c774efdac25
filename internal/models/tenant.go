package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant onboarding status.
const (
	TenantOnboardingPending   = "pending"
	TenantOnboardingCompleted = "completed"
)

// Tenant represents a provisioned school with isolated data scope.
type Tenant struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	ContactEmail       string    `json:"contact_email"`
	SubscriptionPlan   string    `json:"subscription_plan"`
	SubscriptionStatus string    `json:"subscription_status"`
	OnboardingStatus   string    `json:"onboarding_status"`
	CreatedAt          time.Time `json:"created_at"`
}
