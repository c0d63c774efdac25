package models

import (
	"time"

	"github.com/google/uuid"
)

// Email log status.
const (
	EmailQueued = "queued"
	EmailSent   = "sent"
	EmailFailed = "failed"
)

// EmailLog records one notifier send attempt for audit and resend.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       *uuid.UUID `json:"tenant_id,omitempty"`
	RecipientEmail string     `json:"recipient_email"`
	Template       string     `json:"template"`
	Subject        string     `json:"subject"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
