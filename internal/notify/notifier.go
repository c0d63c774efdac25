// Package notify is the outbound email client. Sends are fire-and-forget:
// failures are logged and recorded in email_logs but never propagated into a
// provisioning pipeline.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/store"
	"github.com/brightsteps/backend/pkg/queue"
)

// Notifier is the surface the provisioning engine consumes.
type Notifier interface {
	// Send queues an email. TenantID may be nil for emails not tied to a
	// tenant (e.g. rejected onboarding requests).
	Send(ctx context.Context, to, template string, data map[string]string, tenantID *uuid.UUID) error
}

// QueueNotifier records an email_logs row and enqueues delivery via Redis.
type QueueNotifier struct {
	logs   store.EmailLogs
	queue  *queue.Queue
	logger *zap.Logger
}

// NewQueueNotifier creates a queue-backed notifier.
func NewQueueNotifier(logs store.EmailLogs, q *queue.Queue, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueNotifier{logs: logs, queue: q, logger: logger}
}

// Send writes the audit row and enqueues the delivery job.
func (n *QueueNotifier) Send(ctx context.Context, to, template string, data map[string]string, tenantID *uuid.UUID) error {
	log := &models.EmailLog{
		TenantID:       tenantID,
		RecipientEmail: to,
		Template:       template,
		Subject:        SubjectFor(template, data),
		Status:         models.EmailQueued,
	}
	if err := n.logs.Create(ctx, log); err != nil {
		n.logger.Error("email log create failed", zap.Error(err), zap.String("template", template))
		return err
	}
	payload := queue.EmailPayload{
		EmailLogID:     log.ID,
		RecipientEmail: to,
		Template:       template,
		Data:           data,
	}
	if err := n.queue.EnqueueEmail(ctx, payload); err != nil {
		n.logger.Error("email enqueue failed", zap.Error(err), zap.String("template", template))
		_ = n.logs.MarkFailed(ctx, log.ID, "enqueue: "+err.Error())
		return err
	}
	return nil
}
