package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/notify"
	"github.com/brightsteps/backend/internal/store"
	"github.com/brightsteps/backend/pkg/queue"
)

// EmailProcessor delivers queued notifier emails and records the outcome in
// the email log.
type EmailProcessor struct {
	logs   store.EmailLogs
	mailer *notify.Mailer
	queue  *queue.Queue
	logger *zap.Logger
}

// NewEmailProcessor creates an email delivery processor.
func NewEmailProcessor(logs store.EmailLogs, mailer *notify.Mailer, q *queue.Queue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{logs: logs, mailer: mailer, queue: q, logger: logger}
}

// Process executes one email delivery job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	log, err := p.logs.GetByID(ctx, payload.EmailLogID)
	if err != nil {
		return fmt.Errorf("email log not found: %s", payload.EmailLogID)
	}
	if log.Status == models.EmailSent {
		p.logger.Info("email already sent", zap.String("email_log_id", log.ID.String()))
		return nil
	}

	subject := notify.SubjectFor(payload.Template, payload.Data)
	body := notify.BodyFor(payload.Template, payload.Data)
	if err := p.mailer.Send(payload.RecipientEmail, subject, body); err != nil {
		if merr := p.logs.MarkFailed(ctx, log.ID, err.Error()); merr != nil {
			p.logger.Error("mark email failed errored", zap.Error(merr), zap.String("email_log_id", log.ID.String()))
		}
		return fmt.Errorf("deliver: %w", err)
	}
	if err := p.logs.MarkSent(ctx, log.ID, time.Now()); err != nil {
		p.logger.Error("mark email sent failed", zap.Error(err), zap.String("email_log_id", log.ID.String()))
	}

	p.logger.Info("email delivered",
		zap.String("email_log_id", log.ID.String()),
		zap.String("template", payload.Template))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
