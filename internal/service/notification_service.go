package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-intake-api/internal/models"
	appErrors "github.com/noah-isme/batch-intake-api/pkg/errors"
	"github.com/noah-isme/batch-intake-api/pkg/jobs"
	"github.com/noah-isme/batch-intake-api/pkg/mailer"
)

// JobKindBatchEmail identifies queued batch outcome emails.
const JobKindBatchEmail = "batch_intake_email"

type batchMessageStore interface {
	Create(ctx context.Context, msg *models.BatchMessage) error
	ListByBatch(ctx context.Context, batchID string, limit int) ([]models.BatchMessage, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationConfig controls outbound email.
type NotificationConfig struct {
	EmailEnabled bool
	Recipients   []mail.Address
}

// NotificationService writes the batch activity feed and queues outcome emails.
type NotificationService struct {
	messages batchMessageStore
	queue    jobEnqueuer
	sender   mailer.Sender
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      NotificationConfig
}

// NewNotificationService constructs a NotificationService. The queue is
// attached separately because it dispatches back into Deliver.
func NewNotificationService(messages batchMessageStore, sender mailer.Sender, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{messages: messages, sender: sender, metrics: metrics, logger: logger, cfg: cfg}
}

// AttachQueue sets the queue used for email delivery.
func (s *NotificationService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Post appends an entry to the batch activity feed.
func (s *NotificationService) Post(ctx context.Context, batchID string, kind models.BatchMessageKind, level models.NotificationType, body string, authorID *string) (*models.BatchMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message body is required")
	}
	if kind == "" {
		kind = models.BatchMessageNotification
	}
	if level == "" {
		level = models.NotificationInfo
	}
	msg := &models.BatchMessage{
		BatchIntakeID: batchID,
		Kind:          kind,
		Level:         level,
		Body:          body,
		AuthorID:      authorID,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post batch message")
	}
	return msg, nil
}

// List returns the newest feed entries of a batch.
func (s *NotificationService) List(ctx context.Context, batchID string, limit int) ([]models.BatchMessage, error) {
	messages, err := s.messages.ListByBatch(ctx, batchID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch messages")
	}
	return messages, nil
}

// NotifyOutcome posts a stage outcome to the feed and, when the batch asks for
// email, queues a message to the configured recipients. It reports whether an
// email was queued. Failures are logged, never returned.
func (s *NotificationService) NotifyOutcome(ctx context.Context, batch *models.BatchIntake, level models.NotificationType, body string) bool {
	if _, err := s.Post(ctx, batch.ID, models.BatchMessageNotification, level, body, nil); err != nil {
		s.logger.Warn("failed to post batch outcome", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	if !batch.EmailNotificationEnabled || !s.cfg.EmailEnabled || len(s.cfg.Recipients) == 0 || s.queue == nil {
		return false
	}
	msg := mailer.Message{
		To:      s.cfg.Recipients,
		Subject: fmt.Sprintf("Batch intake %s: %s", batch.Name, level),
		Text:    body,
	}
	job := jobs.Job{ID: uuid.NewString(), Kind: JobKindBatchEmail, Payload: msg, Enqueued: time.Now().UTC()}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to queue batch email", zap.String("batch_id", batch.ID), zap.Error(err))
		return false
	}
	return true
}

// Deliver is the queue handler sending a batch email.
func (s *NotificationService) Deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	if s.sender == nil {
		return fmt.Errorf("no mail sender configured")
	}
	err := s.sender.Send(ctx, msg)
	s.metrics.RecordNotification(err == nil)
	return err
}
