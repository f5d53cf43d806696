package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"merchantcrm/internal/mailer"
	"merchantcrm/internal/models"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskProcessor holds dependencies for our task handlers
type TaskProcessor struct {
	DB      *gorm.DB
	sender  mailer.Sender
	logger  *zap.Logger
	baseURL string
	now     func() time.Time
}

// NewTaskProcessor creates a new TaskProcessor
func NewTaskProcessor(db *gorm.DB, sender mailer.Sender, logger *zap.Logger, baseURL string) *TaskProcessor {
	return &TaskProcessor{
		DB:      db,
		sender:  sender,
		logger:  logger,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// WithClock replaces the time source; tests use it to age records.
func (p *TaskProcessor) WithClock(now func() time.Time) *TaskProcessor {
	p.now = now
	return p
}

// Mux routes every task type to its handler.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSendEmail, p.HandleSendEmailTask)
	mux.HandleFunc(TypeNotifyAlert, p.HandleNotifyAlertTask)
	mux.HandleFunc(TypePurge, p.HandlePurgeTask)
	return mux
}

func (p *TaskProcessor) HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var msg mailer.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	p.logger.Info("email sent", zap.String("subject", msg.Subject))
	return nil
}

func (p *TaskProcessor) HandleNotifyAlertTask(ctx context.Context, t *asynq.Task) error {
	var payload NotifyAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	alert, err := gorm.G[models.Alert](p.DB).Where("id = ?", payload.AlertID).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("alert %d is gone: %w", payload.AlertID, asynq.SkipRetry)
		}
		return err
	}

	q := gorm.G[models.User](p.DB).Where("status = ?", models.UserStatusActive)
	if alert.UserID != nil {
		q = q.Where("id = ?", *alert.UserID)
	} else {
		q = q.Where("role = ?", alert.Role)
	}
	recipients, err := q.Find(ctx)
	if err != nil {
		return err
	}

	link := ""
	if alert.Link != "" {
		link = p.baseURL + alert.Link
	}

	var failed int
	for _, u := range recipients {
		msg := mailer.AlertNotification(u.Email, alert.Title, alert.Message, link)
		if err := p.sender.Send(ctx, msg); err != nil {
			failed++
			p.logger.Warn("alert email failed", zap.Uint("alert_id", alert.ID), zap.Uint("user_id", u.ID), zap.Error(err))
		}
	}

	p.logger.Info("alert notified",
		zap.Uint("alert_id", alert.ID),
		zap.Int("recipients", len(recipients)),
		zap.Int("failed", failed),
	)
	if failed > 0 && failed == len(recipients) {
		return fmt.Errorf("alert %d: every delivery failed", alert.ID)
	}
	return nil
}

// PurgeResult counts removed rows per table.
type PurgeResult struct {
	Challenges    int64
	Sessions      int64
	Resets        int64
	LoginAttempts int64
}

// Purge deletes expired and spent authentication records.
func (p *TaskProcessor) Purge(ctx context.Context) (PurgeResult, error) {
	now := p.now().UTC()
	var res PurgeResult

	n, err := gorm.G[models.TwoFactorChallenge](p.DB).
		Where("expires_at < ? OR consumed_at IS NOT NULL", now).Delete(ctx)
	if err != nil {
		return res, fmt.Errorf("purge challenges: %w", err)
	}
	res.Challenges = int64(n)

	dayAgo := now.Add(-24 * time.Hour)
	n, err = gorm.G[models.Session](p.DB).
		Where("expires_at < ? OR revoked_at < ?", dayAgo, dayAgo).Delete(ctx)
	if err != nil {
		return res, fmt.Errorf("purge sessions: %w", err)
	}
	res.Sessions = int64(n)

	n, err = gorm.G[models.PasswordReset](p.DB).
		Where("expires_at < ? OR used_at IS NOT NULL", now).Delete(ctx)
	if err != nil {
		return res, fmt.Errorf("purge password resets: %w", err)
	}
	res.Resets = int64(n)

	n, err = gorm.G[models.LoginAttempt](p.DB).
		Where("created_at < ?", now.Add(-30*24*time.Hour)).Delete(ctx)
	if err != nil {
		return res, fmt.Errorf("purge login attempts: %w", err)
	}
	res.LoginAttempts = int64(n)

	return res, nil
}

func (p *TaskProcessor) HandlePurgeTask(ctx context.Context, _ *asynq.Task) error {
	res, err := p.Purge(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("purged expired auth records",
		zap.Int64("challenges", res.Challenges),
		zap.Int64("sessions", res.Sessions),
		zap.Int64("resets", res.Resets),
		zap.Int64("login_attempts", res.LoginAttempts),
	)
	return nil
}
