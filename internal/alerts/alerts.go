// Package alerts stores in-app alerts and queues their email notification.
package alerts

import (
	"context"
	"time"

	"merchantcrm/internal/apperr"
	"merchantcrm/internal/models"
	"merchantcrm/internal/scope"
	"merchantcrm/internal/tasks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Notifier struct {
	DB     *gorm.DB
	Queue  tasks.Enqueuer
	Logger *zap.Logger
	now    func() time.Time
}

func NewNotifier(db *gorm.DB, queue tasks.Enqueuer, logger *zap.Logger) *Notifier {
	return &Notifier{DB: db, Queue: queue, Logger: logger, now: time.Now}
}

func (n *Notifier) WithClock(now func() time.Time) *Notifier {
	n.now = now
	return n
}

// Notify stores alert and queues its email. An alert needs a user or a role.
func (n *Notifier) Notify(ctx context.Context, alert *models.Alert) error {
	if alert.Title == "" {
		return apperr.InvalidFields("Alert is invalid", map[string]string{"title": "is required"})
	}
	if alert.UserID == nil && !models.ValidRole(alert.Role) {
		return apperr.InvalidFields("Alert is invalid", map[string]string{"role": "must name a role when no user is given"})
	}
	switch alert.Severity {
	case "":
		alert.Severity = models.SeverityInfo
	case models.SeverityInfo, models.SeverityWarning, models.SeverityCritical:
	default:
		return apperr.InvalidFields("Alert is invalid", map[string]string{"severity": "is not a known severity"})
	}

	if err := gorm.G[models.Alert](n.DB).Create(ctx, alert); err != nil {
		return apperr.Wrap(err, "create alert")
	}

	task, err := tasks.NewNotifyAlertTask(alert.ID)
	tasks.Enqueue(n.Logger, n.Queue, task, err)
	return nil
}

// NotifyUser alerts a single user.
func (n *Notifier) NotifyUser(ctx context.Context, userID uint, severity, title, message, link string) error {
	return n.Notify(ctx, &models.Alert{UserID: &userID, Severity: severity, Title: title, Message: message, Link: link})
}

// NotifyRole alerts every user holding role.
func (n *Notifier) NotifyRole(ctx context.Context, role, severity, title, message, link string) error {
	return n.Notify(ctx, &models.Alert{Role: role, Severity: severity, Title: title, Message: message, Link: link})
}

// MarkRead marks one visible alert as read. Reading a role broadcast marks it
// for everyone holding that role.
func (n *Notifier) MarkRead(ctx context.Context, s scope.Scope, id uint) (*models.Alert, error) {
	var alert models.Alert
	err := n.DB.WithContext(ctx).Scopes(s.Alerts).Where("id = ?", id).First(&alert).Error
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil, apperr.NotFoundf("Alert not found")
		}
		return nil, apperr.Wrap(err, "load alert")
	}
	if alert.ReadAt != nil {
		return &alert, nil
	}

	now := n.now().UTC()
	if _, err := gorm.G[models.Alert](n.DB).Where("id = ?", id).Update(ctx, "read_at", now); err != nil {
		return nil, apperr.Wrap(err, "mark alert read")
	}
	alert.ReadAt = &now
	return &alert, nil
}

// MarkAllRead marks every visible unread alert as read.
func (n *Notifier) MarkAllRead(ctx context.Context, s scope.Scope) (int64, error) {
	result := n.DB.WithContext(ctx).Model(&models.Alert{}).Scopes(s.Alerts).
		Where("read_at IS NULL").Update("read_at", n.now().UTC())
	if result.Error != nil {
		return 0, apperr.Wrap(result.Error, "mark alerts read")
	}
	return result.RowsAffected, nil
}

// Unread counts the visible unread alerts.
func (n *Notifier) Unread(ctx context.Context, s scope.Scope) (int64, error) {
	var count int64
	err := n.DB.WithContext(ctx).Model(&models.Alert{}).Scopes(s.Alerts).Where("read_at IS NULL").Count(&count).Error
	return count, err
}

// NotifyAgent alerts every active user signed in as the given agent.
func (n *Notifier) NotifyAgent(ctx context.Context, agentID uint, severity, title, message, link string) error {
	users, err := gorm.G[models.User](n.DB).
		Where("agent_id = ? AND role = ? AND status = ?", agentID, models.RoleAgent, models.UserStatusActive).
		Find(ctx)
	if err != nil {
		return apperr.Wrap(err, "load agent users")
	}
	for _, u := range users {
		if err := n.NotifyUser(ctx, u.ID, severity, title, message, link); err != nil {
			return err
		}
	}
	return nil
}
