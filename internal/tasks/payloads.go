package tasks

import (
	"encoding/json"

	"merchantcrm/internal/mailer"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeSendEmail   = "email:send"
	TypeNotifyAlert = "alert:notify"
	TypePurge       = "maintenance:purge"
)

// NewSendEmailTask queues delivery of one message.
func NewSendEmailTask(msg mailer.Message) (*asynq.Task, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	payloadBytes, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TypeSendEmail, payloadBytes, asynq.MaxRetry(5)), nil
}

type NotifyAlertPayload struct {
	AlertID uint `json:"alert_id"`
}

// NewNotifyAlertTask emails the recipients of a stored alert.
func NewNotifyAlertTask(alertID uint) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(NotifyAlertPayload{AlertID: alertID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TypeNotifyAlert, payloadBytes, asynq.MaxRetry(3)), nil
}

func NewPurgeTask() *asynq.Task {
	return asynq.NewTask(TypePurge, nil, asynq.MaxRetry(1))
}
