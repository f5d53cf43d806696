package tasks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client the API needs.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// InlineEnqueuer runs tasks immediately on a handler instead of queueing
// them. The API uses it when no Redis is configured.
type InlineEnqueuer struct {
	Handler asynq.Handler
	Logger  *zap.Logger
}

func (e *InlineEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	info := &asynq.TaskInfo{ID: uuid.NewString(), Queue: "inline", Type: task.Type(), Payload: task.Payload()}

	if err := e.Handler.ProcessTask(context.Background(), task); err != nil {
		e.Logger.Error("inline task failed", zap.String("type", task.Type()), zap.Error(err))
		return info, fmt.Errorf("run %s: %w", task.Type(), err)
	}
	return info, nil
}

// Enqueue queues task and only logs failures; callers treat mail as best effort.
func Enqueue(logger *zap.Logger, q Enqueuer, task *asynq.Task, err error) {
	if err != nil {
		logger.Error("failed to build task", zap.Error(err))
		return
	}
	if _, err := q.Enqueue(task); err != nil {
		logger.Error("failed to enqueue task", zap.String("type", task.Type()), zap.Error(err))
	}
}
