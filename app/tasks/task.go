package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeFetch     TaskType = "fetch"
	TaskTypeSummarize TaskType = "summarize"
	TaskTypeRender    TaskType = "render"
	TaskTypeNotify    TaskType = "notify"
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetScope() string
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by every pipeline stage.
type Task struct {
	ID        string
	Type      TaskType
	Scope     string
	StartedAt *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

// GetScope describes what the task works on, usually the date window.
func (t *Task) GetScope() string {
	return t.Scope
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, scope string) Task {
	return Task{
		ID:    uuid.NewString(),
		Type:  taskType,
		Scope: scope,
	}
}

// Execute starts task and runs it, logging the failure if any.
func Execute(ctx context.Context, task TaskInterface) error {
	task.Start()

	err := task.Execute(ctx)
	if err != nil {
		slog.Error("Task failed",
			"type", string(task.GetType()),
			"id", task.GetID(),
			"scope", task.GetScope(),
			"duration", task.GetDuration(),
			"error", err)
	}
	return err
}
