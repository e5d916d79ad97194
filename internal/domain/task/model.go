package task

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task represents a unit of work tracked by the board
type Task struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Seq         int64     `json:"-" gorm:"index:idx_task_seq"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description" gorm:"not null"`
	Status      Status    `json:"status" gorm:"not null;default:'TODO';index:idx_task_status"`
	Assignee    string    `json:"assignee" gorm:"index:idx_task_assignee"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null"`
}

// TableName specifies the table name for the Task model
func (Task) TableName() string {
	return "tasks"
}

// Activity is an append-only note attached to a task
type Activity struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Seq       int64     `json:"-" gorm:"index:idx_activity_seq"`
	TaskID    uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index:idx_activity_task"`
	Message   string    `json:"message" gorm:"not null"`
	Author    string    `json:"author" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

// TableName specifies the table name for the Activity model
func (Activity) TableName() string {
	return "task_activities"
}

// CreateTaskInput carries the fields of a new task. Assignee falls back to
// the caller's display name when empty.
type CreateTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
}

// UpdateTaskInput is a partial update: nil fields are left unchanged.
type UpdateTaskInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
	Assignee    *string `json:"assignee,omitempty"`
}

// Validate checks if the task data is valid
func (t *Task) Validate() error {
	if t.Title == "" || t.Description == "" {
		return ErrInvalidInput
	}
	if !t.Status.IsValid() {
		return ErrInvalidInput
	}
	return nil
}
