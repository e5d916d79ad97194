package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskstream/backend/internal/domain/events"
	"github.com/taskstream/backend/internal/domain/identity"
)

type Service interface {
	ListTasks(ctx context.Context) ([]Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	CreateTask(ctx context.Context, caller identity.Identity, input CreateTaskInput) (*Task, error)
	UpdateTask(ctx context.Context, caller identity.Identity, id uuid.UUID, input UpdateTaskInput) (*Task, error)
	DeleteTask(ctx context.Context, caller identity.Identity, id uuid.UUID) (bool, error)
	ListActivities(ctx context.Context, taskID uuid.UUID) ([]Activity, error)
	AddActivity(ctx context.Context, caller identity.Identity, taskID uuid.UUID, message string) (*Activity, error)
	Counts(ctx context.Context) (tasks int64, activities int64, err error)
}

type service struct {
	repo   Repository
	bus    *events.Bus
	logger *zap.Logger
}

func NewService(repo Repository, bus *events.Bus, logger *zap.Logger) Service {
	return &service{repo: repo, bus: bus, logger: logger}
}

func (s *service) ListTasks(ctx context.Context) ([]Task, error) {
	return s.repo.FindAll(ctx)
}

func (s *service) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) CreateTask(ctx context.Context, caller identity.Identity, input CreateTaskInput) (*Task, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if input.Title == "" || input.Description == "" {
		return nil, ErrInvalidInput
	}

	assignee := input.Assignee
	if assignee == "" {
		assignee = caller.Name
	}

	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		Title:       input.Title,
		Description: input.Description,
		Status:      StatusTodo,
		Assignee:    assignee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("task created",
		zap.String("task_id", task.ID.String()),
		zap.String("created_by", caller.UserID))
	s.bus.Publish(events.TopicTaskCreated, task)

	return task, nil
}

func (s *service) UpdateTask(ctx context.Context, caller identity.Identity, id uuid.UUID, input UpdateTaskInput) (*Task, error) {
	updated, err := s.repo.Update(ctx, id, func(task *Task) error {
		// Policy is checked against the pre-update task, inside the same
		// transaction that applies the merge.
		if !CanMutate(caller, task) {
			return ErrForbidden
		}

		if input.Title != nil {
			task.Title = *input.Title
		}
		if input.Description != nil {
			task.Description = *input.Description
		}
		if input.Status != nil {
			task.Status = *input.Status
		}
		if input.Assignee != nil {
			task.Assignee = *input.Assignee
		}
		if err := task.Validate(); err != nil {
			return err
		}

		if now := time.Now().UTC(); now.After(task.UpdatedAt) {
			task.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task updated",
		zap.String("task_id", updated.ID.String()),
		zap.String("updated_by", caller.UserID))
	s.bus.Publish(events.TopicTaskUpdated, updated)

	return updated, nil
}

func (s *service) DeleteTask(ctx context.Context, caller identity.Identity, id uuid.UUID) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id, func(task *Task) error {
		if !CanMutate(caller, task) {
			return ErrForbidden
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !deleted {
		// Unknown id: documented non-error, and nothing is published.
		return false, nil
	}

	s.logger.Info("task deleted",
		zap.String("task_id", id.String()),
		zap.String("deleted_by", caller.UserID))
	s.bus.Publish(events.TopicTaskDeleted, id)

	return true, nil
}

func (s *service) ListActivities(ctx context.Context, taskID uuid.UUID) ([]Activity, error) {
	return s.repo.FindActivities(ctx, taskID)
}

func (s *service) AddActivity(ctx context.Context, caller identity.Identity, taskID uuid.UUID, message string) (*Activity, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if message == "" {
		return nil, ErrInvalidInput
	}

	activity := &Activity{
		ID:        uuid.New(),
		TaskID:    taskID,
		Message:   message,
		Author:    caller.Name,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return nil, err
	}

	s.logger.Info("activity added",
		zap.String("task_id", taskID.String()),
		zap.String("activity_id", activity.ID.String()))
	s.bus.Publish(events.TopicActivityAdded, activity)

	return activity, nil
}

func (s *service) Counts(ctx context.Context) (int64, int64, error) {
	return s.repo.Counts(ctx)
}
