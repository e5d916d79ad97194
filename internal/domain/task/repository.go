package task

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("caller is not allowed to mutate this task")
	ErrUnauthenticated = errors.New("authentication required")
)

// Repository defines the persistence operations of the task store. The
// backing database is memory-resident; everything is lost on restart.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*Task, error)
	FindAll(ctx context.Context) ([]Task, error)
	// Update loads the task, applies mutate and saves the result inside a
	// single transaction. A mutate error aborts without writing.
	Update(ctx context.Context, id uuid.UUID, mutate func(*Task) error) (*Task, error)
	// Delete removes the task and all its activities. An unknown id
	// returns (false, nil). A guard error aborts without deleting.
	Delete(ctx context.Context, id uuid.UUID, guard func(*Task) error) (bool, error)

	FindActivities(ctx context.Context, taskID uuid.UUID) ([]Activity, error)
	CreateActivity(ctx context.Context, activity *Activity) error
	Counts(ctx context.Context) (tasks int64, activities int64, err error)
}

type taskRepository struct {
	db *gorm.DB
	// seq orders rows deterministically regardless of clock resolution
	seq atomic.Int64
}

func NewRepository(db *gorm.DB) Repository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, task *Task) error {
	task.Seq = r.seq.Add(1)
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) FindByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	var task Task
	result := r.db.WithContext(ctx).First(&task, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, result.Error
	}
	return &task, nil
}

func (r *taskRepository) FindAll(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := r.db.WithContext(ctx).Order("seq").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*Task) error) (*Task, error) {
	var updated *Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task Task
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}
		if err := mutate(&task); err != nil {
			return err
		}
		if err := tx.Save(&task).Error; err != nil {
			return err
		}
		updated = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID, guard func(*Task) error) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task Task
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // idempotent: unknown id is not an error
			}
			return err
		}
		if guard != nil {
			if err := guard(&task); err != nil {
				return err
			}
		}
		if err := tx.Where("task_id = ?", id).Delete(&Activity{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Task{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *taskRepository) FindActivities(ctx context.Context, taskID uuid.UUID) ([]Activity, error) {
	var activities []Activity
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("seq").
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

func (r *taskRepository) CreateActivity(ctx context.Context, activity *Activity) error {
	activity.Seq = r.seq.Add(1)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Task{}).Where("id = ?", activity.TaskID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrTaskNotFound
		}
		return tx.Create(activity).Error
	})
}

func (r *taskRepository) Counts(ctx context.Context) (int64, int64, error) {
	var tasks, activities int64
	if err := r.db.WithContext(ctx).Model(&Task{}).Count(&tasks).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).Model(&Activity{}).Count(&activities).Error; err != nil {
		return 0, 0, err
	}
	return tasks, activities, nil
}
