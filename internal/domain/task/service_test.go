package task

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taskstream/backend/internal/domain/events"
	"github.com/taskstream/backend/internal/domain/identity"
)

var (
	alice = identity.Identity{UserID: "u-alice", Name: "alice", Role: identity.RoleUser}
	bob   = identity.Identity{UserID: "u-bob", Name: "bob", Role: identity.RoleUser}
	admin = identity.Identity{UserID: "u-admin", Name: "carol", Role: identity.RoleAdmin}
)

func newTestService(t *testing.T) (Service, *events.Bus) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// A memory database exists per connection; pin the pool to one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Task{}, &Activity{}))

	bus := events.NewBus(8, zap.NewNop())
	return NewService(NewRepository(db), bus, zap.NewNop()), bus
}

func strPtr(s string) *string { return &s }

func statusPtr(s Status) *Status { return &s }

func TestCreateTaskDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, alice, CreateTaskInput{
		Title:       "Write docs",
		Description: "Document the API",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, StatusTodo, created.Status)
	assert.Equal(t, "alice", created.Assignee, "assignee defaults to the caller")
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	explicit, err := svc.CreateTask(ctx, alice, CreateTaskInput{
		Title:       "Review docs",
		Description: "Second pair of eyes",
		Assignee:    "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", explicit.Assignee)
}

func TestCreateTaskValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		caller   identity.Identity
		input    CreateTaskInput
		expected error
	}{
		{
			name:     "anonymous caller",
			caller:   identity.Anonymous(),
			input:    CreateTaskInput{Title: "t", Description: "d"},
			expected: ErrUnauthenticated,
		},
		{
			name:     "empty title",
			caller:   alice,
			input:    CreateTaskInput{Description: "d"},
			expected: ErrInvalidInput,
		},
		{
			name:     "empty description",
			caller:   alice,
			input:    CreateTaskInput{Title: "t"},
			expected: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTask(ctx, tt.caller, tt.input)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestListTasksInsertionOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		_, err := svc.CreateTask(ctx, alice, CreateTaskInput{Title: title, Description: "d"})
		require.NoError(t, err)
	}

	tasks, err := svc.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "first", tasks[0].Title)
	assert.Equal(t, "second", tasks[1].Title)
	assert.Equal(t, "third", tasks[2].Title)
}

func TestUpdateTaskPartialMerge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, alice, CreateTaskInput{
		Title:       "Original title",
		Description: "Original description",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateTask(ctx, alice, created.ID, UpdateTaskInput{
		Status: statusPtr(StatusInProgress),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, updated.Status)
	assert.Equal(t, "Original title", updated.Title, "unset fields stay unchanged")
	assert.Equal(t, "Original description", updated.Description)
	assert.Equal(t, "alice", updated.Assignee)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestUpdateTaskErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, alice, CreateTaskInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.UpdateTask(ctx, alice, uuid.New(), UpdateTaskInput{Title: strPtr("x")})
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("caller is not assignee or admin", func(t *testing.T) {
		_, err := svc.UpdateTask(ctx, bob, created.ID, UpdateTaskInput{Title: strPtr("hijacked")})
		assert.ErrorIs(t, err, ErrForbidden)

		unchanged, err := svc.GetTask(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "t", unchanged.Title, "rejected update must not write")
	})

	t.Run("empty title rejected", func(t *testing.T) {
		_, err := svc.UpdateTask(ctx, alice, created.ID, UpdateTaskInput{Title: strPtr("")})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		_, err := svc.UpdateTask(ctx, alice, created.ID, UpdateTaskInput{Status: statusPtr(Status("ARCHIVED"))})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("admin may update", func(t *testing.T) {
		updated, err := svc.UpdateTask(ctx, admin, created.ID, UpdateTaskInput{Assignee: strPtr("bob")})
		require.NoError(t, err)
		assert.Equal(t, "bob", updated.Assignee)
	})
}

func TestDeleteTask(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, alice, CreateTaskInput{Title: "t", Description: "d"})
	require.NoError(t, err)
	_, err = svc.AddActivity(ctx, alice, created.ID, "started")
	require.NoError(t, err)

	t.Run("forbidden caller leaves task in place", func(t *testing.T) {
		_, err := svc.DeleteTask(ctx, bob, created.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("delete cascades activities", func(t *testing.T) {
		deleted, err := svc.DeleteTask(ctx, alice, created.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		tasks, activities, err := svc.Counts(ctx)
		require.NoError(t, err)
		assert.Zero(t, tasks)
		assert.Zero(t, activities)
	})

	t.Run("unknown id is not an error", func(t *testing.T) {
		deleted, err := svc.DeleteTask(ctx, alice, uuid.New())
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestAddActivity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, alice, CreateTaskInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	t.Run("requires authentication", func(t *testing.T) {
		_, err := svc.AddActivity(ctx, identity.Anonymous(), created.ID, "hello")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("requires a message", func(t *testing.T) {
		_, err := svc.AddActivity(ctx, alice, created.ID, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := svc.AddActivity(ctx, alice, uuid.New(), "hello")
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("any authenticated user may comment", func(t *testing.T) {
		activity, err := svc.AddActivity(ctx, bob, created.ID, "looks good")
		require.NoError(t, err)
		assert.Equal(t, "bob", activity.Author)
		assert.Equal(t, created.ID, activity.TaskID)

		activities, err := svc.ListActivities(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, activities, 1)
		assert.Equal(t, "looks good", activities[0].Message)
	})
}

func TestMutationsPublishEvents(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	createdCh, cancelCreated := bus.Subscribe(events.TopicTaskCreated)
	updatedCh, cancelUpdated := bus.Subscribe(events.TopicTaskUpdated)
	deletedCh, cancelDeleted := bus.Subscribe(events.TopicTaskDeleted)
	activityCh, cancelActivity := bus.Subscribe(events.TopicActivityAdded)
	defer cancelCreated()
	defer cancelUpdated()
	defer cancelDeleted()
	defer cancelActivity()

	created, err := svc.CreateTask(ctx, alice, CreateTaskInput{Title: "t", Description: "d"})
	require.NoError(t, err)
	_, err = svc.UpdateTask(ctx, alice, created.ID, UpdateTaskInput{Status: statusPtr(StatusDone)})
	require.NoError(t, err)
	_, err = svc.AddActivity(ctx, alice, created.ID, "done")
	require.NoError(t, err)
	_, err = svc.DeleteTask(ctx, alice, created.ID)
	require.NoError(t, err)

	// Publishing is synchronous, every event is buffered by now.
	assert.Len(t, createdCh, 1)
	assert.Len(t, updatedCh, 1)
	assert.Len(t, activityCh, 1)
	assert.Len(t, deletedCh, 1)

	event := <-createdCh
	payload, ok := event.Payload.(*Task)
	require.True(t, ok)
	assert.Equal(t, created.ID, payload.ID)

	event = <-deletedCh
	id, ok := event.Payload.(uuid.UUID)
	require.True(t, ok)
	assert.Equal(t, created.ID, id)
}

func TestFailedMutationsPublishNothing(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, alice, CreateTaskInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	updatedCh, cancelUpdated := bus.Subscribe(events.TopicTaskUpdated)
	deletedCh, cancelDeleted := bus.Subscribe(events.TopicTaskDeleted)
	defer cancelUpdated()
	defer cancelDeleted()

	_, err = svc.UpdateTask(ctx, bob, created.ID, UpdateTaskInput{Title: strPtr("x")})
	require.ErrorIs(t, err, ErrForbidden)

	deleted, err := svc.DeleteTask(ctx, alice, uuid.New())
	require.NoError(t, err)
	require.False(t, deleted)

	assert.Len(t, updatedCh, 0)
	assert.Len(t, deletedCh, 0)
}
