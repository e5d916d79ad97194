package task

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskstream/backend/internal/domain/identity"
)

func TestCanMutate(t *testing.T) {
	assigned := &Task{Assignee: "alice"}
	unassigned := &Task{Assignee: ""}

	tests := []struct {
		name     string
		caller   identity.Identity
		task     *Task
		expected bool
	}{
		{
			name:     "admin may mutate any task",
			caller:   identity.Identity{UserID: "u-1", Name: "carol", Role: identity.RoleAdmin},
			task:     assigned,
			expected: true,
		},
		{
			name:     "assignee may mutate own task",
			caller:   identity.Identity{UserID: "u-2", Name: "alice", Role: identity.RoleUser},
			task:     assigned,
			expected: true,
		},
		{
			name:     "other user may not mutate",
			caller:   identity.Identity{UserID: "u-3", Name: "bob", Role: identity.RoleUser},
			task:     assigned,
			expected: false,
		},
		{
			name:     "anonymous may not mutate",
			caller:   identity.Anonymous(),
			task:     assigned,
			expected: false,
		},
		{
			name:     "empty caller name never matches empty assignee",
			caller:   identity.Identity{UserID: "u-4", Role: identity.RoleUser},
			task:     unassigned,
			expected: false,
		},
		{
			name:     "admin may mutate unassigned task",
			caller:   identity.Identity{UserID: "u-1", Name: "carol", Role: identity.RoleAdmin},
			task:     unassigned,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanMutate(tt.caller, tt.task))
		})
	}
}
