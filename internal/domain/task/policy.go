package task

import "github.com/taskstream/backend/internal/domain/identity"

// CanMutate decides whether the caller may update or delete the task:
// admins always, otherwise only the current assignee. Pure function, no
// side effects.
func CanMutate(caller identity.Identity, task *Task) bool {
	if caller.IsAdmin() {
		return true
	}
	return caller.Name != "" && caller.Name == task.Assignee
}
