package graph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"

	"github.com/taskstream/backend/internal/domain/events"
	"github.com/taskstream/backend/internal/domain/identity"
	"github.com/taskstream/backend/internal/domain/task"
	"github.com/taskstream/backend/pkg/logger"
)

// Resolver binds the schema to the task service and the change notifier.
type Resolver struct {
	tasks  task.Service
	bus    *events.Bus
	logger *logger.Logger
}

// NewSchema builds the executable schema. Field names are the wire
// contract; resolvers delegate to the task service, which enforces the
// authorization policy and publishes change events.
func NewSchema(svc task.Service, bus *events.Bus, log *logger.Logger) (graphql.Schema, error) {
	r := &Resolver{tasks: svc, bus: bus, logger: log}

	statusEnum := graphql.NewEnum(graphql.EnumConfig{
		Name: "TaskStatus",
		Values: graphql.EnumValueConfigMap{
			"TODO":        &graphql.EnumValueConfig{Value: string(task.StatusTodo)},
			"IN_PROGRESS": &graphql.EnumValueConfig{Value: string(task.StatusInProgress)},
			"DONE":        &graphql.EnumValueConfig{Value: string(task.StatusDone)},
		},
	})

	activityType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TaskActivity",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
				Resolve: activityField(func(a *task.Activity) (interface{}, error) {
					return a.ID.String(), nil
				}),
			},
			"taskId": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
				Resolve: activityField(func(a *task.Activity) (interface{}, error) {
					return a.TaskID.String(), nil
				}),
			},
			"message": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: activityField(func(a *task.Activity) (interface{}, error) {
					return a.Message, nil
				}),
			},
			"author": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: activityField(func(a *task.Activity) (interface{}, error) {
					return a.Author, nil
				}),
			},
			"createdAt": &graphql.Field{
				Type: graphql.NewNonNull(graphql.DateTime),
				Resolve: activityField(func(a *task.Activity) (interface{}, error) {
					return a.CreatedAt, nil
				}),
			},
		},
	})

	taskType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Task",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
				Resolve: taskField(func(t *task.Task) (interface{}, error) {
					return t.ID.String(), nil
				}),
			},
			"title": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: taskField(func(t *task.Task) (interface{}, error) {
					return t.Title, nil
				}),
			},
			"description": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: taskField(func(t *task.Task) (interface{}, error) {
					return t.Description, nil
				}),
			},
			"status": &graphql.Field{
				Type: graphql.NewNonNull(statusEnum),
				Resolve: taskField(func(t *task.Task) (interface{}, error) {
					return string(t.Status), nil
				}),
			},
			"assignee": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: taskField(func(t *task.Task) (interface{}, error) {
					return t.Assignee, nil
				}),
			},
			"createdAt": &graphql.Field{
				Type: graphql.NewNonNull(graphql.DateTime),
				Resolve: taskField(func(t *task.Task) (interface{}, error) {
					return t.CreatedAt, nil
				}),
			},
			"updatedAt": &graphql.Field{
				Type: graphql.NewNonNull(graphql.DateTime),
				Resolve: taskField(func(t *task.Task) (interface{}, error) {
					return t.UpdatedAt, nil
				}),
			},
			// Activities are resolved lazily, per task, by taskId lookup.
			"activities": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(activityType))),
				Resolve: r.resolveTaskActivities,
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"tasks": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(taskType))),
				Resolve: r.resolveTasks,
			},
			"task": &graphql.Field{
				Type: taskType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.resolveTask,
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createTask": &graphql.Field{
				Type: graphql.NewNonNull(taskType),
				Args: graphql.FieldConfigArgument{
					"title":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"description": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"assignee":    &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: r.resolveCreateTask,
			},
			"updateTask": &graphql.Field{
				Type: graphql.NewNonNull(taskType),
				Args: graphql.FieldConfigArgument{
					"id":          &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"title":       &graphql.ArgumentConfig{Type: graphql.String},
					"description": &graphql.ArgumentConfig{Type: graphql.String},
					"status":      &graphql.ArgumentConfig{Type: statusEnum},
					"assignee":    &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: r.resolveUpdateTask,
			},
			"addTaskActivity": &graphql.Field{
				Type: graphql.NewNonNull(activityType),
				Args: graphql.FieldConfigArgument{
					"taskId":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"message": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.resolveAddTaskActivity,
			},
			"deleteTask": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.resolveDeleteTask,
			},
		},
	})

	subscriptionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Subscription",
		Fields: graphql.Fields{
			"taskCreated": &graphql.Field{
				Type:      graphql.NewNonNull(taskType),
				Resolve:   resolveSource,
				Subscribe: r.subscribeTopic(events.TopicTaskCreated),
			},
			"taskUpdated": &graphql.Field{
				Type:      graphql.NewNonNull(taskType),
				Resolve:   resolveSource,
				Subscribe: r.subscribeTopic(events.TopicTaskUpdated),
			},
			"taskDeleted": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if id, ok := p.Source.(uuid.UUID); ok {
						return id.String(), nil
					}
					return p.Source, nil
				},
				Subscribe: r.subscribeTopic(events.TopicTaskDeleted),
			},
			"taskActivityAdded": &graphql.Field{
				Type:      graphql.NewNonNull(activityType),
				Resolve:   resolveSource,
				Subscribe: r.subscribeTopic(events.TopicActivityAdded),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:        queryType,
		Mutation:     mutationType,
		Subscription: subscriptionType,
	})
}

func resolveSource(p graphql.ResolveParams) (interface{}, error) {
	return p.Source, nil
}

func taskField(resolve func(*task.Task) (interface{}, error)) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch src := p.Source.(type) {
		case *task.Task:
			return resolve(src)
		case task.Task:
			return resolve(&src)
		}
		return nil, errors.New("internal error")
	}
}

func activityField(resolve func(*task.Activity) (interface{}, error)) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch src := p.Source.(type) {
		case *task.Activity:
			return resolve(src)
		case task.Activity:
			return resolve(&src)
		}
		return nil, errors.New("internal error")
	}
}

func (r *Resolver) resolveTasks(p graphql.ResolveParams) (interface{}, error) {
	tasks, err := r.tasks.ListTasks(p.Context)
	if err != nil {
		return nil, r.wrapErr(err)
	}
	return tasks, nil
}

func (r *Resolver) resolveTask(p graphql.ResolveParams) (interface{}, error) {
	id, err := argID(p, "id")
	if err != nil {
		return nil, r.wrapErr(err)
	}

	t, err := r.tasks.GetTask(p.Context, id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			return nil, nil // nullable by contract
		}
		return nil, r.wrapErr(err)
	}
	return t, nil
}

func (r *Resolver) resolveTaskActivities(p graphql.ResolveParams) (interface{}, error) {
	t, err := taskField(func(t *task.Task) (interface{}, error) { return t, nil })(p)
	if err != nil {
		return nil, err
	}

	activities, err := r.tasks.ListActivities(p.Context, t.(*task.Task).ID)
	if err != nil {
		return nil, r.wrapErr(err)
	}
	return activities, nil
}

func (r *Resolver) resolveCreateTask(p graphql.ResolveParams) (interface{}, error) {
	caller := identity.FromContext(p.Context)

	input := task.CreateTaskInput{
		Title:       argString(p, "title"),
		Description: argString(p, "description"),
		Assignee:    argString(p, "assignee"),
	}

	created, err := r.tasks.CreateTask(p.Context, caller, input)
	if err != nil {
		return nil, r.wrapErr(err)
	}
	return created, nil
}

func (r *Resolver) resolveUpdateTask(p graphql.ResolveParams) (interface{}, error) {
	caller := identity.FromContext(p.Context)

	id, err := argID(p, "id")
	if err != nil {
		return nil, r.wrapErr(err)
	}

	// Absent arguments stay nil: a partial merge, not a replace.
	var input task.UpdateTaskInput
	if v, ok := p.Args["title"].(string); ok {
		input.Title = &v
	}
	if v, ok := p.Args["description"].(string); ok {
		input.Description = &v
	}
	if v, ok := p.Args["status"].(string); ok {
		status := task.Status(v)
		input.Status = &status
	}
	if v, ok := p.Args["assignee"].(string); ok {
		input.Assignee = &v
	}

	updated, err := r.tasks.UpdateTask(p.Context, caller, id, input)
	if err != nil {
		return nil, r.wrapErr(err)
	}
	return updated, nil
}

func (r *Resolver) resolveAddTaskActivity(p graphql.ResolveParams) (interface{}, error) {
	caller := identity.FromContext(p.Context)

	taskID, err := argID(p, "taskId")
	if err != nil {
		return nil, r.wrapErr(err)
	}

	activity, err := r.tasks.AddActivity(p.Context, caller, taskID, argString(p, "message"))
	if err != nil {
		return nil, r.wrapErr(err)
	}
	return activity, nil
}

func (r *Resolver) resolveDeleteTask(p graphql.ResolveParams) (interface{}, error) {
	caller := identity.FromContext(p.Context)

	id, err := argID(p, "id")
	if err != nil {
		return nil, r.wrapErr(err)
	}

	deleted, err := r.tasks.DeleteTask(p.Context, caller, id)
	if err != nil {
		return nil, r.wrapErr(err)
	}
	return deleted, nil
}

// subscribeTopic bridges a bus subscription into the subscription
// executor. The forwarding goroutine tears the bus subscription down when
// the client context is cancelled, so a disconnect never leaks a channel.
func (r *Resolver) subscribeTopic(topic events.Topic) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ch, cancel := r.bus.Subscribe(topic)

		out := make(chan interface{})
		go func() {
			defer cancel()
			defer close(out)
			for {
				select {
				case <-p.Context.Done():
					return
				case event, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- event.Payload:
					case <-p.Context.Done():
						return
					}
				}
			}
		}()
		return out, nil
	}
}

func argString(p graphql.ResolveParams, name string) string {
	v, _ := p.Args[name].(string)
	return v
}

func argID(p graphql.ResolveParams, name string) (uuid.UUID, error) {
	raw, _ := p.Args[name].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id %q", task.ErrInvalidInput, raw)
	}
	return id, nil
}
