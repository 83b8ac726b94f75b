package restapi

import (
	"context"
	"net/http"
	"net/url"

	"taskdeck/internal/service"
	"taskdeck/internal/tokenstore"
)

// deletedMessage is returned when the server confirms a delete without a message.
const deletedMessage = "Task deleted successfully"

// TaskService implements service.TaskService.
type TaskService struct {
	client *Client
	tokens tokenstore.Store
}

// NewTaskService creates a task service on top of client.
func NewTaskService(client *Client) *TaskService {
	return &TaskService{client: client, tokens: client.tokens}
}

// tasksPath builds /{userId}/tasks{suffix} for the token's subject.
// Fails without network I/O when no usable token is held.
func (s *TaskService) tasksPath(suffix string) (string, error) {
	raw, ok := s.tokens.Get()
	if !ok {
		return "", service.NotAuthenticated()
	}
	sub, err := tokenstore.Subject(raw)
	if err != nil {
		e := service.NotAuthenticated()
		e.Err = err
		return "", e
	}
	return "/" + url.PathEscape(sub) + "/tasks" + suffix, nil
}

func taskSuffix(id, action string) string {
	return "/" + url.PathEscape(id) + action
}

// ListTasks implements service.TaskService.
func (s *TaskService) ListTasks(ctx context.Context) ([]service.Task, error) {
	const fallback = "Failed to fetch tasks"
	path, err := s.tasksPath("")
	if err != nil {
		return nil, err
	}

	var tasks []service.Task
	if err := s.client.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, s.client.normalize(err, fallback)
	}
	if tasks == nil {
		tasks = []service.Task{}
	}
	return tasks, nil
}

// CreateTask implements service.TaskService.
func (s *TaskService) CreateTask(ctx context.Context, in service.TaskInput) (service.Task, error) {
	const fallback = "Failed to create task"
	path, err := s.tasksPath("")
	if err != nil {
		return service.Task{}, err
	}

	var task service.Task
	if err := s.client.do(ctx, http.MethodPost, path, in, &task); err != nil {
		return service.Task{}, s.client.normalize(err, fallback)
	}
	return task, nil
}

// UpdateTask implements service.TaskService.
func (s *TaskService) UpdateTask(ctx context.Context, id string, patch service.TaskPatch) (service.Task, error) {
	const fallback = "Failed to update task"
	path, err := s.tasksPath(taskSuffix(id, ""))
	if err != nil {
		return service.Task{}, err
	}

	var task service.Task
	if err := s.client.do(ctx, http.MethodPut, path, patch, &task); err != nil {
		return service.Task{}, s.client.normalize(err, fallback)
	}
	return task, nil
}

// DeleteTask implements service.TaskService.
func (s *TaskService) DeleteTask(ctx context.Context, id string) (string, error) {
	const fallback = "Failed to delete task"
	path, err := s.tasksPath(taskSuffix(id, ""))
	if err != nil {
		return "", err
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := s.client.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return "", s.client.normalize(err, fallback)
	}
	if resp.Message == "" {
		return deletedMessage, nil
	}
	return resp.Message, nil
}

// ToggleTaskCompletion implements service.TaskService.
func (s *TaskService) ToggleTaskCompletion(ctx context.Context, id string) (service.Task, error) {
	const fallback = "Failed to toggle task completion"
	path, err := s.tasksPath(taskSuffix(id, "/complete"))
	if err != nil {
		return service.Task{}, err
	}

	var task service.Task
	if err := s.client.do(ctx, http.MethodPatch, path, nil, &task); err != nil {
		return service.Task{}, s.client.normalize(err, fallback)
	}
	return task, nil
}
