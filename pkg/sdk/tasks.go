package agentpay

import (
	"context"
	"net/http"
	"net/url"
)

// TaskService runs research tasks on the orchestrator.
type TaskService struct {
	c *Client
}

// Create queues a task and returns its ID.
func (s *TaskService) Create(ctx context.Context, req TaskRequest) (string, error) {
	var resp struct {
		TaskID string `json:"taskId"`
	}
	err := s.c.call(ctx, request{
		op:     "tasks.create",
		method: http.MethodPost,
		path:   "/tasks",
		body:   req,
	}, &resp, http.StatusAccepted)
	return resp.TaskID, err
}

// Get returns a task snapshot.
func (s *TaskService) Get(ctx context.Context, taskID string) (Task, error) {
	var t Task
	err := s.c.call(ctx, request{
		op:     "tasks.get",
		method: http.MethodGet,
		path:   "/tasks/" + url.PathEscape(taskID),
	}, &t)
	return t, err
}

// List returns every task.
func (s *TaskService) List(ctx context.Context) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := s.c.call(ctx, request{
		op:     "tasks.list",
		method: http.MethodGet,
		path:   "/tasks",
	}, &resp)
	return resp.Items, err
}

// Cancel stops a pending or running task.
func (s *TaskService) Cancel(ctx context.Context, taskID string) (Task, error) {
	var t Task
	err := s.c.call(ctx, request{
		op:     "tasks.cancel",
		method: http.MethodPost,
		path:   "/tasks/" + url.PathEscape(taskID) + "/cancel",
	}, &t)
	return t, err
}
