package task

import (
	"context"
	"sort"
	"sync"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/domain/task"
)

// Store is an in-memory task registry. Callers always receive copies.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

// New creates an empty task store.
func New() *Store {
	return &Store{tasks: make(map[string]*task.Task)}
}

// Create stores a new task.
func (s *Store) Create(_ context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := t.Clone()
	s.tasks[t.ID()] = &c
	return nil
}

// Get returns a copy of the task.
func (s *Store) Get(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, domain.ErrTaskNotFound
	}
	return t.Clone(), nil
}

// Update applies fn to the stored task under the store lock and returns the result.
// The task is left unchanged when fn fails.
func (s *Store) Update(_ context.Context, id string, fn func(*task.Task) error) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, domain.ErrTaskNotFound
	}
	c := t.Clone()
	if err := fn(&c); err != nil {
		return t.Clone(), err
	}
	s.tasks[id] = &c
	return c.Clone(), nil
}

// List returns all tasks, newest first.
func (s *Store) List(_ context.Context) ([]task.Task, error) {
	s.mu.RLock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() > out[j].ID()
		}
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out, nil
}
