// Package memory provides a process-local Store used for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
)

// Repository keeps users and tasks in maps guarded by a single mutex, so each
// operation is atomic with respect to the others.
type Repository struct {
	mu    sync.RWMutex
	users map[string]domain.User // keyed by email
	tasks map[string]domain.Task
	order []string // task ids in insertion order
}

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		users: make(map[string]domain.User),
		tasks: make(map[string]domain.Task),
	}
}

var _ repository.Store = (*Repository)(nil)

// CreateUser inserts a user, rejecting duplicate emails.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Email]; exists {
		return repository.ErrConflict
	}
	stored := *user
	stored.PasswordHash = append([]byte(nil), user.PasswordHash...)
	r.users[user.Email] = stored
	return nil
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return &u, nil
}

// CreateTask inserts a task.
func (r *Repository) CreateTask(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; exists {
		return repository.ErrConflict
	}
	r.tasks[task.ID] = *task
	r.order = append(r.order, task.ID)
	return nil
}

// ListTasksByOwner returns the owner's tasks in insertion order.
func (r *Repository) ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]domain.Task, 0)
	for _, id := range r.order {
		if t := r.tasks[id]; t.OwnerID == ownerID {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// UpdateTask patches the task when both id and owner match.
func (r *Repository) UpdateTask(ctx context.Context, ownerID, taskID string, patch domain.TaskPatch) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	patch.Apply(&t)
	r.tasks[taskID] = t
	return &t, nil
}

// DeleteTask removes the task when both id and owner match.
func (r *Repository) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(r.tasks, taskID)
	for i, id := range r.order {
		if id == taskID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Ping always succeeds.
func (r *Repository) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (r *Repository) Close(ctx context.Context) error { return nil }
