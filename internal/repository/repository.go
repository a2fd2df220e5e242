package repository

import (
	"context"

	"github.com/splax/taskboard/internal/domain"
)

// UserRepository persists users. Emails are stored normalised by the caller.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// TaskRepository persists tasks. Every method is scoped to ownerID; a task
// owned by someone else is reported as ErrNotFound.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	ListTasksByOwner(ctx context.Context, ownerID string) ([]domain.Task, error)
	// UpdateTask applies patch to the task matching both taskID and ownerID
	// in a single conditional write and returns the stored result.
	UpdateTask(ctx context.Context, ownerID, taskID string, patch domain.TaskPatch) (*domain.Task, error)
	// DeleteTask removes the task matching both taskID and ownerID.
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Store bundles the repositories a backend provides.
type Store interface {
	UserRepository
	TaskRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
