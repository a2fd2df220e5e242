package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
)

// Field limits shared with the HTTP request schemas.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// Publisher receives task changes for delivery to the owner's live subscribers.
type Publisher interface {
	Publish(ownerID string, event domain.TaskEvent)
}

// CreateInput carries the caller-supplied fields of a new task.
type CreateInput struct {
	Title       string
	Description string
	DueAt       time.Time
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	DueAt       *time.Time
}

// Ack acknowledges a mutation.
type Ack struct {
	Message string `json:"message"`
}

var (
	ackUpdated = Ack{Message: "Updated"}
	ackDeleted = Ack{Message: "Deleted"}

	errMissingOwner = fmt.Errorf("owner required: %w", domain.ErrUnauthorized)
	// ErrTaskNotFound covers both absent tasks and tasks owned by someone else.
	ErrTaskNotFound = fmt.Errorf("task not found: %w", domain.ErrNotFound)
)

// Service performs owner-scoped task operations. The owner id always comes
// from a validated token, never from the request body.
type Service struct {
	tasks  repository.TaskRepository
	events Publisher
	logger *slog.Logger
}

// New returns a task service. events may be nil.
func New(tasks repository.TaskRepository, events Publisher, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{tasks: tasks, events: events, logger: logger}
}

// List returns the owner's tasks in storage order.
func (s Service) List(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errMissingOwner
	}
	tasks, err := s.tasks.ListTasksByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// Create stores a new task owned by ownerID.
func (s Service) Create(ctx context.Context, ownerID string, input CreateInput) (*domain.Task, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errMissingOwner
	}
	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateDescription(input.Description); err != nil {
		return nil, err
	}
	if input.DueAt.IsZero() {
		return nil, domain.NewValidationError("dueAt", "is required")
	}
	task := &domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: input.Description,
		DueAt:       input.DueAt.UTC(),
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("task created", "task_id", task.ID, "user_id", ownerID)
	s.publish(ownerID, domain.TaskEvent{Type: domain.TaskEventCreated, TaskID: task.ID, Task: task})
	return task, nil
}

// Update applies a partial update to a task the owner holds.
func (s Service) Update(ctx context.Context, ownerID, taskID string, input UpdateInput) (Ack, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Ack{}, errMissingOwner
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Ack{}, ErrTaskNotFound
	}
	patch := domain.TaskPatch{Description: input.Description}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if err := validateTitle(title); err != nil {
			return Ack{}, err
		}
		patch.Title = &title
	}
	if input.Description != nil {
		if err := validateDescription(*input.Description); err != nil {
			return Ack{}, err
		}
	}
	if input.DueAt != nil {
		if input.DueAt.IsZero() {
			return Ack{}, domain.NewValidationError("dueAt", "must be a valid timestamp")
		}
		due := input.DueAt.UTC()
		patch.DueAt = &due
	}
	if patch.Empty() {
		return Ack{}, domain.NewValidationError("", "no updatable fields supplied")
	}
	updated, err := s.tasks.UpdateTask(ctx, ownerID, taskID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Ack{}, ErrTaskNotFound
		}
		return Ack{}, fmt.Errorf("update task: %w", err)
	}
	s.logger.Info("task updated", "task_id", taskID, "user_id", ownerID)
	s.publish(ownerID, domain.TaskEvent{Type: domain.TaskEventUpdated, TaskID: taskID, Task: updated})
	return ackUpdated, nil
}

// Delete removes a task the owner holds. Deleting a missing task is ErrTaskNotFound.
func (s Service) Delete(ctx context.Context, ownerID, taskID string) (Ack, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Ack{}, errMissingOwner
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Ack{}, ErrTaskNotFound
	}
	if err := s.tasks.DeleteTask(ctx, ownerID, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Ack{}, ErrTaskNotFound
		}
		return Ack{}, fmt.Errorf("delete task: %w", err)
	}
	s.logger.Info("task deleted", "task_id", taskID, "user_id", ownerID)
	s.publish(ownerID, domain.TaskEvent{Type: domain.TaskEventDeleted, TaskID: taskID})
	return ackDeleted, nil
}

func (s Service) publish(ownerID string, event domain.TaskEvent) {
	if s.events == nil {
		return
	}
	s.events.Publish(ownerID, event)
}

func validateTitle(title string) error {
	if title == "" {
		return domain.NewValidationError("title", "is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return domain.NewValidationError("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return domain.NewValidationError("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	return nil
}
