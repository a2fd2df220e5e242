package domain

import "time"

// Task is a to-do item owned by exactly one user.
type Task struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueAt       time.Time `json:"dueAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TaskPatch lists the mutable task fields. Nil fields are left untouched.
// Ownership is not part of the patch.
type TaskPatch struct {
	Title       *string
	Description *string
	DueAt       *time.Time
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueAt == nil
}

// Apply copies the set fields onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueAt != nil {
		t.DueAt = *p.DueAt
	}
}

// TaskEvent describes a change to a task, delivered to the owner's live stream.
type TaskEvent struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Task   *Task  `json:"task,omitempty"`
}

// Task event types.
const (
	TaskEventCreated = "task.created"
	TaskEventUpdated = "task.updated"
	TaskEventDeleted = "task.deleted"
)
