// Package storetest holds behaviour every repository.Store backend must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
)

// Factory returns an empty store for one sub-test.
type Factory func(t *testing.T) repository.Store

// Run exercises the store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UserEmailIsUnique", func(t *testing.T) { testUserEmailUnique(t, newStore(t)) })
	t.Run("TasksAreOwnerScoped", func(t *testing.T) { testTasksOwnerScoped(t, newStore(t)) })
	t.Run("UpdateRequiresOwner", func(t *testing.T) { testUpdateRequiresOwner(t, newStore(t)) })
	t.Run("DeleteRequiresOwner", func(t *testing.T) { testDeleteRequiresOwner(t, newStore(t)) })
	t.Run("ConcurrentForeignWritesNeverLand", func(t *testing.T) { testConcurrentForeignWrites(t, newStore(t)) })
}

func testUserEmailUnique(t *testing.T, store repository.Store) {
	ctx := context.Background()
	user := &domain.User{ID: uuid.NewString(), Email: "a@x.com", PasswordHash: []byte("hash"), CreatedAt: now()}
	require.NoError(t, store.CreateUser(ctx, user))

	dup := &domain.User{ID: uuid.NewString(), Email: "a@x.com", PasswordHash: []byte("other"), CreatedAt: now()}
	assert.ErrorIs(t, store.CreateUser(ctx, dup), repository.ErrConflict)

	got, err := store.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, []byte("hash"), got.PasswordHash)

	_, err = store.GetUserByEmail(ctx, "missing@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testTasksOwnerScoped(t *testing.T, store repository.Store) {
	ctx := context.Background()
	ownerA, ownerB, ownerC := newOwner(t, store), newOwner(t, store), newOwner(t, store)
	first := newTask(ownerA, "first")
	foreign := newTask(ownerB, "foreign")
	second := newTask(ownerA, "second")
	foreign.CreatedAt = first.CreatedAt.Add(time.Second)
	second.CreatedAt = first.CreatedAt.Add(2 * time.Second)
	for _, task := range []*domain.Task{first, foreign, second} {
		require.NoError(t, store.CreateTask(ctx, task))
	}

	tasks, err := store.ListTasksByOwner(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "first", tasks[0].Title)
	assert.Equal(t, "second", tasks[1].Title)
	assert.True(t, tasks[0].DueAt.Equal(first.DueAt))

	empty, err := store.ListTasksByOwner(ctx, ownerC)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testUpdateRequiresOwner(t *testing.T, store repository.Store) {
	ctx := context.Background()
	ownerA, ownerB := newOwner(t, store), newOwner(t, store)
	task := newTask(ownerA, "original")
	require.NoError(t, store.CreateTask(ctx, task))

	title := "hijacked"
	_, err := store.UpdateTask(ctx, ownerB, task.ID, domain.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.UpdateTask(ctx, ownerA, uuid.NewString(), domain.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	renamed := "renamed"
	updated, err := store.UpdateTask(ctx, ownerA, task.ID, domain.TaskPatch{Title: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, task.Description, updated.Description)
	assert.Equal(t, ownerA, updated.OwnerID)

	tasks, err := store.ListTasksByOwner(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "renamed", tasks[0].Title)
}

func testDeleteRequiresOwner(t *testing.T, store repository.Store) {
	ctx := context.Background()
	ownerA, ownerB := newOwner(t, store), newOwner(t, store)
	task := newTask(ownerA, "keep")
	require.NoError(t, store.CreateTask(ctx, task))

	assert.ErrorIs(t, store.DeleteTask(ctx, ownerB, task.ID), repository.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTask(ctx, ownerA, uuid.NewString()), repository.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTask(ctx, ownerA, "not-a-task-id"), repository.ErrNotFound)

	tasks, err := store.ListTasksByOwner(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, store.DeleteTask(ctx, ownerA, task.ID))
	assert.ErrorIs(t, store.DeleteTask(ctx, ownerA, task.ID), repository.ErrNotFound)

	tasks, err = store.ListTasksByOwner(ctx, ownerA)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func testConcurrentForeignWrites(t *testing.T, store repository.Store) {
	ctx := context.Background()
	ownerA, ownerB := newOwner(t, store), newOwner(t, store)
	task := newTask(ownerA, "mine")
	require.NoError(t, store.CreateTask(ctx, task))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			title := "stolen"
			_, _ = store.UpdateTask(ctx, ownerB, task.ID, domain.TaskPatch{Title: &title})
		}()
		go func() {
			defer wg.Done()
			_ = store.DeleteTask(ctx, ownerB, task.ID)
		}()
	}
	wg.Wait()

	tasks, err := store.ListTasksByOwner(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "mine", tasks[0].Title)
}

func newOwner(t *testing.T, store repository.Store) string {
	t.Helper()
	id := uuid.NewString()
	user := &domain.User{ID: id, Email: id + "@example.com", PasswordHash: []byte("hash"), CreatedAt: now()}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return id
}

func newTask(ownerID, title string) *domain.Task {
	return &domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: "description of " + title,
		DueAt:       time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC),
		CreatedAt:   now(),
	}
}

// now is truncated so backends with microsecond precision round-trip it.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
