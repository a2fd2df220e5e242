package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/taskboard/internal/repository"
	"github.com/splax/taskboard/internal/repository/storetest"
)

// Set TASKBOARD_TEST_MONGO_URI to run against a disposable server.
func TestStoreContract(t *testing.T) {
	uri := os.Getenv("TASKBOARD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TASKBOARD_TEST_MONGO_URI not set")
	}
	storetest.Run(t, func(t *testing.T) repository.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		database := fmt.Sprintf("taskboard_test_%s", uuid.NewString()[:8])
		repo, err := Connect(ctx, uri, database)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = repo.client.Database(database).Drop(context.Background())
			_ = repo.Close(context.Background())
		})
		return repo
	})
}

func TestTaskDocumentToDomainNormalisesTimes(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	doc := taskDocument{
		ID:        "t1",
		OwnerID:   "u1",
		Title:     "Buy milk",
		DueAt:     time.Date(2025, time.January, 1, 12, 0, 0, 0, loc),
		CreatedAt: time.Date(2024, time.December, 31, 9, 0, 0, 0, loc),
	}
	task := doc.toDomain()

	assert.Equal(t, time.UTC, task.DueAt.Location())
	assert.True(t, task.DueAt.Equal(doc.DueAt))
	assert.Equal(t, "u1", task.OwnerID)
	assert.Equal(t, "Buy milk", task.Title)
}
