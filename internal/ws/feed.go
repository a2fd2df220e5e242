package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/splax/taskboard/internal/domain"
)

// TaskFeed publishes task events to the owner's live connections.
type TaskFeed struct {
	hub    *Hub
	logger *slog.Logger
}

// NewTaskFeed binds a feed to a hub.
func NewTaskFeed(hub *Hub, logger *slog.Logger) *TaskFeed {
	return &TaskFeed{hub: hub, logger: logger}
}

// Publish implements task.Publisher.
func (f *TaskFeed) Publish(ownerID string, event domain.TaskEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("encode task event", "error", err, "type", event.Type, "task_id", event.TaskID)
		return
	}
	f.hub.Broadcast(ownerID, payload)
}
