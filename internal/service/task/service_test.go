package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository/memory"
	"github.com/splax/taskboard/internal/ws"
)

type recordedEvent struct {
	ownerID string
	event   domain.TaskEvent
}

type publisherStub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *publisherStub) Publish(ownerID string, event domain.TaskEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{ownerID: ownerID, event: event})
}

func newService() (Service, *publisherStub) {
	pub := &publisherStub{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(memory.New(), pub, log), pub
}

var dueAt = time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)

func TestCreateThenListRoundTrip(t *testing.T) {
	svc, pub := newService()
	owner := uuid.NewString()

	created, err := svc.Create(context.Background(), owner, CreateInput{Title: "Buy milk", DueAt: dueAt})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() || created.OwnerID != owner {
		t.Fatalf("unexpected created task: %+v", created)
	}

	tasks, err := svc.List(context.Background(), owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if tasks[0].Title != "Buy milk" || !tasks[0].DueAt.Equal(dueAt) {
		t.Fatalf("unexpected task: %+v", tasks[0])
	}
	if len(pub.events) != 1 || pub.events[0].event.Type != domain.TaskEventCreated || pub.events[0].ownerID != owner {
		t.Fatalf("expected one created event for owner, got %+v", pub.events)
	}
}

func TestListIsOwnerScoped(t *testing.T) {
	svc, _ := newService()
	ownerA, ownerB := uuid.NewString(), uuid.NewString()
	if _, err := svc.Create(context.Background(), ownerA, CreateInput{Title: "A's task", DueAt: dueAt}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := svc.List(context.Background(), ownerB)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", tasks)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, pub := newService()
	owner := uuid.NewString()
	cases := []struct {
		name  string
		input CreateInput
		field string
	}{
		{name: "missing title", input: CreateInput{DueAt: dueAt}, field: "title"},
		{name: "blank title", input: CreateInput{Title: "   ", DueAt: dueAt}, field: "title"},
		{name: "missing due", input: CreateInput{Title: "X"}, field: "dueAt"},
		{name: "long title", input: CreateInput{Title: strings.Repeat("x", MaxTitleLength+1), DueAt: dueAt}, field: "title"},
		{name: "long description", input: CreateInput{Title: "X", Description: strings.Repeat("x", MaxDescriptionLength+1), DueAt: dueAt}, field: "description"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), owner, tc.input)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
		})
	}
	if len(pub.events) != 0 {
		t.Fatalf("rejected creates must not publish events")
	}
}

func TestCreateRequiresOwner(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Create(context.Background(), " ", CreateInput{Title: "X", DueAt: dueAt}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUpdateAppliesPartialFields(t *testing.T) {
	svc, pub := newService()
	owner := uuid.NewString()
	created, err := svc.Create(context.Background(), owner, CreateInput{Title: "X", Description: "keep me", DueAt: dueAt})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "  Y  "
	ack, err := svc.Update(context.Background(), owner, created.ID, UpdateInput{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ack.Message != "Updated" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	tasks, _ := svc.List(context.Background(), owner)
	if tasks[0].Title != "Y" || tasks[0].Description != "keep me" || !tasks[0].DueAt.Equal(dueAt) {
		t.Fatalf("unexpected task after update: %+v", tasks[0])
	}
	last := pub.events[len(pub.events)-1]
	if last.event.Type != domain.TaskEventUpdated || last.event.Task == nil || last.event.Task.Title != "Y" {
		t.Fatalf("unexpected update event %+v", last.event)
	}
}

func TestUpdateRejectsEmptyPatchAndBlankTitle(t *testing.T) {
	svc, _ := newService()
	owner := uuid.NewString()
	created, err := svc.Create(context.Background(), owner, CreateInput{Title: "X", DueAt: dueAt})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Update(context.Background(), owner, created.ID, UpdateInput{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty patch, got %v", err)
	}
	blank := " "
	if _, err := svc.Update(context.Background(), owner, created.ID, UpdateInput{Title: &blank}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for blank title, got %v", err)
	}
}

func TestForeignUpdateAndDeleteFailWithoutMutation(t *testing.T) {
	svc, pub := newService()
	ownerA, ownerB := uuid.NewString(), uuid.NewString()
	created, err := svc.Create(context.Background(), ownerA, CreateInput{Title: "A's task", DueAt: dueAt})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "stolen"
	_, updateErr := svc.Update(context.Background(), ownerB, created.ID, UpdateInput{Title: &title})
	_, deleteErr := svc.Delete(context.Background(), ownerB, created.ID)
	_, missingErr := svc.Delete(context.Background(), ownerB, uuid.NewString())

	for name, err := range map[string]error{"update": updateErr, "delete": deleteErr} {
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("%s: expected not found, got %v", name, err)
		}
		if err.Error() != missingErr.Error() {
			t.Fatalf("%s: foreign task error %q differs from missing task error %q", name, err, missingErr)
		}
	}

	tasks, _ := svc.List(context.Background(), ownerA)
	if len(tasks) != 1 || tasks[0].Title != "A's task" {
		t.Fatalf("owner A's task was mutated: %+v", tasks)
	}
	if len(pub.events) != 1 {
		t.Fatalf("failed mutations must not publish events, got %d", len(pub.events))
	}
}

func TestDeleteMissingIsNotFoundAndLeavesStore(t *testing.T) {
	svc, _ := newService()
	owner := uuid.NewString()
	if _, err := svc.Create(context.Background(), owner, CreateInput{Title: "X", DueAt: dueAt}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Delete(context.Background(), owner, uuid.NewString()); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	tasks, _ := svc.List(context.Background(), owner)
	if len(tasks) != 1 {
		t.Fatalf("store changed after failed delete: %+v", tasks)
	}
}

func TestDeleteRemovesTask(t *testing.T) {
	svc, pub := newService()
	owner := uuid.NewString()
	created, err := svc.Create(context.Background(), owner, CreateInput{Title: "X", DueAt: dueAt})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ack, err := svc.Delete(context.Background(), owner, created.ID)
	if err != nil || ack.Message != "Deleted" {
		t.Fatalf("delete: %+v %v", ack, err)
	}
	tasks, _ := svc.List(context.Background(), owner)
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %+v", tasks)
	}
	last := pub.events[len(pub.events)-1]
	if last.event.Type != domain.TaskEventDeleted || last.event.TaskID != created.ID {
		t.Fatalf("unexpected delete event %+v", last.event)
	}
}

// blockedStream accepts a subscription but never finishes writing.
type blockedStream struct {
	release chan struct{}
}

func (b blockedStream) Send([]byte) error {
	<-b.release
	return errors.New("stream closed")
}

func (b blockedStream) Close() {}

func TestStalledStreamDoesNotBlockOtherOwners(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := ws.NewHub(log)
	defer hub.Stop()
	svc := New(memory.New(), ws.NewTaskFeed(hub, log), log)

	slowOwner, otherOwner := uuid.NewString(), uuid.NewString()
	stream := blockedStream{release: make(chan struct{})}
	defer close(stream.release)
	hub.Register(slowOwner, stream)

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 400; i++ {
			if _, err := svc.Create(context.Background(), slowOwner, CreateInput{Title: "backlog", DueAt: dueAt}); err != nil {
				done <- err
				return
			}
		}
		_, err := svc.Create(context.Background(), otherOwner, CreateInput{Title: "unaffected", DueAt: dueAt})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("creates stalled behind a blocked task stream")
	}
}
