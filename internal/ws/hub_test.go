package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/taskboard/internal/domain"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stuckSubscriber never completes a Send until released.
type stuckSubscriber struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newStuckSubscriber() *stuckSubscriber {
	return &stuckSubscriber{release: make(chan struct{}), closed: make(chan struct{})}
}

func (s *stuckSubscriber) Send([]byte) error {
	<-s.release
	return errors.New("released")
}

func (s *stuckSubscriber) Close() {
	s.once.Do(func() { close(s.closed) })
}

type stubSubscriber struct {
	mu       sync.Mutex
	messages chan []byte
	fail     bool
	closed   bool
}

func newStubSubscriber() *stubSubscriber {
	return &stubSubscriber{messages: make(chan []byte, 8)}
}

func (s *stubSubscriber) Send(payload []byte) error {
	if s.fail {
		return errors.New("broken pipe")
	}
	s.messages <- payload
	return nil
}

func (s *stubSubscriber) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *stubSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func receive(t *testing.T, s *stubSubscriber) []byte {
	t.Helper()
	select {
	case msg := <-s.messages:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
		return nil
	}
}

func TestHubDeliversOnlyToOwner(t *testing.T) {
	hub := NewHub(newLogger())
	defer hub.Stop()

	owner, other := newStubSubscriber(), newStubSubscriber()
	hub.Register("owner-a", owner)
	hub.Register("owner-b", other)

	hub.Broadcast("owner-a", []byte("hello"))
	if got := string(receive(t, owner)); got != "hello" {
		t.Fatalf("unexpected payload %q", got)
	}
	hub.Broadcast("owner-b", []byte("marker"))
	if got := string(receive(t, other)); got != "marker" {
		t.Fatalf("owner b received %q before its own message", got)
	}
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	hub := NewHub(newLogger())
	defer hub.Stop()

	broken := newStubSubscriber()
	broken.fail = true
	hub.Register("owner-a", broken)
	hub.Broadcast("owner-a", []byte("x"))

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers("owner-a") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("failing subscriber was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !broken.isClosed() {
		t.Fatalf("failing subscriber was not closed")
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub(newLogger())
	defer hub.Stop()

	sub := newStubSubscriber()
	hub.Register("owner-a", sub)
	if n := hub.Subscribers("owner-a"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	hub.Unregister("owner-a", sub)
	if n := hub.Subscribers("owner-a"); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
}

func TestHubStopClosesSubscribers(t *testing.T) {
	hub := NewHub(newLogger())
	sub := newStubSubscriber()
	hub.Register("owner-a", sub)
	hub.Stop()

	deadline := time.Now().Add(time.Second)
	for !sub.isClosed() {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not closed on stop")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast("owner-a", []byte("ignored"))
	hub.Stop()
}

func TestTaskFeedEncodesEvents(t *testing.T) {
	hub := NewHub(newLogger())
	defer hub.Stop()
	sub := newStubSubscriber()
	hub.Register("owner-a", sub)

	feed := NewTaskFeed(hub, newLogger())
	feed.Publish("owner-a", domain.TaskEvent{Type: domain.TaskEventDeleted, TaskID: "t1"})

	var event domain.TaskEvent
	if err := json.Unmarshal(receive(t, sub), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != domain.TaskEventDeleted || event.TaskID != "t1" || event.Task != nil {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestHubStuckSubscriberDoesNotDelayOthers(t *testing.T) {
	hub := NewHub(newLogger())
	defer hub.Stop()

	stuck := newStuckSubscriber()
	defer close(stuck.release)
	hub.Register("slow-owner", stuck)
	other := newStubSubscriber()
	hub.Register("other-owner", other)

	start := time.Now()
	for i := 0; i < broadcastBuffer+subscriberBuffer+100; i++ {
		hub.Broadcast("slow-owner", []byte("backlog"))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("broadcast to a stuck subscriber blocked the caller for %s", elapsed)
	}

	select {
	case <-stuck.closed:
	case <-time.After(time.Second):
		t.Fatalf("stuck subscriber was not disconnected")
	}

	// The backlog may still be draining, so the event can be shed; retry until it lands.
	deadline := time.Now().Add(2 * time.Second)
	for delivered := false; !delivered; {
		if time.Now().After(deadline) {
			t.Fatalf("other owner never received an event")
		}
		hub.Broadcast("other-owner", []byte("fresh"))
		select {
		case got := <-other.messages:
			if string(got) != "fresh" {
				t.Fatalf("unexpected payload %q", got)
			}
			delivered = true
		case <-time.After(50 * time.Millisecond):
		}
	}
	if n := hub.Subscribers("slow-owner"); n != 0 {
		t.Fatalf("stuck subscriber still registered (%d)", n)
	}
}
