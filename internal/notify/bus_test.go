package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func waitForMessages(t *testing.T, m *MockPublisher, n int) []Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := m.Messages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, have %d", n, len(m.Messages()))
	return nil
}

func TestBusPublishesBroadcast(t *testing.T) {
	mock := NewMockPublisher()
	bus := NewBus(mock, BusOptions{TopicPrefix: "dialer"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Close()

	bus.Enqueue(Event{Type: EventSessionRinging, SessionID: "s1", From: "+14155551234"})

	msgs := waitForMessages(t, mock, 1)
	if msgs[0].Topic != "dialer/events" {
		t.Fatalf("expected broadcast topic, got %q", msgs[0].Topic)
	}
	var e Event
	if err := json.Unmarshal(msgs[0].Payload, &e); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if e.Type != EventSessionRinging || e.SessionID != "s1" {
		t.Fatalf("unexpected payload: %+v", e)
	}
}

func TestBusTargetedTopic(t *testing.T) {
	mock := NewMockPublisher()
	bus := NewBus(mock, BusOptions{TopicPrefix: "dialer"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Close()

	bus.Enqueue(Event{Type: EventSessionAnswered, SessionID: "s1", TargetAgentID: "A1"})

	msgs := waitForMessages(t, mock, 1)
	if msgs[0].Topic != "dialer/agents/A1" {
		t.Fatalf("expected targeted topic, got %q", msgs[0].Topic)
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	mock := NewMockPublisher()
	bus := NewBus(mock, BusOptions{QueueSize: 1})
	// Not started: the queue fills and further enqueues must drop, not block.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Enqueue(Event{Type: EventSessionRinging, SessionID: "s"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("enqueue blocked on a full queue")
	}
	if bus.Dropped() != 9 {
		t.Fatalf("expected 9 dropped, got %d", bus.Dropped())
	}
}
