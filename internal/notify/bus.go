package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event types pushed to agent clients.
const (
	EventSessionRinging     = "session_ringing"
	EventSessionAnswered    = "session_answered"
	EventSessionTransferred = "session_transferred"
	EventSessionEnded       = "session_ended"
)

// Event is one real-time notification. TargetAgentID narrows delivery to a
// single agent's topic; empty means broadcast.
type Event struct {
	Type          string    `json:"type"`
	SessionID     string    `json:"session_id"`
	CarrierCallID string    `json:"carrier_call_id,omitempty"`
	From          string    `json:"from,omitempty"`
	Priority      string    `json:"priority,omitempty"`
	ContactID     string    `json:"contact_id,omitempty"`
	TargetAgentID string    `json:"-"`
	At            time.Time `json:"at"`
}

// Bus fans events out to agent clients through a bounded queue and a single
// publishing goroutine. Delivery is best-effort: when the queue is full the
// event is dropped and logged, never blocking a call-flow path. Clients
// reconcile via the REST endpoints on reconnect.
type Bus struct {
	publisher   Publisher
	topicPrefix string

	queue chan Event
	log   *slog.Logger

	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	dropped int
}

type BusOptions struct {
	TopicPrefix string
	QueueSize   int
	Logger      *slog.Logger
}

func NewBus(p Publisher, opts BusOptions) *Bus {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "dialer"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bus{
		publisher:   p,
		topicPrefix: opts.TopicPrefix,
		queue:       make(chan Event, opts.QueueSize),
		log:         opts.Logger,
		done:        make(chan struct{}),
	}
}

// Start runs the publishing loop until ctx is canceled or Close is called.
func (b *Bus) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case e := <-b.queue:
				b.publish(ctx, e)
			}
		}
	}()
}

// Enqueue hands an event to the bus without blocking.
func (b *Bus) Enqueue(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case b.queue <- e:
	default:
		b.mu.Lock()
		b.dropped++
		n := b.dropped
		b.mu.Unlock()
		b.log.Warn("notification dropped, queue full", "type", e.Type, "session_id", e.SessionID, "dropped_total", n)
	}
}

// Dropped returns how many events were discarded due to a full queue.
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Bus) Close() {
	b.stopOnce.Do(func() { close(b.done) })
}

func (b *Bus) publish(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		b.log.Error("notification marshal failed", "type", e.Type, "err", err)
		return
	}
	topic := b.topicPrefix + "/events"
	if e.TargetAgentID != "" {
		topic = b.topicPrefix + "/agents/" + e.TargetAgentID
	}
	if err := b.publisher.Publish(ctx, topic, payload); err != nil {
		// Best-effort by contract; log and move on.
		b.log.Warn("notification publish failed", "topic", topic, "err", err)
	}
}
