package session

import (
	"context"
	"errors"
	"sync"
)

// MemoryRepo is a simple in-memory durable store for tests and early
// development. The event slice is append-only, matching the Postgres
// repository's insert-only policy.
type MemoryRepo struct {
	mu sync.Mutex

	Sessions map[string]CallSession
	Legs     []CallLeg
	Events   []Event

	// FailSaves makes SaveSession fail. Used to exercise persist-failure
	// fallbacks in the gateway.
	FailSaves bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{Sessions: map[string]CallSession{}}
}

func (r *MemoryRepo) SaveSession(ctx context.Context, s CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSaves {
		return errors.New("save failed")
	}
	r.Sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) SaveLeg(ctx context.Context, l CallLeg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Legs = append(r.Legs, l)
	return nil
}

func (r *MemoryRepo) AppendEvent(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}

// EventsFor returns the recorded transition log for one session, in append order.
func (r *MemoryRepo) EventsFor(sessionID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range r.Events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}
