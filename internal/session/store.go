package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dialer-platform/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("session: not found")
	ErrStaleTransition = errors.New("session: stale transition")
	ErrInvalidArgument = errors.New("session: invalid argument")
)

// Repository is the durable half of the store. The in-memory registry is the
// source of truth for live sessions; writes here are the system of record
// for ended ones.
//
// AppendEvent MUST be append-only.
type Repository interface {
	SaveSession(ctx context.Context, s CallSession) error
	SaveLeg(ctx context.Context, l CallLeg) error
	AppendEvent(ctx context.Context, e Event) error
}

// Store is the keyed session registry. Every mutation goes through a
// per-session lock with a current-status precondition check, so concurrent
// updates to the same session serialize and stale requests are rejected
// rather than merged.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	byCarrierID map[string]string

	repo  Repository
	clock func() time.Time
}

type entry struct {
	mu   sync.Mutex
	sess CallSession
	legs []CallLeg
}

func NewStore(repo Repository) *Store {
	return &Store{
		sessions:    make(map[string]*entry),
		byCarrierID: make(map[string]string),
		repo:        repo,
		clock:       time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

type CreateRequest struct {
	CarrierCallID     string
	Direction         Direction
	CounterpartNumber string
	ContactID         string
	CampaignID        string
	Priority          Priority
}

// Create registers a new session in ringing. The durable write is part of
// the contract here: callers use the error to fall back to a safe carrier
// instruction instead of surfacing a raw failure to the caller on the line.
func (s *Store) Create(ctx context.Context, req CreateRequest) (CallSession, error) {
	if req.CounterpartNumber == "" {
		return CallSession{}, fmt.Errorf("%w: counterpart number required", ErrInvalidArgument)
	}
	if req.Direction != DirectionInbound && req.Direction != DirectionOutbound {
		return CallSession{}, fmt.Errorf("%w: direction required", ErrInvalidArgument)
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}

	now := s.clock().UTC()
	sess := CallSession{
		ID:                uuid.NewString(),
		CarrierCallID:     req.CarrierCallID,
		Direction:         req.Direction,
		CounterpartNumber: req.CounterpartNumber,
		ContactID:         req.ContactID,
		CampaignID:        req.CampaignID,
		Status:            StatusRinging,
		Priority:          req.Priority,
		CreatedAt:         now,
	}

	s.mu.Lock()
	if req.CarrierCallID != "" {
		if existingID, ok := s.byCarrierID[req.CarrierCallID]; ok {
			existing := s.sessions[existingID]
			s.mu.Unlock()
			existing.mu.Lock()
			defer existing.mu.Unlock()
			return existing.sess, fmt.Errorf("%w: carrier call %s already tracked", ErrInvalidArgument, req.CarrierCallID)
		}
		s.byCarrierID[req.CarrierCallID] = sess.ID
	}
	s.sessions[sess.ID] = &entry{sess: sess}
	s.mu.Unlock()

	ev := Event{ID: uuid.NewString(), SessionID: sess.ID, From: "", To: StatusRinging, Reason: "created", At: now}
	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, sess); err != nil {
			// Roll the registry back so a later retry with the same
			// carrier call id starts clean.
			s.mu.Lock()
			delete(s.sessions, sess.ID)
			if req.CarrierCallID != "" {
				delete(s.byCarrierID, req.CarrierCallID)
			}
			s.mu.Unlock()
			return CallSession{}, fmt.Errorf("session: persist failed: %w", err)
		}
		if err := s.repo.AppendEvent(ctx, ev); err != nil {
			logger.From(ctx).Warn("session event persist failed", "session_id", sess.ID, "err", err)
		}
	}
	return sess, nil
}

func (s *Store) Get(id string) (CallSession, bool) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return CallSession{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, true
}

func (s *Store) GetByCarrierID(carrierCallID string) (CallSession, bool) {
	s.mu.RLock()
	id, ok := s.byCarrierID[carrierCallID]
	s.mu.RUnlock()
	if !ok {
		return CallSession{}, false
	}
	return s.Get(id)
}

// TransitionRequest describes one forward move and the fields that become
// meaningful in the target state.
type TransitionRequest struct {
	Next   Status
	Reason string

	// ConferenceRoomID is required when Next is bridged.
	ConferenceRoomID string

	AgentID string
	QueueID string

	// DurationSeconds applies when Next is ended.
	DurationSeconds int
}

// Transition applies one compare-and-set style update. The precondition is
// the current recorded status: a request whose source state no longer
// permits the move is rejected with ErrStaleTransition, never coerced.
// A late duplicate webhook therefore cannot resurrect an ended call.
func (s *Store) Transition(ctx context.Context, id string, req TransitionRequest) (CallSession, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return CallSession{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.sess.Status
	if !CanTransition(cur, req.Next) {
		return e.sess, fmt.Errorf("%w: %s -> %s", ErrStaleTransition, cur, req.Next)
	}

	now := s.clock().UTC()
	next := e.sess
	next.Status = req.Next

	switch req.Next {
	case StatusAnswered:
		if next.AnsweredAt == nil {
			t := now
			next.AnsweredAt = &t
		}
		if req.AgentID != "" {
			next.AssignedAgentID = req.AgentID
		}
	case StatusBridged:
		if req.ConferenceRoomID == "" {
			return e.sess, fmt.Errorf("%w: conference room required for bridged", ErrInvalidArgument)
		}
		next.ConferenceRoomID = req.ConferenceRoomID
		if req.AgentID != "" {
			next.AssignedAgentID = req.AgentID
		}
	case StatusTransferred:
		// Room is preserved across transfer; re-parent the agent or queue.
		if req.AgentID != "" {
			next.AssignedAgentID = req.AgentID
			next.AssignedQueueID = ""
		}
		if req.QueueID != "" {
			next.AssignedQueueID = req.QueueID
			next.AssignedAgentID = ""
		}
	case StatusQueued:
		if req.QueueID != "" {
			next.AssignedQueueID = req.QueueID
		}
	case StatusEnded:
		t := now
		next.EndedAt = &t
		next.ConferenceRoomID = ""
		if req.DurationSeconds > 0 {
			next.DurationSeconds = req.DurationSeconds
		} else if next.AnsweredAt != nil {
			next.DurationSeconds = int(now.Sub(*next.AnsweredAt) / time.Second)
		}
	}

	e.sess = next
	ev := Event{ID: uuid.NewString(), SessionID: id, From: cur, To: req.Next, Reason: req.Reason, At: now}
	s.persist(ctx, next, ev)
	return next, nil
}

// End drives the terminal transition from whatever state the session is in.
// Ending is idempotent: a second end signal for an already-ended session is
// a no-op acknowledgment, reported via changed=false.
func (s *Store) End(ctx context.Context, id, reason string, durationSeconds int) (sess CallSession, changed bool, err error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return CallSession{}, false, ErrNotFound
	}

	e.mu.Lock()
	alreadyEnded := e.sess.Status == StatusEnded
	e.mu.Unlock()
	if alreadyEnded {
		cur, _ := s.Get(id)
		return cur, false, nil
	}

	out, err := s.Transition(ctx, id, TransitionRequest{Next: StatusEnded, Reason: reason, DurationSeconds: durationSeconds})
	if err != nil {
		// Lost the race against another end signal; treat as the no-op case.
		if errors.Is(err, ErrStaleTransition) && out.Status == StatusEnded {
			return out, false, nil
		}
		return out, false, err
	}
	return out, true, nil
}

// SetRecordingURL attaches a recording reference without a status change.
func (s *Store) SetRecordingURL(ctx context.Context, id, url string) error {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	e.sess.RecordingURL = url
	sess := e.sess
	e.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, sess); err != nil {
			logger.From(ctx).Warn("session persist failed", "session_id", id, "err", err)
		}
	}
	return nil
}

// AddLeg attaches a call leg to an existing session.
func (s *Store) AddLeg(ctx context.Context, sessionID string, role LegRole, carrierLegID string) (CallLeg, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return CallLeg{}, ErrNotFound
	}

	leg := CallLeg{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		CarrierLegID: carrierLegID,
		Role:         role,
		Status:       LegStatusDialing,
		CreatedAt:    s.clock().UTC(),
	}

	e.mu.Lock()
	if len(e.legs) >= 2 {
		e.mu.Unlock()
		return CallLeg{}, fmt.Errorf("%w: session already has two legs", ErrInvalidArgument)
	}
	e.legs = append(e.legs, leg)
	e.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveLeg(ctx, leg); err != nil {
			logger.From(ctx).Warn("leg persist failed", "session_id", sessionID, "err", err)
		}
	}
	return leg, nil
}

func (s *Store) Legs(sessionID string) []CallLeg {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CallLeg, len(e.legs))
	copy(out, e.legs)
	return out
}

// ActiveSessionForAgent returns the non-ended session the agent is assigned
// to, if any. Callers enforcing the one-active-call rule combine this with
// an agent slot acquisition; this is the observation side.
func (s *Store) ActiveSessionForAgent(agentID string) (CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.sessions {
		e.mu.Lock()
		sess := e.sess
		e.mu.Unlock()
		if sess.AssignedAgentID == agentID && !sess.Ended() {
			return sess, true
		}
	}
	return CallSession{}, false
}

// persist is best-effort for post-create updates: a durable-write failure
// must not drop a live customer call, so it is logged and absorbed.
func (s *Store) persist(ctx context.Context, sess CallSession, ev Event) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		logger.From(ctx).Warn("session persist failed", "session_id", sess.ID, "err", err)
	}
	if err := s.repo.AppendEvent(ctx, ev); err != nil {
		logger.From(ctx).Warn("session event persist failed", "session_id", sess.ID, "err", err)
	}
}
