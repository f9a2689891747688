package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialer-platform/internal/lookup"
	"dialer-platform/internal/notify"
	"dialer-platform/internal/session"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
)

var (
	// ErrAgentBusy is a conflict: the agent already holds an active call.
	ErrAgentBusy = errors.New("bridge: agent already on an active call")

	// ErrRoutingFailure is retryable: the agent leg failed to join and the
	// customer leg was preserved.
	ErrRoutingFailure = errors.New("bridge: agent leg failed to join")

	// ErrNotJoinable is a conflict: the session's state does not permit
	// bridging.
	ErrNotJoinable = errors.New("bridge: session not joinable")

	// ErrDoNotCall rejects an outbound dial to a contact flagged
	// do-not-call. The flag is honored unconditionally; there is no
	// override path.
	ErrDoNotCall = errors.New("bridge: contact is flagged do-not-call")
)

// Coordinator owns conference-room bridging: it joins agent legs into the
// room keyed by the session id, dials outbound customer legs, and handles
// transfers without dropping the customer.
//
// Carrier interactions are fire-and-confirm; nothing here blocks waiting on
// call progress. The one timing element is the fixed delay before joining
// the agent on outbound flows, implemented as a scheduled follow-up.
type Coordinator struct {
	store    *session.Store
	carrier  telephony.Carrier
	slots    AgentSlots
	bus      *notify.Bus
	resolver *lookup.Resolver

	joinDelay time.Duration

	// AgentEndpoint maps an agent id to its carrier dial target.
	AgentEndpoint func(agentID string) string

	// schedule defaults to time.AfterFunc; injectable for tests.
	schedule func(d time.Duration, fn func())

	// statusCallbackURL receives carrier progress webhooks for legs we
	// originate.
	statusCallbackURL string
	outboundCallerID  string
}

type Options struct {
	JoinDelay         time.Duration
	StatusCallbackURL string
	OutboundCallerID  string
}

func NewCoordinator(store *session.Store, carrier telephony.Carrier, slots AgentSlots, bus *notify.Bus, resolver *lookup.Resolver, opts Options) *Coordinator {
	if opts.JoinDelay <= 0 {
		opts.JoinDelay = 3 * time.Second
	}
	return &Coordinator{
		store:     store,
		carrier:   carrier,
		slots:     slots,
		bus:       bus,
		resolver:  resolver,
		joinDelay: opts.JoinDelay,
		AgentEndpoint: func(agentID string) string {
			return "sip:agent-" + agentID + "@dialer.internal"
		},
		schedule:          func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		statusCallbackURL: opts.StatusCallbackURL,
		outboundCallerID:  opts.OutboundCallerID,
	}
}

// WithScheduler overrides the follow-up scheduler. For tests.
func (c *Coordinator) WithScheduler(schedule func(d time.Duration, fn func())) *Coordinator {
	c.schedule = schedule
	return c
}

type BridgeResult struct {
	Session        session.CallSession `json:"session"`
	ConferenceRoom string              `json:"conference_room"`
	AgentLegID     string              `json:"agent_leg_id"`
}

// BridgeAgent joins an agent into the session's conference room.
//
// Preconditions: the session is in ringing, queued, or answered, and the
// agent holds no other active call. On a carrier join failure the session is
// parked in queued and the failure is reported as retryable; the customer
// leg is never torn down here.
func (c *Coordinator) BridgeAgent(ctx context.Context, sessionID, agentID string) (BridgeResult, error) {
	sess, ok := c.store.Get(sessionID)
	if !ok {
		return BridgeResult{}, session.ErrNotFound
	}
	switch sess.Status {
	case session.StatusRinging, session.StatusQueued, session.StatusAnswered:
	default:
		return BridgeResult{}, fmt.Errorf("%w: status %s", ErrNotJoinable, sess.Status)
	}

	if active, ok := c.store.ActiveSessionForAgent(agentID); ok && active.ID != sessionID {
		return BridgeResult{}, fmt.Errorf("%w: session %s", ErrAgentBusy, active.ID)
	}

	acquired, err := c.slots.Acquire(ctx, agentID)
	if err != nil {
		return BridgeResult{}, fmt.Errorf("bridge: slot acquire: %w", err)
	}
	if !acquired {
		if active, ok := c.store.ActiveSessionForAgent(agentID); !ok || active.ID != sessionID {
			return BridgeResult{}, ErrAgentBusy
		}
		// Slot already held for this same session (bridge retry after a
		// partial failure); proceed.
	}

	room := session.ConferenceRoom(sessionID)
	join, err := c.carrier.JoinConference(ctx, telephony.JoinRequest{
		Endpoint: c.AgentEndpoint(agentID),
		Room:     room,
		From:     c.outboundCallerID,
	})
	if err != nil {
		c.requeueAfterJoinFailure(ctx, sessionID, agentID)
		return BridgeResult{}, fmt.Errorf("%w: %v", ErrRoutingFailure, err)
	}

	if _, err := c.store.AddLeg(ctx, sessionID, session.LegRoleAgent, join.CarrierLegID); err != nil {
		logger.From(ctx).Warn("agent leg attach failed", "session_id", sessionID, "err", err)
	}

	if sess.Status == session.StatusRinging || sess.Status == session.StatusQueued {
		if _, err := c.store.Transition(ctx, sessionID, session.TransitionRequest{
			Next:    session.StatusAnswered,
			Reason:  "agent accepted",
			AgentID: agentID,
		}); err != nil && !errors.Is(err, session.ErrStaleTransition) {
			_ = c.slots.Release(ctx, agentID)
			return BridgeResult{}, err
		}
	}

	out, err := c.store.Transition(ctx, sessionID, session.TransitionRequest{
		Next:             session.StatusBridged,
		Reason:           "agent leg joined conference",
		ConferenceRoomID: room,
		AgentID:          agentID,
	})
	if err != nil {
		// Covers the race where the session ended between the join and
		// this transition; without the release the slot would only fall
		// back to its TTL.
		_ = c.slots.Release(ctx, agentID)
		return BridgeResult{}, err
	}

	c.bus.Enqueue(notify.Event{
		Type:          notify.EventSessionAnswered,
		SessionID:     out.ID,
		CarrierCallID: out.CarrierCallID,
		TargetAgentID: agentID,
	})

	return BridgeResult{Session: out, ConferenceRoom: room, AgentLegID: join.CarrierLegID}, nil
}

// TransferTarget is either another agent or a named queue, not both.
type TransferTarget struct {
	AgentID string `json:"agent_id,omitempty"`
	QueueID string `json:"queue_id,omitempty"`
}

// TransferSession re-parents a bridged session without destroying the
// conference room, so the customer leg survives the handoff.
func (c *Coordinator) TransferSession(ctx context.Context, sessionID string, target TransferTarget) (session.CallSession, error) {
	if (target.AgentID == "") == (target.QueueID == "") {
		return session.CallSession{}, fmt.Errorf("%w: exactly one of agent or queue target required", session.ErrInvalidArgument)
	}

	sess, ok := c.store.Get(sessionID)
	if !ok {
		return session.CallSession{}, session.ErrNotFound
	}
	if sess.Status != session.StatusBridged {
		return session.CallSession{}, fmt.Errorf("%w: status %s", ErrNotJoinable, sess.Status)
	}
	prevAgent := sess.AssignedAgentID

	if target.AgentID != "" {
		if active, ok := c.store.ActiveSessionForAgent(target.AgentID); ok && active.ID != sessionID {
			return session.CallSession{}, fmt.Errorf("%w: session %s", ErrAgentBusy, active.ID)
		}
		acquired, err := c.slots.Acquire(ctx, target.AgentID)
		if err != nil {
			return session.CallSession{}, fmt.Errorf("bridge: slot acquire: %w", err)
		}
		if !acquired {
			return session.CallSession{}, ErrAgentBusy
		}
		if _, err := c.carrier.JoinConference(ctx, telephony.JoinRequest{
			Endpoint: c.AgentEndpoint(target.AgentID),
			Room:     sess.ConferenceRoomID,
			From:     c.outboundCallerID,
		}); err != nil {
			_ = c.slots.Release(ctx, target.AgentID)
			return session.CallSession{}, fmt.Errorf("%w: %v", ErrRoutingFailure, err)
		}
	}

	out, err := c.store.Transition(ctx, sessionID, session.TransitionRequest{
		Next:    session.StatusTransferred,
		Reason:  "transfer",
		AgentID: target.AgentID,
		QueueID: target.QueueID,
	})
	if err != nil {
		if target.AgentID != "" {
			_ = c.slots.Release(ctx, target.AgentID)
		}
		return session.CallSession{}, err
	}

	if prevAgent != "" && prevAgent != target.AgentID {
		if err := c.slots.Release(ctx, prevAgent); err != nil {
			logger.From(ctx).Warn("slot release failed", "agent_id", prevAgent, "err", err)
		}
	}

	c.bus.Enqueue(notify.Event{
		Type:          notify.EventSessionTransferred,
		SessionID:     out.ID,
		CarrierCallID: out.CarrierCallID,
		TargetAgentID: target.AgentID,
	})
	return out, nil
}

type StartOutboundRequest struct {
	To         string `json:"to"`
	AgentID    string `json:"agent_id"`
	CampaignID string `json:"campaign_id,omitempty"`
	ContactID  string `json:"contact_id,omitempty"`
}

// StartOutbound dials the customer leg first, then schedules the agent join
// after the configured delay. The ordering is deliberate: the agent must not
// be connected to dead air or voicemail before the customer line is
// confirmed live.
func (c *Coordinator) StartOutbound(ctx context.Context, req StartOutboundRequest) (session.CallSession, error) {
	if req.To == "" || req.AgentID == "" {
		return session.CallSession{}, fmt.Errorf("%w: to and agent_id required", session.ErrInvalidArgument)
	}
	if active, ok := c.store.ActiveSessionForAgent(req.AgentID); ok {
		return session.CallSession{}, fmt.Errorf("%w: session %s", ErrAgentBusy, active.ID)
	}

	if c.resolver != nil {
		if contact, ok, err := c.resolver.Resolve(ctx, req.To); err == nil && ok && contact.DoNotCall {
			return session.CallSession{}, fmt.Errorf("%w: %s", ErrDoNotCall, req.To)
		}
	}

	dial, err := c.carrier.Dial(ctx, telephony.DialRequest{
		To:                req.To,
		From:              c.outboundCallerID,
		StatusCallbackURL: c.statusCallbackURL,
	})
	if err != nil {
		return session.CallSession{}, fmt.Errorf("bridge: customer dial failed: %w", err)
	}

	sess, err := c.store.Create(ctx, session.CreateRequest{
		CarrierCallID:     dial.CarrierCallID,
		Direction:         session.DirectionOutbound,
		CounterpartNumber: req.To,
		ContactID:         req.ContactID,
		CampaignID:        req.CampaignID,
	})
	if err != nil {
		return session.CallSession{}, err
	}
	if _, err := c.store.AddLeg(ctx, sess.ID, session.LegRoleCustomer, dial.CarrierCallID); err != nil {
		logger.From(ctx).Warn("customer leg attach failed", "session_id", sess.ID, "err", err)
	}

	if c.resolver != nil {
		if err := c.resolver.MarkOutboundDial(ctx, req.To); err != nil {
			logger.From(ctx).Warn("recent-dial mark failed", "to", req.To, "err", err)
		}
	}

	sessionID, agentID := sess.ID, req.AgentID
	c.schedule(c.joinDelay, func() {
		followCtx := context.Background()
		if _, err := c.BridgeAgent(followCtx, sessionID, agentID); err != nil {
			logger.From(followCtx).Warn("scheduled agent join failed", "session_id", sessionID, "agent_id", agentID, "err", err)
		}
	})

	return sess, nil
}

// EndSession drives the terminal transition, releases the agent slot, and
// notifies clients. Ending is idempotent; changed=false on a repeat signal.
func (c *Coordinator) EndSession(ctx context.Context, sessionID, reason string, durationSeconds int) (session.CallSession, bool, error) {
	out, changed, err := c.store.End(ctx, sessionID, reason, durationSeconds)
	if err != nil {
		return out, false, err
	}
	if !changed {
		return out, false, nil
	}
	if out.AssignedAgentID != "" {
		if err := c.slots.Release(ctx, out.AssignedAgentID); err != nil {
			logger.From(ctx).Warn("slot release failed", "agent_id", out.AssignedAgentID, "err", err)
		}
	}
	c.bus.Enqueue(notify.Event{
		Type:          notify.EventSessionEnded,
		SessionID:     out.ID,
		CarrierCallID: out.CarrierCallID,
		TargetAgentID: out.AssignedAgentID,
	})
	return out, true, nil
}

// requeueAfterJoinFailure parks the session in queued so routing can retry.
// Sessions already answered stay answered; forward-only rules out moving
// them back.
func (c *Coordinator) requeueAfterJoinFailure(ctx context.Context, sessionID, agentID string) {
	_ = c.slots.Release(ctx, agentID)
	sess, ok := c.store.Get(sessionID)
	if !ok || sess.Status != session.StatusRinging {
		return
	}
	if _, err := c.store.Transition(ctx, sessionID, session.TransitionRequest{
		Next:   session.StatusQueued,
		Reason: "agent join failed",
	}); err != nil {
		logger.From(ctx).Warn("requeue failed", "session_id", sessionID, "err", err)
	}
}
