package gateway

import (
	"context"
	"errors"
	"fmt"

	"dialer-platform/internal/config"
	"dialer-platform/internal/lookup"
	"dialer-platform/internal/notify"
	"dialer-platform/internal/session"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
)

var ErrUnknownCall = errors.New("gateway: unknown carrier call")

// SessionEnder owns terminal teardown. Routing it through one place keeps
// agent slot release and the ended notification consistent whether the hangup
// came from the carrier or from an agent action.
type SessionEnder interface {
	EndSession(ctx context.Context, sessionID, reason string, durationSeconds int) (session.CallSession, bool, error)
}

// Service is the inbound gateway: it turns validated carrier events into
// session state and call-control instructions.
//
// Failure policy: anything that would otherwise drop a live customer call is
// absorbed into a safe fallback instruction. Lookup failures proceed as an
// unknown caller; persistence failures fall back to the busy message plus
// hangup. A raw error never reaches the caller on the line.
type Service struct {
	store    *session.Store
	resolver *lookup.Resolver
	bus      *notify.Bus
	ender    SessionEnder

	greeting     string
	holdMusicURL string
	busyMessage  string
}

func NewService(store *session.Store, resolver *lookup.Resolver, bus *notify.Bus, ender SessionEnder, cfg config.DialerConfig) *Service {
	return &Service{
		store:        store,
		resolver:     resolver,
		bus:          bus,
		ender:        ender,
		greeting:     cfg.GreetingText,
		holdMusicURL: cfg.HoldMusicURL,
		busyMessage:  "All our agents are currently busy. Please try again later.",
	}
}

// HandleInboundEvent resolves the caller, opens a ringing session, notifies
// agents, and returns the conference placement instruction.
func (s *Service) HandleInboundEvent(ctx context.Context, e telephony.RingEvent) telephony.Instruction {
	log := logger.From(ctx)

	// Repeated webhook delivery for a call we already track: acknowledge
	// with no state change.
	if existing, ok := s.store.GetByCarrierID(e.CarrierCallID); ok {
		if existing.Ended() {
			return s.fallback()
		}
		return s.conferenceInstruction(existing.ID)
	}

	contact, found, err := s.resolver.Resolve(ctx, e.From)
	if err != nil {
		// Non-fatal: proceed as an unknown caller.
		log.Warn("caller lookup failed", "from", e.From, "err", err)
		found = false
	}

	priority := session.PriorityNormal
	if s.resolver.IsCallback(ctx, e.From) {
		priority = session.PriorityHigh
	}

	req := session.CreateRequest{
		CarrierCallID:     e.CarrierCallID,
		Direction:         session.DirectionInbound,
		CounterpartNumber: e.From,
		Priority:          priority,
	}
	if found {
		req.ContactID = contact.ID
		req.CampaignID = contact.CampaignID
	}

	sess, err := s.store.Create(ctx, req)
	if err != nil {
		log.Error("session create failed, falling back", "carrier_call_id", e.CarrierCallID, "err", err)
		return s.fallback()
	}
	if _, err := s.store.AddLeg(ctx, sess.ID, session.LegRoleCustomer, e.CarrierCallID); err != nil {
		log.Warn("customer leg attach failed", "session_id", sess.ID, "err", err)
	}

	s.bus.Enqueue(notify.Event{
		Type:          notify.EventSessionRinging,
		SessionID:     sess.ID,
		CarrierCallID: sess.CarrierCallID,
		From:          sess.CounterpartNumber,
		Priority:      string(sess.Priority),
		ContactID:     sess.ContactID,
	})

	return s.conferenceInstruction(sess.ID)
}

// HandleStatusEvent applies the matching transition. The returned error is
// informational for logging; the webhook handler always acks the carrier.
func (s *Service) HandleStatusEvent(ctx context.Context, e telephony.StatusEvent) error {
	sess, ok := s.store.GetByCarrierID(e.CarrierCallID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, e.CarrierCallID)
	}

	switch e.Status {
	case "ringing", "initiated":
		// Already tracked from the ring webhook.
		return nil
	case "queued":
		_, err := s.store.Transition(ctx, sess.ID, session.TransitionRequest{Next: session.StatusQueued, Reason: "carrier status"})
		return err
	case "in-progress", "answered":
		switch sess.Status {
		case session.StatusAnswered, session.StatusBridged, session.StatusTransferred:
			// Already answered through another path (agent bridge or a
			// duplicate delivery); nothing to apply.
			return nil
		}
		out, err := s.store.Transition(ctx, sess.ID, session.TransitionRequest{Next: session.StatusAnswered, Reason: "carrier reports answer"})
		if err != nil {
			return err
		}
		s.bus.Enqueue(notify.Event{
			Type:          notify.EventSessionAnswered,
			SessionID:     out.ID,
			CarrierCallID: out.CarrierCallID,
			TargetAgentID: out.AssignedAgentID,
		})
		return nil
	case "completed", "busy", "failed", "no-answer", "canceled":
		_, _, err := s.ender.EndSession(ctx, sess.ID, "carrier status "+e.Status, e.DurationSeconds)
		return err
	default:
		return fmt.Errorf("gateway: unrecognized carrier status %q", e.Status)
	}
}

// HandleRecordingEvent attaches the recording reference to its session.
func (s *Service) HandleRecordingEvent(ctx context.Context, e telephony.RecordingEvent) error {
	sess, ok := s.store.GetByCarrierID(e.CarrierCallID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCall, e.CarrierCallID)
	}
	return s.store.SetRecordingURL(ctx, sess.ID, e.RecordingURL)
}

func (s *Service) conferenceInstruction(sessionID string) telephony.Instruction {
	return telephony.Instruction{
		Kind:           telephony.InstructionConference,
		Greeting:       s.greeting,
		ConferenceRoom: session.ConferenceRoom(sessionID),
		HoldMusicURL:   s.holdMusicURL,
	}
}

func (s *Service) fallback() telephony.Instruction {
	return telephony.Instruction{Kind: telephony.InstructionHangup, Message: s.busyMessage}
}
