package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialer-platform/internal/lookup"
	"dialer-platform/internal/notify"
	"dialer-platform/internal/session"
	"dialer-platform/internal/telephony"
)

type fixture struct {
	coord    *Coordinator
	store    *session.Store
	carrier  *telephony.MemoryCarrier
	slots    *MemorySlots
	contacts *lookup.MemoryContacts
	dials    *lookup.MemoryDialIndex
	mock     *notify.MockPublisher

	// scheduled captures follow-up actions instead of running timers.
	scheduled []scheduledCall
}

type scheduledCall struct {
	delay time.Duration
	fn    func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    session.NewStore(session.NewMemoryRepo()),
		carrier:  telephony.NewMemoryCarrier(),
		slots:    NewMemorySlots(),
		contacts: lookup.NewMemoryContacts(),
		dials:    lookup.NewMemoryDialIndex(),
		mock:     notify.NewMockPublisher(),
	}
	bus := notify.NewBus(f.mock, notify.BusOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	bus.Start(ctx)
	t.Cleanup(bus.Close)

	resolver := lookup.NewResolver(f.contacts, f.dials, 4*time.Hour)
	f.coord = NewCoordinator(f.store, f.carrier, f.slots, bus, resolver, Options{
		JoinDelay:        2 * time.Second,
		OutboundCallerID: "+18005550100",
	}).WithScheduler(func(d time.Duration, fn func()) {
		f.scheduled = append(f.scheduled, scheduledCall{delay: d, fn: fn})
	})
	return f
}

func (f *fixture) inboundSession(t *testing.T) session.CallSession {
	t.Helper()
	sess, err := f.store.Create(context.Background(), session.CreateRequest{
		CarrierCallID:     "CA-in",
		Direction:         session.DirectionInbound,
		CounterpartNumber: "+14155551234",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return sess
}

func TestBridgeAgentHappyPath(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)

	res, err := f.coord.BridgeAgent(context.Background(), sess.ID, "A1")
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if res.Session.Status != session.StatusBridged {
		t.Fatalf("expected bridged, got %s", res.Session.Status)
	}
	if res.Session.AssignedAgentID != "A1" {
		t.Fatalf("expected agent assignment")
	}
	if res.ConferenceRoom != session.ConferenceRoom(sess.ID) {
		t.Fatalf("room must be keyed by session id")
	}
	if len(f.carrier.Joins) != 1 || f.carrier.Joins[0].Room != res.ConferenceRoom {
		t.Fatalf("expected one carrier join into the session room")
	}
	if len(f.store.Legs(sess.ID)) != 1 {
		t.Fatalf("expected agent leg recorded")
	}
}

func TestBridgeAgentOccupiedRejected(t *testing.T) {
	f := newFixture(t)
	first := f.inboundSession(t)
	ctx := context.Background()

	if _, err := f.coord.BridgeAgent(ctx, first.ID, "A1"); err != nil {
		t.Fatalf("first bridge: %v", err)
	}

	second, _ := f.store.Create(ctx, session.CreateRequest{
		CarrierCallID:     "CA-in-2",
		Direction:         session.DirectionInbound,
		CounterpartNumber: "+14155559999",
	})
	if _, err := f.coord.BridgeAgent(ctx, second.ID, "A1"); !errors.Is(err, ErrAgentBusy) {
		t.Fatalf("expected ErrAgentBusy, got %v", err)
	}
}

func TestBridgeAgentFreedAfterEnd(t *testing.T) {
	f := newFixture(t)
	first := f.inboundSession(t)
	ctx := context.Background()

	f.coord.BridgeAgent(ctx, first.ID, "A1")
	if _, _, err := f.coord.EndSession(ctx, first.ID, "hangup", 30); err != nil {
		t.Fatalf("end: %v", err)
	}

	second, _ := f.store.Create(ctx, session.CreateRequest{
		CarrierCallID:     "CA-in-2",
		Direction:         session.DirectionInbound,
		CounterpartNumber: "+14155559999",
	})
	if _, err := f.coord.BridgeAgent(ctx, second.ID, "A1"); err != nil {
		t.Fatalf("agent must be free after end: %v", err)
	}
}

func TestBridgeJoinFailureRequeuesAndPreservesCustomer(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)
	f.carrier.FailJoins = true

	_, err := f.coord.BridgeAgent(context.Background(), sess.ID, "A1")
	if !errors.Is(err, ErrRoutingFailure) {
		t.Fatalf("expected retryable routing failure, got %v", err)
	}

	got, _ := f.store.Get(sess.ID)
	if got.Status != session.StatusQueued {
		t.Fatalf("session must be parked in queued, got %s", got.Status)
	}

	// Slot must be free for a retry.
	f.carrier.FailJoins = false
	if _, err := f.coord.BridgeAgent(context.Background(), sess.ID, "A1"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestBridgeEndedSessionRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)
	ctx := context.Background()

	f.coord.EndSession(ctx, sess.ID, "hangup", 0)
	if _, err := f.coord.BridgeAgent(ctx, sess.ID, "A1"); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("expected ErrNotJoinable, got %v", err)
	}
}

func TestTransferToAgentKeepsRoom(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)
	ctx := context.Background()

	f.coord.BridgeAgent(ctx, sess.ID, "A1")
	out, err := f.coord.TransferSession(ctx, sess.ID, TransferTarget{AgentID: "A2"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if out.Status != session.StatusTransferred {
		t.Fatalf("expected transferred, got %s", out.Status)
	}
	if out.ConferenceRoomID != session.ConferenceRoom(sess.ID) {
		t.Fatalf("transfer must preserve the room")
	}
	if out.AssignedAgentID != "A2" {
		t.Fatalf("expected re-parented agent")
	}

	// A1 must be free again, A2 occupied.
	if ok, _ := f.slots.Acquire(ctx, "A1"); !ok {
		t.Fatalf("previous agent slot must be released")
	}
	if ok, _ := f.slots.Acquire(ctx, "A2"); ok {
		t.Fatalf("new agent slot must be held")
	}
}

func TestTransferToQueue(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)
	ctx := context.Background()

	f.coord.BridgeAgent(ctx, sess.ID, "A1")
	out, err := f.coord.TransferSession(ctx, sess.ID, TransferTarget{QueueID: "support"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if out.AssignedQueueID != "support" || out.AssignedAgentID != "" {
		t.Fatalf("queue transfer must clear the agent: %+v", out)
	}
	if ok, _ := f.slots.Acquire(ctx, "A1"); !ok {
		t.Fatalf("agent slot must be released on queue transfer")
	}
}

func TestTransferRequiresExactlyOneTarget(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)
	ctx := context.Background()
	f.coord.BridgeAgent(ctx, sess.ID, "A1")

	if _, err := f.coord.TransferSession(ctx, sess.ID, TransferTarget{}); err == nil {
		t.Fatalf("expected error for empty target")
	}
	if _, err := f.coord.TransferSession(ctx, sess.ID, TransferTarget{AgentID: "A2", QueueID: "q"}); err == nil {
		t.Fatalf("expected error for double target")
	}
}

func TestStartOutboundDialsCustomerFirstThenSchedulesAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.coord.StartOutbound(ctx, StartOutboundRequest{To: "+14155551234", AgentID: "A1", CampaignID: "camp-1"})
	if err != nil {
		t.Fatalf("start outbound: %v", err)
	}
	if sess.Direction != session.DirectionOutbound || sess.Status != session.StatusRinging {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if len(f.carrier.Dials) != 1 {
		t.Fatalf("customer leg must be dialed immediately")
	}
	if len(f.carrier.Joins) != 0 {
		t.Fatalf("agent must not join before the delay elapses")
	}
	if len(f.scheduled) != 1 || f.scheduled[0].delay != 2*time.Second {
		t.Fatalf("expected one scheduled join after the configured delay")
	}

	// Run the follow-up: the agent joins the same room.
	f.scheduled[0].fn()
	if len(f.carrier.Joins) != 1 {
		t.Fatalf("expected agent join after delay")
	}
	got, _ := f.store.Get(sess.ID)
	if got.Status != session.StatusBridged || got.AssignedAgentID != "A1" {
		t.Fatalf("expected bridged with agent: %+v", got)
	}
}

func TestStartOutboundMarksRecentDial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coord.StartOutbound(ctx, StartOutboundRequest{To: "+14155551234", AgentID: "A1"}); err != nil {
		t.Fatalf("start outbound: %v", err)
	}
	hit, err := f.dials.WasDialed(ctx, lookup.NormalizeDigits("+14155551234"))
	if err != nil || !hit {
		t.Fatalf("outbound dial must be indexed for callback detection")
	}
}

func TestStartOutboundBusyAgentRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)
	ctx := context.Background()
	f.coord.BridgeAgent(ctx, sess.ID, "A1")

	if _, err := f.coord.StartOutbound(ctx, StartOutboundRequest{To: "+14155559999", AgentID: "A1"}); !errors.Is(err, ErrAgentBusy) {
		t.Fatalf("expected ErrAgentBusy, got %v", err)
	}
}

func TestStartOutboundDoNotCallRefused(t *testing.T) {
	f := newFixture(t)
	f.contacts.Add(lookup.Contact{ID: "c1", PhoneNumber: "+14155551234", DoNotCall: true})

	_, err := f.coord.StartOutbound(context.Background(), StartOutboundRequest{To: "+14155551234", AgentID: "A1"})
	if !errors.Is(err, ErrDoNotCall) {
		t.Fatalf("expected ErrDoNotCall, got %v", err)
	}
	if len(f.carrier.Dials) != 0 {
		t.Fatalf("flagged contact must never be dialed")
	}
}

func TestBridgeSlotReleasedWhenEndWinsRace(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)
	ctx := context.Background()

	// The session ends while the agent leg is joining; the bridged
	// transition must fail and give the slot back.
	f.carrier.JoinHook = func(telephony.JoinRequest) {
		if _, _, err := f.coord.EndSession(ctx, sess.ID, "caller hung up", 5); err != nil {
			t.Fatalf("end during join: %v", err)
		}
	}

	if _, err := f.coord.BridgeAgent(ctx, sess.ID, "A1"); err == nil {
		t.Fatalf("expected bridge to fail after concurrent end")
	}
	got, _ := f.store.Get(sess.ID)
	if got.Status != session.StatusEnded {
		t.Fatalf("session must stay ended, got %s", got.Status)
	}
	if ok, _ := f.slots.Acquire(ctx, "A1"); !ok {
		t.Fatalf("agent slot must be released, not left to expire")
	}
}

func TestStartOutboundDialFailure(t *testing.T) {
	f := newFixture(t)
	f.carrier.FailDials = true

	if _, err := f.coord.StartOutbound(context.Background(), StartOutboundRequest{To: "+14155551234", AgentID: "A1"}); err == nil {
		t.Fatalf("expected dial failure to surface")
	}
	if len(f.scheduled) != 0 {
		t.Fatalf("no join must be scheduled when the customer dial fails")
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.inboundSession(t)
	ctx := context.Background()

	_, changed, err := f.coord.EndSession(ctx, sess.ID, "hangup", 10)
	if err != nil || !changed {
		t.Fatalf("first end: changed=%v err=%v", changed, err)
	}
	_, changed, err = f.coord.EndSession(ctx, sess.ID, "hangup", 10)
	if err != nil || changed {
		t.Fatalf("second end must be a no-op ack: changed=%v err=%v", changed, err)
	}
}
