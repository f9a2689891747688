package disposition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/bridge"
	"dialer-platform/internal/lookup"
	"dialer-platform/internal/notify"
	"dialer-platform/internal/outcome"
	"dialer-platform/internal/session"
	"dialer-platform/internal/telephony"
)

type fixture struct {
	rec     *Recorder
	store   *session.Store
	slots   *bridge.MemorySlots
	coord   *bridge.Coordinator
	repo    *MemoryRepo
	outRepo *outcome.MemoryRepo
	catalog *outcome.MemoryCatalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := session.NewStore(session.NewMemoryRepo())
	slots := bridge.NewMemorySlots()
	bus := notify.NewBus(notify.NewMockPublisher(), notify.BusOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	bus.Start(ctx)
	t.Cleanup(bus.Close)

	resolver := lookup.NewResolver(nil, lookup.NewMemoryDialIndex(), 4*time.Hour)
	coord := bridge.NewCoordinator(store, telephony.NewMemoryCarrier(), slots, bus, resolver, bridge.Options{})

	catalog := outcome.NewMemoryCatalog()
	catalog.AddDisposition(outcome.Disposition{ID: "sale_closed", Name: "Sale Made", Category: outcome.DispositionPositive})
	catalog.AddDisposition(outcome.Disposition{ID: "no_answer", Name: "No Answer", Category: outcome.DispositionNeutral})
	catalog.AddRule(outcome.MappingRule{
		CampaignID:            "camp-1",
		DispositionID:         "sale_closed",
		Category:              outcome.CategorySaleClosed,
		Impact:                outcome.ImpactHighlyPositive,
		BaseValue:             500,
		ConversionProbability: 80,
		Conditions:            outcome.RuleConditions{MinCallDurationSeconds: 120, RequiresSaleAmount: true},
	})
	outRepo := outcome.NewMemoryRepo()
	engine := outcome.NewEngine(catalog, outRepo)

	repo := NewMemoryRepo()
	return &fixture{
		rec:     NewRecorder(store, coord, engine, repo),
		store:   store,
		slots:   slots,
		coord:   coord,
		repo:    repo,
		outRepo: outRepo,
		catalog: catalog,
	}
}

func (f *fixture) bridgedSession(t *testing.T) session.CallSession {
	t.Helper()
	ctx := context.Background()
	sess, err := f.store.Create(ctx, session.CreateRequest{
		CarrierCallID:     "CA1",
		Direction:         session.DirectionInbound,
		CounterpartNumber: "+14155551234",
		CampaignID:        "camp-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.coord.BridgeAgent(ctx, sess.ID, "A1"); err != nil {
		t.Fatalf("bridge: %v", err)
	}
	return sess
}

func TestRecordDispositionForceEndsLiveSession(t *testing.T) {
	f := newFixture(t)
	sess := f.bridgedSession(t)
	ctx := context.Background()

	out, err := f.rec.RecordDisposition(ctx, RecordRequest{
		SessionID:       sess.ID,
		DispositionID:   "sale_closed",
		AgentID:         "A1",
		DurationSeconds: 185,
		SaleAmount:      500,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	got, _ := f.store.Get(sess.ID)
	if got.Status != session.StatusEnded {
		t.Fatalf("submission must drive the terminal transition, got %s", got.Status)
	}
	if out.Category != outcome.CategorySaleClosed || out.RevenueValue != 400 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.AgentID != "A1" {
		t.Fatalf("outcome must carry the agent, got %q", out.AgentID)
	}

	// Force-end goes through the coordinator, so the agent slot is freed.
	if ok, _ := f.slots.Acquire(ctx, "A1"); !ok {
		t.Fatalf("agent slot must be released on disposition end")
	}
}

func TestRecordDispositionOnAlreadyEndedSession(t *testing.T) {
	f := newFixture(t)
	sess := f.bridgedSession(t)
	ctx := context.Background()

	if _, _, err := f.coord.EndSession(ctx, sess.ID, "carrier hangup", 185); err != nil {
		t.Fatalf("end: %v", err)
	}

	out, err := f.rec.RecordDisposition(ctx, RecordRequest{
		SessionID:     sess.ID,
		DispositionID: "sale_closed",
		SaleAmount:    500,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	// The session's own recorded duration drives the valuation.
	if out.Category != outcome.CategorySaleClosed {
		t.Fatalf("expected matched rule on ended session, got %s", out.Category)
	}
}

func TestSecondDispositionRejectedAsConflict(t *testing.T) {
	f := newFixture(t)
	sess := f.bridgedSession(t)
	ctx := context.Background()

	if _, err := f.rec.RecordDisposition(ctx, RecordRequest{SessionID: sess.ID, DispositionID: "no_answer"}); err != nil {
		t.Fatalf("first record: %v", err)
	}
	_, err := f.rec.RecordDisposition(ctx, RecordRequest{SessionID: sess.ID, DispositionID: "sale_closed", SaleAmount: 500})
	if !errors.Is(err, ErrDispositionExists) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestConcurrentDispositionsRecordExactlyOne(t *testing.T) {
	f := newFixture(t)
	sess := f.bridgedSession(t)

	var wg sync.WaitGroup
	successes := make(chan outcome.CallOutcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.rec.RecordDisposition(context.Background(), RecordRequest{
				SessionID:     sess.ID,
				DispositionID: "no_answer",
			})
			if err == nil {
				successes <- out
			}
		}()
	}
	wg.Wait()
	close(successes)

	n := 0
	for range successes {
		n++
	}
	if n != 1 {
		t.Fatalf("exactly one disposition must win, got %d", n)
	}
}

func TestMistypedDispositionCanBeResubmitted(t *testing.T) {
	f := newFixture(t)
	sess := f.bridgedSession(t)
	ctx := context.Background()

	_, err := f.rec.RecordDisposition(ctx, RecordRequest{
		SessionID:       sess.ID,
		DispositionID:   "sale_close",
		DurationSeconds: 185,
		SaleAmount:      500,
	})
	if !errors.Is(err, outcome.ErrUnknownDisposition) {
		t.Fatalf("expected unknown-disposition rejection, got %v", err)
	}

	// The rejection must leave nothing behind: no record, and the session
	// is still live.
	if _, exists, _ := f.repo.GetBySession(ctx, sess.ID); exists {
		t.Fatalf("rejected submission must not persist a record")
	}
	got, _ := f.store.Get(sess.ID)
	if got.Status != session.StatusBridged {
		t.Fatalf("rejected submission must not end the session, got %s", got.Status)
	}

	// The corrected resubmission succeeds and materializes the one outcome.
	out, err := f.rec.RecordDisposition(ctx, RecordRequest{
		SessionID:       sess.ID,
		DispositionID:   "sale_closed",
		DurationSeconds: 185,
		SaleAmount:      500,
	})
	if err != nil {
		t.Fatalf("resubmission: %v", err)
	}
	if out.Category != outcome.CategorySaleClosed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if _, ok, _ := f.outRepo.GetBySession(ctx, sess.ID); !ok {
		t.Fatalf("outcome must exist after resubmission")
	}
}

func TestRecordDispositionUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.RecordDisposition(context.Background(), RecordRequest{SessionID: "nope", DispositionID: "no_answer"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRecordDispositionShortCallDowngraded(t *testing.T) {
	f := newFixture(t)
	sess := f.bridgedSession(t)

	out, err := f.rec.RecordDisposition(context.Background(), RecordRequest{
		SessionID:       sess.ID,
		DispositionID:   "sale_closed",
		DurationSeconds: 45,
		SaleAmount:      500,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if out.Category != outcome.CategoryContactMade {
		t.Fatalf("short call must be valued by the default neutral rule, got %s", out.Category)
	}
}
