package outcome

import (
	"context"
	"errors"
	"testing"
	"time"
)

func saleCatalog() *MemoryCatalog {
	cat := NewMemoryCatalog()
	cat.AddDisposition(Disposition{ID: "sale_closed", Name: "Sale Made", Category: DispositionPositive})
	cat.AddDisposition(Disposition{ID: "no_answer", Name: "No Answer", Category: DispositionNeutral})
	cat.AddDisposition(Disposition{ID: "complaint", Name: "Complaint", Category: DispositionNegative, RequiresNotes: true})
	cat.AddRule(MappingRule{
		CampaignID:            "camp-1",
		DispositionID:         "sale_closed",
		Category:              CategorySaleClosed,
		Impact:                ImpactHighlyPositive,
		BaseValue:             500,
		ConversionProbability: 80,
		Conditions:            RuleConditions{MinCallDurationSeconds: 120, RequiresSaleAmount: true},
	})
	return cat
}

func TestMapOutcomeQualifyingSale(t *testing.T) {
	eng := NewEngine(saleCatalog(), NewMemoryRepo())

	out, err := eng.MapOutcome(context.Background(), MapRequest{
		SessionID:       "s1",
		CampaignID:      "camp-1",
		AgentID:         "A1",
		DispositionID:   "sale_closed",
		DurationSeconds: 185,
		SaleAmount:      500,
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if out.Category != CategorySaleClosed || out.Family != FamilySuccess {
		t.Fatalf("expected SALE_CLOSED/success, got %s/%s", out.Category, out.Family)
	}
	if out.RevenueValue != 400 { // 500 * 80/100
		t.Fatalf("expected expected-value revenue 400, got %v", out.RevenueValue)
	}
	// 0.4*100 (positive) + 0.3*(185/300*100) + 0.3*100 = 88.5 -> 89
	if out.QualityScore != 89 {
		t.Fatalf("expected quality 89, got %d", out.QualityScore)
	}
	if out.Verified {
		t.Fatalf("outcomes must start unverified")
	}
}

func TestMapOutcomeShortCallDowngradedToNeutral(t *testing.T) {
	eng := NewEngine(saleCatalog(), NewMemoryRepo())

	out, err := eng.MapOutcome(context.Background(), MapRequest{
		SessionID:       "s1",
		CampaignID:      "camp-1",
		DispositionID:   "sale_closed",
		DurationSeconds: 45,
		SaleAmount:      500,
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if out.Category != CategoryContactMade || out.Impact != ImpactNeutral {
		t.Fatalf("short call must fall back to default neutral, got %s/%s", out.Category, out.Impact)
	}
	if out.RevenueValue != 0 {
		t.Fatalf("downgraded outcome must not inherit the rule's value, got %v", out.RevenueValue)
	}
	// The disposition itself stays as recorded.
	if out.DispositionID != "sale_closed" {
		t.Fatalf("disposition must be kept as given, got %s", out.DispositionID)
	}
}

func TestMapOutcomeMissingSaleAmountDowngraded(t *testing.T) {
	eng := NewEngine(saleCatalog(), NewMemoryRepo())

	out, err := eng.MapOutcome(context.Background(), MapRequest{
		SessionID:       "s1",
		CampaignID:      "camp-1",
		DispositionID:   "sale_closed",
		DurationSeconds: 185,
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if out.Category != CategoryContactMade {
		t.Fatalf("missing sale amount must downgrade, got %s", out.Category)
	}
}

func TestMapOutcomeUnmappedDispositionDefaultsNeutral(t *testing.T) {
	eng := NewEngine(saleCatalog(), NewMemoryRepo())

	out, err := eng.MapOutcome(context.Background(), MapRequest{
		SessionID:       "s1",
		CampaignID:      "camp-1",
		DispositionID:   "no_answer",
		DurationSeconds: 0,
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if out.Category != CategoryContactMade || out.Family != FamilyNeutral {
		t.Fatalf("unmapped disposition must default to neutral CONTACT_MADE, got %s", out.Category)
	}
}

func TestMapOutcomeUnknownDispositionRejected(t *testing.T) {
	eng := NewEngine(saleCatalog(), NewMemoryRepo())

	_, err := eng.MapOutcome(context.Background(), MapRequest{SessionID: "s1", DispositionID: "nope"})
	if !errors.Is(err, ErrUnknownDisposition) {
		t.Fatalf("expected ErrUnknownDisposition, got %v", err)
	}
}

func TestMapOutcomeExactlyOncePerSession(t *testing.T) {
	eng := NewEngine(saleCatalog(), NewMemoryRepo())
	req := MapRequest{SessionID: "s1", CampaignID: "camp-1", DispositionID: "no_answer"}

	if _, err := eng.MapOutcome(context.Background(), req); err != nil {
		t.Fatalf("first map: %v", err)
	}
	if _, err := eng.MapOutcome(context.Background(), req); !errors.Is(err, ErrOutcomeExists) {
		t.Fatalf("expected ErrOutcomeExists, got %v", err)
	}
}

func TestQualityScoreMissingRequiredNotes(t *testing.T) {
	eng := NewEngine(saleCatalog(), NewMemoryRepo())

	withNotes, err := eng.MapOutcome(context.Background(), MapRequest{
		SessionID: "s1", DispositionID: "complaint", DurationSeconds: 300, Notes: "escalated to supervisor",
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	without, err := eng.MapOutcome(context.Background(), MapRequest{
		SessionID: "s2", DispositionID: "complaint", DurationSeconds: 300,
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if without.QualityScore >= withNotes.QualityScore {
		t.Fatalf("missing required notes must cost quality: %d vs %d", without.QualityScore, withNotes.QualityScore)
	}
	// 0.4*20 + 0.3*100 + 0.3*0 = 38
	if without.QualityScore != 38 {
		t.Fatalf("expected quality 38, got %d", without.QualityScore)
	}
}

func TestQualityScoreDurationCapped(t *testing.T) {
	cat := saleCatalog()
	eng := NewEngine(cat, NewMemoryRepo())

	long, _ := eng.MapOutcome(context.Background(), MapRequest{
		SessionID: "s1", CampaignID: "camp-1", DispositionID: "sale_closed", DurationSeconds: 3600, SaleAmount: 100,
	})
	ceiling, _ := eng.MapOutcome(context.Background(), MapRequest{
		SessionID: "s2", CampaignID: "camp-1", DispositionID: "sale_closed", DurationSeconds: 300, SaleAmount: 100,
	})
	if long.QualityScore != ceiling.QualityScore {
		t.Fatalf("duration contribution must cap: %d vs %d", long.QualityScore, ceiling.QualityScore)
	}
}

func TestVerifyFreezesOutcome(t *testing.T) {
	repo := NewMemoryRepo()
	eng := NewEngine(saleCatalog(), repo).WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	})

	out, err := eng.MapOutcome(context.Background(), MapRequest{SessionID: "s1", DispositionID: "no_answer"})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if err := eng.Verify(context.Background(), out.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, ok, _ := repo.GetBySession(context.Background(), "s1")
	if !ok || !got.Verified {
		t.Fatalf("expected verified outcome")
	}
}

func TestFamilyOfCoversAllCategories(t *testing.T) {
	counts := map[Family]int{}
	for c := range families {
		counts[FamilyOf(c)]++
	}
	for _, f := range []Family{FamilySuccess, FamilyFollowUp, FamilyNeutral, FamilyNegative, FamilyTechnical} {
		if counts[f] != 5 {
			t.Fatalf("family %s has %d categories, want 5", f, counts[f])
		}
	}
}
