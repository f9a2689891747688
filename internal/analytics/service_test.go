package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialer-platform/internal/outcome"
)

func seededRepo(t *testing.T) *outcome.MemoryRepo {
	t.Helper()
	repo := outcome.NewMemoryRepo()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := []outcome.CallOutcome{
		{ID: "o1", SessionID: "s1", CampaignID: "camp-1", AgentID: "A1",
			Category: outcome.CategorySaleClosed, Family: outcome.FamilySuccess,
			Impact: outcome.ImpactHighlyPositive, QualityScore: 90, RevenueValue: 400, SaleAmount: 500, CreatedAt: now},
		{ID: "o2", SessionID: "s2", CampaignID: "camp-1", AgentID: "A1",
			Category: outcome.CategoryCallbackScheduled, Family: outcome.FamilyFollowUp,
			Impact: outcome.ImpactPositive, QualityScore: 70, RevenueValue: 150, CreatedAt: now},
		{ID: "o3", SessionID: "s3", CampaignID: "camp-1", AgentID: "A2",
			Category: outcome.CategoryNotInterested, Family: outcome.FamilyNegative,
			Impact: outcome.ImpactNegative, QualityScore: 30, CreatedAt: now},
		{ID: "o4", SessionID: "s4", CampaignID: "camp-2", AgentID: "A1",
			Category: outcome.CategoryContactMade, Family: outcome.FamilyNeutral,
			Impact: outcome.ImpactNeutral, QualityScore: 60, CreatedAt: now},
	}
	for _, o := range rows {
		if err := repo.SaveOutcome(ctx, o); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return repo
}

func TestCampaignSummary(t *testing.T) {
	svc := NewService(seededRepo(t))

	kpis, err := svc.CampaignSummary(context.Background(), CampaignSummaryRequest{CampaignID: "camp-1"})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if kpis.TotalOutcomes != 3 {
		t.Fatalf("expected 3 outcomes, got %d", kpis.TotalOutcomes)
	}
	if kpis.ByFamily[outcome.FamilySuccess] != 1 || kpis.ByFamily[outcome.FamilyFollowUp] != 1 || kpis.ByFamily[outcome.FamilyNegative] != 1 {
		t.Fatalf("unexpected family counts: %+v", kpis.ByFamily)
	}
	if kpis.RealizedRevenue != 500 {
		t.Fatalf("realized revenue must sum success sale amounts, got %v", kpis.RealizedRevenue)
	}
	if kpis.ExpectedRevenue != 550 {
		t.Fatalf("expected revenue must sum all expected values, got %v", kpis.ExpectedRevenue)
	}
	if kpis.PipelineValue != 150 {
		t.Fatalf("pipeline must hold follow-up expected value, got %v", kpis.PipelineValue)
	}
	// (90+70+30)/3 = 63.3, 1/3 = 33.3%
	if kpis.AverageQualityScore != 63.3 {
		t.Fatalf("expected avg quality 63.3, got %v", kpis.AverageQualityScore)
	}
	if kpis.ConversionRate != 33.3 {
		t.Fatalf("expected conversion 33.3, got %v", kpis.ConversionRate)
	}
}

func TestCampaignSummaryEmpty(t *testing.T) {
	svc := NewService(outcome.NewMemoryRepo())

	kpis, err := svc.CampaignSummary(context.Background(), CampaignSummaryRequest{CampaignID: "camp-x"})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if kpis.TotalOutcomes != 0 || kpis.ConversionRate != 0 {
		t.Fatalf("empty campaign must report zeros: %+v", kpis)
	}
}

func TestCampaignSummaryRequiresID(t *testing.T) {
	svc := NewService(outcome.NewMemoryRepo())
	if _, err := svc.CampaignSummary(context.Background(), CampaignSummaryRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestAgentSummaryCrossesCampaigns(t *testing.T) {
	svc := NewService(seededRepo(t))

	kpis, err := svc.AgentSummary(context.Background(), AgentSummaryRequest{AgentID: "A1"})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if kpis.TotalOutcomes != 3 {
		t.Fatalf("agent rollup must span campaigns, got %d", kpis.TotalOutcomes)
	}
	if kpis.RealizedRevenue != 500 || kpis.ExpectedRevenue != 550 {
		t.Fatalf("unexpected revenue: %+v", kpis)
	}
}

func TestQueryOutcomesFilters(t *testing.T) {
	svc := NewService(seededRepo(t))

	rows, err := svc.QueryOutcomes(context.Background(), outcome.Filter{CampaignID: "camp-1", Impact: outcome.ImpactNegative})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "o3" {
		t.Fatalf("expected the single negative outcome, got %+v", rows)
	}
}

func TestQueryOutcomesRejectsBadImpact(t *testing.T) {
	svc := NewService(seededRepo(t))
	if _, err := svc.QueryOutcomes(context.Background(), outcome.Filter{Impact: "amazing"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
