package analytics

import (
	"context"
	"errors"
	"math"
	"time"

	"dialer-platform/internal/outcome"
)

var ErrInvalidRequest = errors.New("analytics: invalid request")

// OutcomeSource reads materialized outcomes. Outcomes are immutable once
// verified, so rollups computed here are reproducible.
type OutcomeSource interface {
	List(ctx context.Context, f outcome.Filter) ([]outcome.CallOutcome, error)
}

type Service struct {
	outcomes OutcomeSource
}

func NewService(outcomes OutcomeSource) *Service { return &Service{outcomes: outcomes} }

// CampaignKPIs rolls a campaign's outcomes into the numbers supervisors
// watch. PipelineValue is the predictive signal: the expected value parked in
// follow-up outcomes that have not converted yet.
type CampaignKPIs struct {
	CampaignID          string                 `json:"campaign_id"`
	TotalOutcomes       int                    `json:"total_outcomes"`
	ByFamily            map[outcome.Family]int `json:"by_family"`
	ByImpact            map[outcome.Impact]int `json:"by_impact"`
	RealizedRevenue     float64                `json:"realized_revenue"`
	ExpectedRevenue     float64                `json:"expected_revenue"`
	PipelineValue       float64                `json:"pipeline_value"`
	AverageQualityScore float64                `json:"average_quality_score"`
	ConversionRate      float64                `json:"conversion_rate"`
}

type CampaignSummaryRequest struct {
	CampaignID string
	Since      time.Time
}

func (s *Service) CampaignSummary(ctx context.Context, req CampaignSummaryRequest) (CampaignKPIs, error) {
	if req.CampaignID == "" {
		return CampaignKPIs{}, ErrInvalidRequest
	}

	rows, err := s.outcomes.List(ctx, outcome.Filter{CampaignID: req.CampaignID, Since: req.Since})
	if err != nil {
		return CampaignKPIs{}, err
	}

	out := CampaignKPIs{
		CampaignID: req.CampaignID,
		ByFamily:   make(map[outcome.Family]int),
		ByImpact:   make(map[outcome.Impact]int),
	}
	qualitySum := 0
	for _, o := range rows {
		out.TotalOutcomes++
		out.ByFamily[o.Family]++
		out.ByImpact[o.Impact]++
		out.ExpectedRevenue += o.RevenueValue
		qualitySum += o.QualityScore
		switch o.Family {
		case outcome.FamilySuccess:
			out.RealizedRevenue += o.SaleAmount
		case outcome.FamilyFollowUp:
			out.PipelineValue += o.RevenueValue
		}
	}
	if out.TotalOutcomes > 0 {
		out.AverageQualityScore = round1(float64(qualitySum) / float64(out.TotalOutcomes))
		out.ConversionRate = round1(float64(out.ByFamily[outcome.FamilySuccess]) / float64(out.TotalOutcomes) * 100)
	}
	return out, nil
}

// AgentKPIs rolls one agent's disposed calls into a performance view.
type AgentKPIs struct {
	AgentID             string                 `json:"agent_id"`
	TotalOutcomes       int                    `json:"total_outcomes"`
	ByFamily            map[outcome.Family]int `json:"by_family"`
	RealizedRevenue     float64                `json:"realized_revenue"`
	ExpectedRevenue     float64                `json:"expected_revenue"`
	AverageQualityScore float64                `json:"average_quality_score"`
	ConversionRate      float64                `json:"conversion_rate"`
}

type AgentSummaryRequest struct {
	AgentID string
	Since   time.Time
}

func (s *Service) AgentSummary(ctx context.Context, req AgentSummaryRequest) (AgentKPIs, error) {
	if req.AgentID == "" {
		return AgentKPIs{}, ErrInvalidRequest
	}

	rows, err := s.outcomes.List(ctx, outcome.Filter{AgentID: req.AgentID, Since: req.Since})
	if err != nil {
		return AgentKPIs{}, err
	}

	out := AgentKPIs{
		AgentID:  req.AgentID,
		ByFamily: make(map[outcome.Family]int),
	}
	qualitySum := 0
	for _, o := range rows {
		out.TotalOutcomes++
		out.ByFamily[o.Family]++
		out.ExpectedRevenue += o.RevenueValue
		qualitySum += o.QualityScore
		if o.Family == outcome.FamilySuccess {
			out.RealizedRevenue += o.SaleAmount
		}
	}
	if out.TotalOutcomes > 0 {
		out.AverageQualityScore = round1(float64(qualitySum) / float64(out.TotalOutcomes))
		out.ConversionRate = round1(float64(out.ByFamily[outcome.FamilySuccess]) / float64(out.TotalOutcomes) * 100)
	}
	return out, nil
}

// QueryOutcomes exposes filtered outcome rows for downstream analysis.
func (s *Service) QueryOutcomes(ctx context.Context, f outcome.Filter) ([]outcome.CallOutcome, error) {
	if f.Impact != "" {
		switch f.Impact {
		case outcome.ImpactHighlyPositive, outcome.ImpactPositive, outcome.ImpactNeutral,
			outcome.ImpactNegative, outcome.ImpactHighlyNegative:
		default:
			return nil, ErrInvalidRequest
		}
	}
	return s.outcomes.List(ctx, f)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
