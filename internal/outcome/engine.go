package outcome

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"dialer-platform/pkg/logger"
)

var (
	ErrOutcomeExists      = errors.New("outcome: outcome already materialized for session")
	ErrUnknownDisposition = errors.New("outcome: unknown disposition")
)

// Catalog serves disposition definitions and mapping rules. Both are
// campaign-scoped configuration data owned outside this service.
type Catalog interface {
	DispositionByID(ctx context.Context, id string) (Disposition, bool, error)
	RuleFor(ctx context.Context, campaignID, dispositionID string) (MappingRule, bool, error)
}

// Repository persists materialized outcomes. SaveOutcome must reject a
// second outcome for the same session.
type Repository interface {
	SaveOutcome(ctx context.Context, o CallOutcome) error
	GetBySession(ctx context.Context, sessionID string) (CallOutcome, bool, error)
	List(ctx context.Context, f Filter) ([]CallOutcome, error)
	MarkVerified(ctx context.Context, id string) error
}

// Filter narrows outcome queries. Zero values mean "any".
type Filter struct {
	CampaignID string
	AgentID    string
	Impact     Impact
	Family     Family
	Since      time.Time
}

// Engine translates a recorded disposition into a value-scored CallOutcome.
type Engine struct {
	catalog Catalog
	repo    Repository
	clock   func() time.Time
}

func NewEngine(catalog Catalog, repo Repository) *Engine {
	return &Engine{catalog: catalog, repo: repo, clock: time.Now}
}

// WithClock overrides the timestamp source. For tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// ValidateDisposition confirms the disposition id exists in the catalog.
// Callers that write state before invoking MapOutcome check here first so a
// typo'd submission is rejected with nothing persisted.
func (e *Engine) ValidateDisposition(ctx context.Context, id string) error {
	_, ok, err := e.catalog.DispositionByID(ctx, id)
	if err != nil {
		return fmt.Errorf("outcome: disposition lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDisposition, id)
	}
	return nil
}

// MapRequest carries everything the valuation needs about the ended call.
type MapRequest struct {
	SessionID       string
	CampaignID      string
	AgentID         string
	DispositionID   string
	DurationSeconds int
	SaleAmount      float64
	LeadScore       int
	Notes           string
}

// MapOutcome resolves the active rule for the disposition in the session's
// campaign scope, gates it on its conditions, and materializes exactly one
// CallOutcome. Unmapped dispositions and failed conditions fall back to the
// default neutral rule; the disposition itself is always kept as recorded.
func (e *Engine) MapOutcome(ctx context.Context, req MapRequest) (CallOutcome, error) {
	disp, ok, err := e.catalog.DispositionByID(ctx, req.DispositionID)
	if err != nil {
		return CallOutcome{}, fmt.Errorf("outcome: disposition lookup: %w", err)
	}
	if !ok {
		return CallOutcome{}, fmt.Errorf("%w: %s", ErrUnknownDisposition, req.DispositionID)
	}

	rule, matched, err := e.catalog.RuleFor(ctx, req.CampaignID, req.DispositionID)
	if err != nil {
		return CallOutcome{}, fmt.Errorf("outcome: rule lookup: %w", err)
	}
	if !matched || !rule.Active {
		rule = DefaultNeutralRule()
	} else if reason, ok := conditionsMet(rule.Conditions, req); !ok {
		logger.From(ctx).Info("rule conditions not met, using default neutral valuation",
			"session_id", req.SessionID, "disposition_id", req.DispositionID, "reason", reason)
		rule = DefaultNeutralRule()
	}

	out := CallOutcome{
		ID:            uuid.NewString(),
		SessionID:     req.SessionID,
		DispositionID: req.DispositionID,
		CampaignID:    req.CampaignID,
		AgentID:       req.AgentID,
		Category:      rule.Category,
		Family:        FamilyOf(rule.Category),
		Impact:        rule.Impact,
		QualityScore:  qualityScore(disp, rule, req),
		RevenueValue:  rule.BaseValue * float64(rule.ConversionProbability) / 100,
		SaleAmount:    req.SaleAmount,
		Notes:         req.Notes,
		CreatedAt:     e.clock(),
	}

	if err := e.repo.SaveOutcome(ctx, out); err != nil {
		return CallOutcome{}, err
	}
	return out, nil
}

// Verify marks an outcome reviewed. A verified outcome is frozen; repeated
// verification is a no-op.
func (e *Engine) Verify(ctx context.Context, id string) error {
	return e.repo.MarkVerified(ctx, id)
}

func conditionsMet(c RuleConditions, req MapRequest) (string, bool) {
	if c.MinCallDurationSeconds > 0 && req.DurationSeconds < c.MinCallDurationSeconds {
		return "duration below minimum", false
	}
	if c.RequiresSaleAmount && req.SaleAmount <= 0 {
		return "sale amount missing", false
	}
	if c.MinLeadScore > 0 && req.LeadScore < c.MinLeadScore {
		return "lead score below minimum", false
	}
	return "", true
}

// durationCeilingSeconds caps the duration contribution; calls at or beyond
// it score the full duration component.
const durationCeilingSeconds = 300

// qualityScore is a 0-100 weighted composite: disposition-category base 40%,
// call-duration adequacy 30%, notes consistency 30%.
func qualityScore(disp Disposition, rule MappingRule, req MapRequest) int {
	base := categoryBase(disp.Category)
	if FamilyOf(rule.Category) == FamilyTechnical {
		base = 10
	}

	dur := float64(req.DurationSeconds)
	if dur > durationCeilingSeconds {
		dur = durationCeilingSeconds
	}
	adequacy := dur / durationCeilingSeconds * 100

	consistency := 100.0
	if disp.RequiresNotes && req.Notes == "" {
		consistency = 0
	}

	score := 0.4*base + 0.3*adequacy + 0.3*consistency
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

func categoryBase(c DispositionCategory) float64 {
	switch c {
	case DispositionPositive:
		return 100
	case DispositionNegative:
		return 20
	case DispositionTechnical:
		return 10
	default:
		return 60
	}
}
