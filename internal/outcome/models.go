package outcome

import "time"

// Category is the fine-grained outcome classification. Categories group into
// five families used for rollups and family-level reporting.
type Category string

const (
	CategorySaleClosed         Category = "SALE_CLOSED"
	CategorySalePartial        Category = "SALE_PARTIAL"
	CategoryUpsell             Category = "UPSELL"
	CategoryRenewal            Category = "RENEWAL"
	CategoryCommitmentObtained Category = "COMMITMENT_OBTAINED"

	CategoryCallbackScheduled Category = "CALLBACK_SCHEDULED"
	CategoryAppointmentSet    Category = "APPOINTMENT_SET"
	CategoryInfoRequested     Category = "INFO_REQUESTED"
	CategoryQuoteSent         Category = "QUOTE_SENT"
	CategoryDecisionPending   Category = "DECISION_PENDING"

	CategoryContactMade Category = "CONTACT_MADE"
	CategoryLeftMessage Category = "LEFT_MESSAGE"
	CategoryNoAnswer    Category = "NO_ANSWER"
	CategoryBusyLine    Category = "BUSY_LINE"
	CategoryWrongTiming Category = "WRONG_TIMING"

	CategoryNotInterested Category = "NOT_INTERESTED"
	CategoryDoNotCall     Category = "DO_NOT_CALL"
	CategoryWrongNumber   Category = "WRONG_NUMBER"
	CategoryHungUp        Category = "HUNG_UP"
	CategoryComplaint     Category = "COMPLAINT"

	CategoryVoicemailDetected Category = "VOICEMAIL_DETECTED"
	CategoryCallDropped       Category = "CALL_DROPPED"
	CategoryBadConnection     Category = "BAD_CONNECTION"
	CategoryCarrierError      Category = "CARRIER_ERROR"
	CategorySystemError       Category = "SYSTEM_ERROR"
)

type Family string

const (
	FamilySuccess   Family = "success"
	FamilyFollowUp  Family = "follow_up"
	FamilyNeutral   Family = "neutral"
	FamilyNegative  Family = "negative"
	FamilyTechnical Family = "technical"
)

var families = map[Category]Family{
	CategorySaleClosed:         FamilySuccess,
	CategorySalePartial:        FamilySuccess,
	CategoryUpsell:             FamilySuccess,
	CategoryRenewal:            FamilySuccess,
	CategoryCommitmentObtained: FamilySuccess,

	CategoryCallbackScheduled: FamilyFollowUp,
	CategoryAppointmentSet:    FamilyFollowUp,
	CategoryInfoRequested:     FamilyFollowUp,
	CategoryQuoteSent:         FamilyFollowUp,
	CategoryDecisionPending:   FamilyFollowUp,

	CategoryContactMade: FamilyNeutral,
	CategoryLeftMessage: FamilyNeutral,
	CategoryNoAnswer:    FamilyNeutral,
	CategoryBusyLine:    FamilyNeutral,
	CategoryWrongTiming: FamilyNeutral,

	CategoryNotInterested: FamilyNegative,
	CategoryDoNotCall:     FamilyNegative,
	CategoryWrongNumber:   FamilyNegative,
	CategoryHungUp:        FamilyNegative,
	CategoryComplaint:     FamilyNegative,

	CategoryVoicemailDetected: FamilyTechnical,
	CategoryCallDropped:       FamilyTechnical,
	CategoryBadConnection:     FamilyTechnical,
	CategoryCarrierError:      FamilyTechnical,
	CategorySystemError:       FamilyTechnical,
}

// FamilyOf returns the rollup family for a category. Unknown categories are
// treated as neutral.
func FamilyOf(c Category) Family {
	if f, ok := families[c]; ok {
		return f
	}
	return FamilyNeutral
}

// ValidCategory reports whether c is one of the enumerated categories.
func ValidCategory(c Category) bool {
	_, ok := families[c]
	return ok
}

type Impact string

const (
	ImpactHighlyPositive Impact = "highly_positive"
	ImpactPositive       Impact = "positive"
	ImpactNeutral        Impact = "neutral"
	ImpactNegative       Impact = "negative"
	ImpactHighlyNegative Impact = "highly_negative"
)

// DispositionCategory is the coarse agent-facing grouping of a disposition.
type DispositionCategory string

const (
	DispositionPositive  DispositionCategory = "positive"
	DispositionNeutral   DispositionCategory = "neutral"
	DispositionNegative  DispositionCategory = "negative"
	DispositionTechnical DispositionCategory = "technical"
)

// Disposition is a named end-of-call classification an agent can pick.
// Dispositions are configuration data defined per campaign.
type Disposition struct {
	ID            string              `json:"id" db:"id"`
	Name          string              `json:"name" db:"name"`
	Category      DispositionCategory `json:"category" db:"category"`
	RequiresNotes bool                `json:"requires_notes" db:"requires_notes"`
	SortOrder     int                 `json:"sort_order" db:"sort_order"`
}

// RuleConditions gate whether a matched rule's monetary and probability
// values apply. A call that fails a condition keeps its recorded disposition
// but is valued by the default neutral rule instead.
type RuleConditions struct {
	MinCallDurationSeconds int  `json:"min_call_duration_seconds,omitempty" db:"min_call_duration_seconds"`
	RequiresSaleAmount     bool `json:"requires_sale_amount,omitempty" db:"requires_sale_amount"`
	MinLeadScore           int  `json:"min_lead_score,omitempty" db:"min_lead_score"`
}

// MappingRule maps one disposition to a value-scored outcome within a
// campaign scope. At most one active rule exists per disposition per
// campaign.
type MappingRule struct {
	ID                       string         `json:"id" db:"id"`
	CampaignID               string         `json:"campaign_id" db:"campaign_id"`
	DispositionID            string         `json:"disposition_id" db:"disposition_id"`
	Category                 Category       `json:"outcome_category" db:"outcome_category"`
	Impact                   Impact         `json:"outcome_impact" db:"outcome_impact"`
	BaseValue                float64        `json:"base_value" db:"base_value"`
	ConversionProbability    int            `json:"conversion_probability" db:"conversion_probability"`
	ExpectedDaysToConversion int            `json:"expected_days_to_conversion" db:"expected_days_to_conversion"`
	Conditions               RuleConditions `json:"conditions" db:"-"`
	Active                   bool           `json:"active" db:"active"`
}

// DefaultNeutralRule values outcomes for unmapped dispositions and for
// matched rules whose conditions the call did not satisfy.
func DefaultNeutralRule() MappingRule {
	return MappingRule{
		ID:       "default-neutral",
		Category: CategoryContactMade,
		Impact:   ImpactNeutral,
		Active:   true,
	}
}

// CallOutcome is the materialized, value-scored result of one ended call.
// Exactly one exists per disposed session; once verified it is immutable.
type CallOutcome struct {
	ID            string    `json:"id" db:"id"`
	SessionID     string    `json:"session_id" db:"session_id"`
	DispositionID string    `json:"disposition_id" db:"disposition_id"`
	CampaignID    string    `json:"campaign_id,omitempty" db:"campaign_id"`
	AgentID       string    `json:"agent_id,omitempty" db:"agent_id"`
	Category      Category  `json:"outcome_category" db:"outcome_category"`
	Family        Family    `json:"outcome_family" db:"outcome_family"`
	Impact        Impact    `json:"outcome_impact" db:"outcome_impact"`
	QualityScore  int       `json:"quality_score" db:"quality_score"`
	RevenueValue  float64   `json:"revenue_value" db:"revenue_value"`
	SaleAmount    float64   `json:"sale_amount,omitempty" db:"sale_amount"`
	Notes         string    `json:"notes,omitempty" db:"notes"`
	Verified      bool      `json:"verified" db:"verified"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
