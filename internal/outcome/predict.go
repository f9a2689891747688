package outcome

import "math"

// ContactHistory summarizes prior interactions with one contact.
type ContactHistory struct {
	SuccessRate   int `json:"success_rate"`   // 0-100, share of prior calls in the success family
	LeadScore     int `json:"lead_score"`     // 0-100
	PriorContacts int `json:"prior_contacts"` // total prior dial attempts
}

// CampaignStats summarizes a campaign's realized performance.
type CampaignStats struct {
	ConversionRate int     `json:"conversion_rate"` // 0-100
	AverageRevenue float64 `json:"average_revenue"` // per successful outcome
}

// OutcomePrediction is agent guidance only. It never classifies a real
// outcome; that always comes from a recorded disposition.
type OutcomePrediction struct {
	Category      Category `json:"predicted_category"`
	Confidence    int      `json:"confidence"`
	ExpectedValue float64  `json:"expected_value"`
}

// Prediction factor weights. They sum to 1.
const (
	weightHistory       = 0.30
	weightContact       = 0.25
	weightCampaign      = 0.20
	weightTimeOfDay     = 0.15
	weightPriorContacts = 0.10
)

// PredictOutcome scores the likelihood of a good result for the next call to
// a contact. hourOfDay is the local hour in 0-23.
func PredictOutcome(history ContactHistory, stats CampaignStats, hourOfDay int) OutcomePrediction {
	score := weightHistory*clampPct(history.SuccessRate) +
		weightContact*clampPct(history.LeadScore) +
		weightCampaign*clampPct(stats.ConversionRate) +
		weightTimeOfDay*timeOfDayFit(hourOfDay) +
		weightPriorContacts*priorContactFit(history.PriorContacts)

	confidence := int(math.Round(score))
	return OutcomePrediction{
		Category:      predictedCategory(confidence),
		Confidence:    confidence,
		ExpectedValue: stats.AverageRevenue * score / 100,
	}
}

func clampPct(v int) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return float64(v)
}

// timeOfDayFit scores calling windows. Mid-morning and mid-afternoon are the
// strongest; lunch and early morning are weaker; outside business hours is
// poor.
func timeOfDayFit(hour int) float64 {
	switch {
	case hour >= 10 && hour < 12, hour >= 14 && hour < 17:
		return 100
	case hour == 9, hour >= 12 && hour < 14, hour >= 17 && hour < 19:
		return 70
	case hour == 8, hour == 19:
		return 40
	default:
		return 20
	}
}

// priorContactFit rewards a warmed-up contact and penalizes fatigue.
func priorContactFit(n int) float64 {
	switch {
	case n <= 0:
		return 50
	case n <= 3:
		return 100
	case n <= 6:
		return 70
	default:
		return 30
	}
}

func predictedCategory(confidence int) Category {
	switch {
	case confidence >= 75:
		return CategorySaleClosed
	case confidence >= 50:
		return CategoryCallbackScheduled
	case confidence >= 30:
		return CategoryContactMade
	default:
		return CategoryNotInterested
	}
}
