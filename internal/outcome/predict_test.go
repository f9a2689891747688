package outcome

import "testing"

func TestPredictStrongContactPeakHour(t *testing.T) {
	p := PredictOutcome(
		ContactHistory{SuccessRate: 90, LeadScore: 85, PriorContacts: 2},
		CampaignStats{ConversionRate: 70, AverageRevenue: 200},
		10,
	)
	// 0.30*90 + 0.25*85 + 0.20*70 + 0.15*100 + 0.10*100 = 87.25
	if p.Confidence != 87 {
		t.Fatalf("expected confidence 87, got %d", p.Confidence)
	}
	if p.Category != CategorySaleClosed {
		t.Fatalf("expected success prediction, got %s", p.Category)
	}
	if p.ExpectedValue <= 0 {
		t.Fatalf("expected positive value, got %v", p.ExpectedValue)
	}
}

func TestPredictColdContactOffHours(t *testing.T) {
	p := PredictOutcome(
		ContactHistory{SuccessRate: 5, LeadScore: 10, PriorContacts: 9},
		CampaignStats{ConversionRate: 10, AverageRevenue: 200},
		23,
	)
	if p.Category != CategoryNotInterested {
		t.Fatalf("expected negative prediction, got %s", p.Category)
	}
	if p.Confidence >= 30 {
		t.Fatalf("expected low confidence, got %d", p.Confidence)
	}
}

func TestPredictMidrangeSuggestsFollowUp(t *testing.T) {
	p := PredictOutcome(
		ContactHistory{SuccessRate: 50, LeadScore: 60, PriorContacts: 1},
		CampaignStats{ConversionRate: 40, AverageRevenue: 200},
		15,
	)
	if p.Category != CategoryCallbackScheduled {
		t.Fatalf("expected follow-up prediction, got %s (confidence %d)", p.Category, p.Confidence)
	}
}

func TestPredictClampsOutOfRangeInputs(t *testing.T) {
	p := PredictOutcome(
		ContactHistory{SuccessRate: 500, LeadScore: -20, PriorContacts: 0},
		CampaignStats{ConversionRate: 200},
		11,
	)
	if p.Confidence > 100 {
		t.Fatalf("confidence must stay within 0-100, got %d", p.Confidence)
	}
}

func TestTimeOfDayFitWindows(t *testing.T) {
	if timeOfDayFit(10) <= timeOfDayFit(12) {
		t.Fatalf("mid-morning must beat lunch")
	}
	if timeOfDayFit(15) <= timeOfDayFit(3) {
		t.Fatalf("afternoon must beat the middle of the night")
	}
}
