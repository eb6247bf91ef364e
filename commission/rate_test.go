package commission_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
)

func TestRate_DecaySchedule(t *testing.T) {
	cases := []struct {
		name          string
		prepurchase   bool
		monthsElapsed int
		want          decimal.Decimal
	}{
		{"conversion month", false, 0, commission.RateEarly},
		{"second month", false, 1, commission.RateEarly},
		{"last early month", false, 2, commission.RateEarly},
		{"first residual month", false, 3, commission.RateResidual},
		{"years later", false, 48, commission.RateResidual},
		{"prepurchase fresh", true, 0, commission.RatePrepurchase},
		{"prepurchase never decays", true, 120, commission.RatePrepurchase},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := commission.Rate(tc.prepurchase, tc.monthsElapsed)
			if !got.Equal(tc.want) {
				t.Errorf("Rate(%v, %d) = %s, want %s", tc.prepurchase, tc.monthsElapsed, got, tc.want)
			}
		})
	}
}

func TestRate_Values(t *testing.T) {
	// The three rates are fixed business constants.
	if !commission.RatePrepurchase.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("prepurchase rate = %s, want 0.25", commission.RatePrepurchase)
	}
	if !commission.RateEarly.Equal(decimal.NewFromFloat(0.20)) {
		t.Errorf("early rate = %s, want 0.20", commission.RateEarly)
	}
	if !commission.RateResidual.Equal(decimal.NewFromFloat(0.10)) {
		t.Errorf("residual rate = %s, want 0.10", commission.RateResidual)
	}
}
