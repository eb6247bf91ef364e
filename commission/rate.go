package commission

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMISSION RATE POLICY - Pure, total function
// =============================================================================

// EarlyWindowMonths is the length of the early commission window.
// Months 0, 1 and 2 after conversion earn the early rate.
const EarlyWindowMonths = 3

var (
	// RatePrepurchase is the flat lifetime rate for prepaid conversions.
	RatePrepurchase = decimal.NewFromFloat(0.25)

	// RateEarly applies while the conversion is inside the early window.
	RateEarly = decimal.NewFromFloat(0.20)

	// RateResidual applies from month 3 onward.
	RateResidual = decimal.NewFromFloat(0.10)
)

// Rate maps (prepurchase, elapsed months) to a commission rate.
//
// Prepurchase is checked first and short-circuits: a prepaid conversion
// earns the flat lifetime rate regardless of elapsed time. There is no
// error path; every input has a defined rate.
func Rate(prepurchase bool, monthsElapsed int) decimal.Decimal {
	if prepurchase {
		return RatePrepurchase
	}
	if monthsElapsed < EarlyWindowMonths {
		return RateEarly
	}
	return RateResidual
}
