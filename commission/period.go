package commission

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The monthly settlement boundary
// =============================================================================

// Period identifies one calendar month, the unit over which commissions
// are computed and settled. The token format is fixed "YYYY-MM" and the
// period always represents the first day of that month (UTC).
type Period struct {
	token string
	start time.Time
}

const periodLayout = "2006-01"

// ParsePeriod parses a "YYYY-MM" token into a Period anchored at the
// first calendar day of that month. Malformed input fails with
// ErrInvalidPeriod.
func ParsePeriod(token string) (Period, error) {
	t, err := time.Parse(periodLayout, token)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, token)
	}
	return Period{token: token, start: t.UTC()}, nil
}

// PeriodOf returns the period containing the given time.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{token: start.Format(periodLayout), start: start}
}

// Token returns the "YYYY-MM" string form.
func (p Period) Token() string { return p.token }

// Start returns the first instant of the period's month.
func (p Period) Start() time.Time { return p.start }

// NextStart returns the first instant of the following month
// (the period's exclusive upper bound).
func (p Period) NextStart() time.Time { return p.start.AddDate(0, 1, 0) }

// Next returns the following period.
func (p Period) Next() Period { return PeriodOf(p.NextStart()) }

// Prev returns the preceding period. The arithmetic runs on the period's
// start, never on an arbitrary day-of-month, so it cannot be skewed by
// AddDate's overflow normalization (Mar 31 minus one month is "Feb 31",
// which Go normalizes forward into March).
func (p Period) Prev() Period { return PeriodOf(p.start.AddDate(0, -1, 0)) }

// Contains returns true if t falls within the period's calendar month.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.start) && t.Before(p.NextStart())
}

func (p Period) IsZero() bool { return p.token == "" }

func (p Period) String() string { return p.token }

// =============================================================================
// ELAPSED MONTHS - Anniversary-based, not naive field subtraction
// =============================================================================

// MonthsElapsed computes the number of full months between start and end.
//
// The count is anniversary-based: the year*12+month difference is reduced
// by one when end's day-of-month precedes start's day-of-month, because
// the monthly anniversary has not yet occurred. Clamped to zero.
//
//	MonthsElapsed(2024-12-31, 2025-01-01) = 0
//	MonthsElapsed(2024-12-15, 2025-02-15) = 2
//	MonthsElapsed(2024-12-15, 2025-02-14) = 1
func MonthsElapsed(start, end time.Time) int {
	start, end = start.UTC(), end.UTC()
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
