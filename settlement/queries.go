/*
queries.go - Read-only aggregations over calculations and the ledger

PURPOSE:
  The query surface consumed by the dashboard/API layer:
  - AllScoutCommissions: non-durable preview of a scout's commissions
    for a period (runs the calculator, writes nothing)
  - ScoutSummary: the scout's ledger rows grouped by period
  - LifetimeEarnings: lifetime counters plus paid/pending ledger sums
*/
package settlement

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
)

// Queries provides the read-only operations.
type Queries struct {
	Scouts      commission.ScoutRepository
	Referrals   commission.ReferralRepository
	Commissions commission.CommissionRepository
	Calc        *commission.Calculator
}

func NewQueries(store commission.Store) *Queries {
	return &Queries{
		Scouts:      store,
		Referrals:   store,
		Commissions: store,
		Calc:        commission.NewCalculator(store, store, store),
	}
}

// =============================================================================
// CALCULATION PREVIEW
// =============================================================================

// ScoutPeriodTotals is the non-durable calculation of every commission a
// scout would earn for a period.
type ScoutPeriodTotals struct {
	ScoutID          commission.ScoutID
	Period           string
	TotalCommissions decimal.Decimal
	TotalBonuses     decimal.Decimal
	TotalAmount      decimal.Decimal
	Count            int
	Items            []commission.Result
}

// AllScoutCommissions calculates all of a scout's commissions for the
// period without persisting anything.
func (q *Queries) AllScoutCommissions(ctx context.Context, scoutID commission.ScoutID, period commission.Period) (*ScoutPeriodTotals, error) {
	discoveries, err := q.Referrals.DiscoveriesByScout(ctx, scoutID)
	if err != nil {
		return nil, fmt.Errorf("list discoveries for %s: %w", scoutID, err)
	}

	totals := &ScoutPeriodTotals{
		ScoutID:          scoutID,
		Period:           period.Token(),
		TotalCommissions: decimal.Zero,
		TotalBonuses:     decimal.Zero,
		TotalAmount:      decimal.Zero,
	}

	for _, d := range discoveries {
		if !d.Commissionable() {
			continue
		}
		result, err := q.Calc.Calculate(ctx, scoutID, d.ArtistID, period)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		totals.Items = append(totals.Items, *result)
		totals.Count++
		totals.TotalCommissions = totals.TotalCommissions.Add(result.BaseAmount)
		totals.TotalBonuses = totals.TotalBonuses.Add(result.BonusAmount)
		totals.TotalAmount = totals.TotalAmount.Add(result.TotalAmount)
	}

	return totals, nil
}

// =============================================================================
// LEDGER SUMMARIES
// =============================================================================

// PeriodSummary aggregates one period's ledger rows for a scout.
type PeriodSummary struct {
	Period      string
	TotalBase   decimal.Decimal
	TotalBonus  decimal.Decimal
	TotalAmount decimal.Decimal
	RecordCount int
	PaidCount   int
	PendingCount int
	FailedCount int
}

// ScoutSummary is a scout's ledger grouped by period, newest first.
type ScoutSummary struct {
	ScoutID commission.ScoutID
	Periods []PeriodSummary
}

// Summary returns the scout's commission history grouped by period.
// An empty period token covers the full history; otherwise only that
// period's group is returned.
func (q *Queries) Summary(ctx context.Context, scoutID commission.ScoutID, period string) (*ScoutSummary, error) {
	if _, err := q.Scouts.Scout(ctx, scoutID); err != nil {
		return nil, err
	}

	recs, err := q.Commissions.ByScout(ctx, scoutID, period)
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", scoutID, err)
	}

	groups := make(map[string]*PeriodSummary)
	for _, rec := range recs {
		g, ok := groups[rec.Period]
		if !ok {
			g = &PeriodSummary{
				Period:      rec.Period,
				TotalBase:   decimal.Zero,
				TotalBonus:  decimal.Zero,
				TotalAmount: decimal.Zero,
			}
			groups[rec.Period] = g
		}
		g.RecordCount++
		g.TotalBase = g.TotalBase.Add(rec.BaseAmount)
		g.TotalBonus = g.TotalBonus.Add(rec.BonusAmount)
		g.TotalAmount = g.TotalAmount.Add(rec.TotalAmount)
		switch rec.Status {
		case commission.CommissionPaid:
			g.PaidCount++
		case commission.CommissionPending:
			g.PendingCount++
		case commission.CommissionFailed:
			g.FailedCount++
		}
	}

	summary := &ScoutSummary{ScoutID: scoutID}
	for _, g := range groups {
		summary.Periods = append(summary.Periods, *g)
	}
	sort.Slice(summary.Periods, func(i, j int) bool {
		return summary.Periods[i].Period > summary.Periods[j].Period
	})

	return summary, nil
}

// LifetimeEarnings pairs the scout's lifetime counters with ledger sums.
type LifetimeEarnings struct {
	ScoutID             commission.ScoutID
	LifetimeEarnings    decimal.Decimal
	LifetimeCommissions decimal.Decimal
	PaidAmount          decimal.Decimal
	PendingAmount       decimal.Decimal
	PaidCount           int
	PendingCount        int
}

// Lifetime returns the scout's lifetime totals. The counters come from
// the scout record (credited at settlement); the paid/pending sums are
// recomputed from the ledger so drift is visible.
func (q *Queries) Lifetime(ctx context.Context, scoutID commission.ScoutID) (*LifetimeEarnings, error) {
	scout, err := q.Scouts.Scout(ctx, scoutID)
	if err != nil {
		return nil, err
	}

	recs, err := q.Commissions.ByScout(ctx, scoutID, "")
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", scoutID, err)
	}

	le := &LifetimeEarnings{
		ScoutID:             scoutID,
		LifetimeEarnings:    scout.LifetimeEarnings,
		LifetimeCommissions: scout.LifetimeCommissions,
		PaidAmount:          decimal.Zero,
		PendingAmount:       decimal.Zero,
	}
	for _, rec := range recs {
		switch rec.Status {
		case commission.CommissionPaid:
			le.PaidAmount = le.PaidAmount.Add(rec.TotalAmount)
			le.PaidCount++
		case commission.CommissionPending:
			le.PendingAmount = le.PendingAmount.Add(rec.TotalAmount)
			le.PendingCount++
		}
	}

	return le, nil
}
