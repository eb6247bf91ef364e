/*
Package settlement runs the monthly commission batches.

PURPOSE:
  Two sequential batch jobs over the commission ledger:

  Aggregator.RunMonthly:  for every active scout and converted referral,
                          materialize the calculator's output as durable
                          PENDING ledger rows. Idempotent per period.
  Settler.Settle:         group a period's PENDING rows per scout, pay
                          each scout via the external processor, and
                          atomically finalize the rows. Failures are
                          isolated per scout.

IDEMPOTENCY:
  The aggregator does not pre-check for existing rows. It inserts and
  treats the storage layer's uniqueness violation on
  (scout, artist, period) as "already processed". A check-then-insert
  would race under overlapping batch runs; the constraint cannot.

FAILURE ISOLATION:
  One scout's failure never aborts the batch. Repository errors during
  aggregation skip the affected scout/referral; settlement failures mark
  that scout's rows FAILED and move on. Summaries always report both
  successes and failures.

SEE ALSO:
  - commission/calculator.go: The per-triple calculation
  - payout.go: The settlement half of the batch
*/
package settlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
)

// AggregateSummary reports one monthly aggregation run.
type AggregateSummary struct {
	Period           string
	TotalCommissions decimal.Decimal // sum of base amounts
	TotalBonuses     decimal.Decimal
	TotalAmount      decimal.Decimal
	RecordCount      int // new ledger rows created
	ScoutCount       int // scouts that produced at least one new row
	SkippedCount     int // inapplicable or already-processed referrals
}

// Aggregator materializes monthly commissions as PENDING ledger rows.
type Aggregator struct {
	Scouts      commission.ScoutRepository
	Referrals   commission.ReferralRepository
	Commissions commission.CommissionRepository
	Calc        *commission.Calculator

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewAggregator wires an aggregator over the store.
func NewAggregator(store commission.Store) *Aggregator {
	return &Aggregator{
		Scouts:      store,
		Referrals:   store,
		Commissions: store,
		Calc:        commission.NewCalculator(store, store, store),
	}
}

// RunMonthly computes and persists commissions for every active scout's
// converted referrals in the period. Re-running for an already-processed
// period creates zero new rows and is a safe no-op.
func (a *Aggregator) RunMonthly(ctx context.Context, period commission.Period) (*AggregateSummary, error) {
	scouts, err := a.Scouts.ActiveScouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active scouts: %w", err)
	}

	summary := &AggregateSummary{
		Period:           period.Token(),
		TotalCommissions: decimal.Zero,
		TotalBonuses:     decimal.Zero,
		TotalAmount:      decimal.Zero,
	}

	for _, scout := range scouts {
		created := a.runScout(ctx, scout.ID, period, summary)
		if created > 0 {
			summary.ScoutCount++
		}
	}

	log.Printf("[Aggregator] %s: %d rows for %d scouts (base=%s bonus=%s, %d skipped)",
		period, summary.RecordCount, summary.ScoutCount,
		summary.TotalCommissions.StringFixed(2), summary.TotalBonuses.StringFixed(2),
		summary.SkippedCount)

	return summary, nil
}

// runScout processes one scout's referrals and returns the number of
// rows created. Errors are logged and isolated to the affected referral.
func (a *Aggregator) runScout(ctx context.Context, scoutID commission.ScoutID, period commission.Period, summary *AggregateSummary) int {
	discoveries, err := a.Referrals.DiscoveriesByScout(ctx, scoutID)
	if err != nil {
		log.Printf("[Aggregator] skipping scout %s: %v", scoutID, err)
		return 0
	}

	created := 0
	for _, d := range discoveries {
		if !d.Commissionable() {
			summary.SkippedCount++
			continue
		}

		result, err := a.Calc.Calculate(ctx, scoutID, d.ArtistID, period)
		if err != nil {
			log.Printf("[Aggregator] calculate %s/%s: %v", scoutID, d.ArtistID, err)
			continue
		}
		if result == nil {
			// Free tier or no longer applicable.
			summary.SkippedCount++
			continue
		}

		rec := result.ToRecord(uuid.NewString(), a.now())
		if err := a.Commissions.Insert(ctx, rec); err != nil {
			if commission.IsAlreadyProcessed(err) {
				// Idempotency gate: the row exists from a previous run.
				summary.SkippedCount++
				continue
			}
			log.Printf("[Aggregator] insert %s/%s/%s: %v", scoutID, d.ArtistID, period, err)
			continue
		}

		created++
		summary.RecordCount++
		summary.TotalCommissions = summary.TotalCommissions.Add(rec.BaseAmount)
		summary.TotalBonuses = summary.TotalBonuses.Add(rec.BonusAmount)
		summary.TotalAmount = summary.TotalAmount.Add(rec.TotalAmount)
	}
	return created
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}
