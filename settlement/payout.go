/*
payout.go - Per-scout payout settlement

PURPOSE:
  Finalizes a period's PENDING ledger rows. Per scout:
  1. Sum pending totals; skip sums below the minimum payout threshold
     (no results entry - negligible amounts are not payouts)
  2. Look up the scout and hand the amount to the payment processor
     under a per-scout timeout
  3. Atomically mark the rows PAID and credit the scout's lifetime
     counters - both inside one storage transaction
  4. On any failure, mark the rows FAILED with the captured error and
     CONTINUE with the remaining scouts

TRANSACTIONALITY:
  Rows marked PAID but lifetime counters not credited (or vice versa)
  would be an invariant violation, so step 3 runs under WithTx.

RUN RECORDS:
  Each invocation writes a SettlementRun row mirroring the summary, so
  the dashboard and the scheduler can tell whether a period was settled.
*/
package settlement

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
)

// MinimumPayout is the smallest per-scout sum worth settling.
var MinimumPayout = decimal.NewFromFloat(0.01)

// DefaultPayoutTimeout bounds one scout's settlement attempt, including
// the external payment call. A stuck call marks the scout FAILED and the
// batch moves on.
const DefaultPayoutTimeout = 30 * time.Second

// PayoutResult is the per-scout outcome within one settlement batch.
type PayoutResult struct {
	ScoutID commission.ScoutID
	Amount  decimal.Decimal
	Status  commission.CommissionStatus // PAID or FAILED
	Error   string
}

// SettlementSummary reports one settlement batch.
type SettlementSummary struct {
	Period      string
	TotalPaid   decimal.Decimal
	PayoutCount int
	FailedCount int
	Results     []PayoutResult
}

// Settler finalizes pending commissions into payouts.
type Settler struct {
	Store     commission.Store
	Processor PaymentProcessor

	// Timeout bounds each scout's settlement attempt.
	// Zero means DefaultPayoutTimeout.
	Timeout time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewSettler(store commission.Store, processor PaymentProcessor) *Settler {
	return &Settler{Store: store, Processor: processor}
}

// Settle pays out every scout with pending rows for the period. One
// scout's failure never aborts the batch; the summary reports both
// successes and failures.
func (s *Settler) Settle(ctx context.Context, period commission.Period) (*SettlementSummary, error) {
	pending, err := s.Store.PendingByPeriod(ctx, period.Token())
	if err != nil {
		return nil, fmt.Errorf("load pending commissions for %s: %w", period, err)
	}

	totals := groupByScout(pending)

	run := commission.SettlementRun{
		ID:        uuid.NewString(),
		Period:    period.Token(),
		Status:    commission.RunRunning,
		TotalPaid: decimal.Zero,
		StartedAt: s.now(),
	}
	if err := s.Store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save settlement run: %w", err)
	}

	summary := &SettlementSummary{
		Period:    period.Token(),
		TotalPaid: decimal.Zero,
	}

	for _, st := range totals {
		if st.total.LessThan(MinimumPayout) {
			// Below threshold: no payout, no results entry.
			continue
		}

		result := s.settleScout(ctx, st.scoutID, st.total, st.base, period)
		summary.Results = append(summary.Results, result)

		if result.Status == commission.CommissionPaid {
			summary.PayoutCount++
			summary.TotalPaid = summary.TotalPaid.Add(result.Amount)
		} else {
			summary.FailedCount++
		}
	}

	completed := s.now()
	run.Status = commission.RunCompleted
	run.TotalPaid = summary.TotalPaid
	run.PayoutCount = summary.PayoutCount
	run.FailedCount = summary.FailedCount
	run.CompletedAt = &completed
	if err := s.Store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("finalize settlement run: %w", err)
	}

	log.Printf("[Settlement] %s: paid %s to %d scouts, %d failed",
		period, summary.TotalPaid.StringFixed(2), summary.PayoutCount, summary.FailedCount)

	return summary, nil
}

// settleScout performs one scout's payout attempt. Every failure path
// marks the scout's pending rows FAILED and is reported in the result,
// never propagated.
func (s *Settler) settleScout(ctx context.Context, scoutID commission.ScoutID, total, base decimal.Decimal, period commission.Period) PayoutResult {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = DefaultPayoutTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := s.Store.Scout(attemptCtx, scoutID); err != nil {
		return s.fail(ctx, scoutID, total, period, err)
	}

	if err := s.Processor.Pay(attemptCtx, scoutID, total); err != nil {
		return s.fail(ctx, scoutID, total, period, fmt.Errorf("%w: %v", commission.ErrPaymentFailed, err))
	}

	// Mark-paid and lifetime credit must land together.
	paidAt := s.now()
	err := s.Store.WithTx(ctx, func(tx commission.Store) error {
		if err := tx.MarkPaid(ctx, scoutID, period.Token(), paidAt); err != nil {
			return err
		}
		return tx.CreditLifetime(ctx, scoutID, total, base)
	})
	if err != nil {
		// Money left the processor but the ledger transition rolled
		// back; surface it as a failure for operator reconciliation.
		return s.fail(ctx, scoutID, total, period, fmt.Errorf("finalize payout: %w", err))
	}

	return PayoutResult{ScoutID: scoutID, Amount: total, Status: commission.CommissionPaid}
}

// fail records the failure on the scout's rows and returns the FAILED
// result. Uses the parent context: the attempt context may already be
// expired, and the failure mark must still land.
func (s *Settler) fail(ctx context.Context, scoutID commission.ScoutID, amount decimal.Decimal, period commission.Period, cause error) PayoutResult {
	perr := &commission.PayoutError{ScoutID: scoutID, Amount: amount, Err: cause}
	log.Printf("[Settlement] %v", perr)

	if err := s.Store.MarkFailed(ctx, scoutID, period.Token(), cause.Error()); err != nil {
		log.Printf("[Settlement] marking rows failed for scout %s: %v", scoutID, err)
	}

	return PayoutResult{
		ScoutID: scoutID,
		Amount:  amount,
		Status:  commission.CommissionFailed,
		Error:   cause.Error(),
	}
}

func (s *Settler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// GROUPING
// =============================================================================

type scoutTotal struct {
	scoutID commission.ScoutID
	total   decimal.Decimal
	base    decimal.Decimal
}

// groupByScout sums pending rows per scout, ordered by scout ID so
// batches are deterministic.
func groupByScout(recs []commission.CommissionRecord) []scoutTotal {
	byScout := make(map[commission.ScoutID]*scoutTotal)
	for _, rec := range recs {
		st, ok := byScout[rec.ScoutID]
		if !ok {
			st = &scoutTotal{scoutID: rec.ScoutID, total: decimal.Zero, base: decimal.Zero}
			byScout[rec.ScoutID] = st
		}
		st.total = st.total.Add(rec.TotalAmount)
		st.base = st.base.Add(rec.BaseAmount)
	}

	result := make([]scoutTotal, 0, len(byScout))
	for _, st := range byScout {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].scoutID < result[j].scoutID })
	return result
}
