package settlement_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
	"github.com/newmusiclives/scout-commissions/settlement"
	"github.com/newmusiclives/scout-commissions/store/memory"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// selectiveProcessor fails payouts for the scouts listed in failFor.
type selectiveProcessor struct {
	failFor map[commission.ScoutID]bool
	paid    []commission.ScoutID
}

func (p *selectiveProcessor) Pay(_ context.Context, scoutID commission.ScoutID, _ decimal.Decimal) error {
	if p.failFor[scoutID] {
		return errors.New("card declined")
	}
	p.paid = append(p.paid, scoutID)
	return nil
}

// stallingProcessor hangs payments for the listed scouts until the
// payment context expires; everyone else pays instantly.
type stallingProcessor struct {
	stallFor map[commission.ScoutID]bool
	paid     []commission.ScoutID
}

func (p *stallingProcessor) Pay(ctx context.Context, scoutID commission.ScoutID, _ decimal.Decimal) error {
	if p.stallFor[scoutID] {
		<-ctx.Done()
		return ctx.Err()
	}
	p.paid = append(p.paid, scoutID)
	return nil
}

// pendingRow inserts a PENDING ledger row with the given amounts.
func pendingRow(t *testing.T, store *memory.Store, scoutID commission.ScoutID, artistID commission.ArtistID, base, bonus decimal.Decimal) {
	t.Helper()
	err := store.Insert(context.Background(), commission.CommissionRecord{
		ID:            uuid.NewString(),
		ScoutID:       scoutID,
		ArtistID:      artistID,
		Period:        "2025-06",
		Tier:          commission.TierGold,
		PaymentAmount: commission.TierGold.Price(),
		Rate:          commission.RateEarly,
		BaseAmount:    base,
		BonusAmount:   bonus,
		TotalAmount:   base.Add(bonus),
		Status:        commission.CommissionPending,
	})
	if err != nil {
		t.Fatalf("insert pending row: %v", err)
	}
}

func activeScout(t *testing.T, store *memory.Store, id commission.ScoutID) {
	t.Helper()
	mustSeed(t, store.SaveScout(context.Background(), commission.Scout{
		ID: id, Name: string(id), Status: commission.ScoutActive,
		LifetimeEarnings: decimal.Zero, LifetimeCommissions: decimal.Zero,
	}))
}

// =============================================================================
// SETTLEMENT TESTS
// =============================================================================

func TestSettle_PaysAndCreditsLifetime(t *testing.T) {
	// GIVEN: One scout with two pending rows (4.00 base + 12 bonus, 2.00 base)
	// WHEN: Settling the period
	// THEN: Rows go PAID, lifetime earnings +18.00, lifetime commissions +6.00

	store := memory.New()
	activeScout(t, store, "scout-1")
	pendingRow(t, store, "scout-1", "artist-1", decimal.NewFromFloat(4.00), decimal.NewFromInt(12))
	pendingRow(t, store, "scout-1", "artist-2", decimal.NewFromFloat(2.00), decimal.Zero)

	proc := &selectiveProcessor{}
	summary, err := settlement.NewSettler(store, proc).Settle(context.Background(), june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.PayoutCount != 1 || summary.FailedCount != 0 {
		t.Fatalf("payouts = %d, failed = %d; want 1 paid, 0 failed", summary.PayoutCount, summary.FailedCount)
	}
	if !summary.TotalPaid.Equal(decimal.NewFromFloat(18.00)) {
		t.Errorf("total paid = %s, want 18.00", summary.TotalPaid)
	}

	recs, err := store.ByScout(context.Background(), "scout-1", "2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, rec := range recs {
		if rec.Status != commission.CommissionPaid {
			t.Errorf("row %s: status %s, want PAID", rec.ArtistID, rec.Status)
		}
		if rec.PaidAt == nil {
			t.Errorf("row %s: missing paid timestamp", rec.ArtistID)
		}
	}

	scout, err := store.Scout(context.Background(), "scout-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scout.LifetimeEarnings.Equal(decimal.NewFromFloat(18.00)) {
		t.Errorf("lifetime earnings = %s, want 18.00", scout.LifetimeEarnings)
	}
	if !scout.LifetimeCommissions.Equal(decimal.NewFromFloat(6.00)) {
		t.Errorf("lifetime commissions = %s, want 6.00", scout.LifetimeCommissions)
	}
}

func TestSettle_OneFailure_DoesNotAbortBatch(t *testing.T) {
	// GIVEN: Two scouts with pending rows; the processor declines one
	// WHEN: Settling the period
	// THEN: The other scout is still paid; the failed scout's rows are
	//       FAILED with the captured reason

	store := memory.New()
	activeScout(t, store, "scout-1")
	activeScout(t, store, "scout-2")
	pendingRow(t, store, "scout-1", "artist-1", decimal.NewFromFloat(4.00), decimal.Zero)
	pendingRow(t, store, "scout-2", "artist-2", decimal.NewFromFloat(2.00), decimal.Zero)

	proc := &selectiveProcessor{failFor: map[commission.ScoutID]bool{"scout-1": true}}
	summary, err := settlement.NewSettler(store, proc).Settle(context.Background(), june2025(t))
	if err != nil {
		t.Fatalf("batch must not fail for a single scout: %v", err)
	}

	if summary.PayoutCount != 1 {
		t.Errorf("payout count = %d, want 1", summary.PayoutCount)
	}
	if summary.FailedCount != 1 {
		t.Errorf("failed count = %d, want 1", summary.FailedCount)
	}
	if !summary.TotalPaid.Equal(decimal.NewFromFloat(2.00)) {
		t.Errorf("total paid = %s, want 2.00", summary.TotalPaid)
	}

	failedRecs, err := store.ByScout(context.Background(), "scout-1", "2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, rec := range failedRecs {
		if rec.Status != commission.CommissionFailed {
			t.Errorf("failed scout row: status %s, want FAILED", rec.Status)
		}
		if rec.FailureReason == "" {
			t.Error("failed row must record the failure reason")
		}
	}

	// The failed scout's lifetime counters must be untouched.
	scout1, err := store.Scout(context.Background(), "scout-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scout1.LifetimeEarnings.IsZero() {
		t.Errorf("failed scout lifetime earnings = %s, want 0", scout1.LifetimeEarnings)
	}

	scout2, err := store.Scout(context.Background(), "scout-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scout2.LifetimeEarnings.Equal(decimal.NewFromFloat(2.00)) {
		t.Errorf("paid scout lifetime earnings = %s, want 2.00", scout2.LifetimeEarnings)
	}
}

func TestSettle_StuckProcessor_TimesOutAndContinues(t *testing.T) {
	// GIVEN: scout-1's payment call hangs indefinitely; scout-2's succeeds
	// WHEN: Settling with a short per-scout timeout
	// THEN: scout-1's rows go FAILED with the timeout captured as the
	//       reason, and the batch still pays scout-2

	store := memory.New()
	activeScout(t, store, "scout-1")
	activeScout(t, store, "scout-2")
	pendingRow(t, store, "scout-1", "artist-1", decimal.NewFromFloat(4.00), decimal.Zero)
	pendingRow(t, store, "scout-2", "artist-2", decimal.NewFromFloat(2.00), decimal.Zero)

	proc := &stallingProcessor{stallFor: map[commission.ScoutID]bool{"scout-1": true}}
	settler := settlement.NewSettler(store, proc)
	settler.Timeout = 20 * time.Millisecond

	summary, err := settler.Settle(context.Background(), june2025(t))
	if err != nil {
		t.Fatalf("a stuck scout must not fail the batch: %v", err)
	}

	if summary.PayoutCount != 1 || summary.FailedCount != 1 {
		t.Fatalf("payouts = %d, failed = %d; want 1 and 1", summary.PayoutCount, summary.FailedCount)
	}
	if !summary.TotalPaid.Equal(decimal.NewFromFloat(2.00)) {
		t.Errorf("total paid = %s, want 2.00", summary.TotalPaid)
	}

	stuckRecs, err := store.ByScout(context.Background(), "scout-1", "2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, rec := range stuckRecs {
		if rec.Status != commission.CommissionFailed {
			t.Errorf("stuck scout row: status %s, want FAILED", rec.Status)
		}
		if !strings.Contains(rec.FailureReason, "deadline") {
			t.Errorf("failure reason %q must capture the timeout", rec.FailureReason)
		}
	}

	if len(proc.paid) != 1 || proc.paid[0] != "scout-2" {
		t.Errorf("processor paid %v, want only scout-2", proc.paid)
	}
}

func TestSettle_BelowMinimum_SkippedWithoutResult(t *testing.T) {
	// GIVEN: A scout whose pending sum is $0.009
	// WHEN: Settling the period
	// THEN: No payout attempt, no results entry, rows stay PENDING

	store := memory.New()
	activeScout(t, store, "scout-1")
	pendingRow(t, store, "scout-1", "artist-1", decimal.NewFromFloat(0.009), decimal.Zero)

	proc := &selectiveProcessor{}
	summary, err := settlement.NewSettler(store, proc).Settle(context.Background(), june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summary.Results) != 0 {
		t.Errorf("expected no results entries, got %d", len(summary.Results))
	}
	if len(proc.paid) != 0 {
		t.Errorf("expected no processor calls, got %d", len(proc.paid))
	}

	recs, err := store.PendingByPeriod(context.Background(), "2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected the row to stay PENDING, got %d pending rows", len(recs))
	}
}

func TestSettle_ExactMinimum_IsPaid(t *testing.T) {
	// $0.01 is payable; only sums strictly below the threshold are skipped.

	store := memory.New()
	activeScout(t, store, "scout-1")
	pendingRow(t, store, "scout-1", "artist-1", decimal.NewFromFloat(0.01), decimal.Zero)

	proc := &selectiveProcessor{}
	summary, err := settlement.NewSettler(store, proc).Settle(context.Background(), june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.PayoutCount != 1 {
		t.Errorf("payout count = %d, want 1", summary.PayoutCount)
	}
}

func TestSettle_MissingScout_MarkedFailed(t *testing.T) {
	// A pending row referencing a scout that no longer exists fails that
	// payout, not the batch.

	store := memory.New()
	activeScout(t, store, "scout-1")
	pendingRow(t, store, "scout-1", "artist-1", decimal.NewFromFloat(4.00), decimal.Zero)
	pendingRow(t, store, "scout-gone", "artist-2", decimal.NewFromFloat(2.00), decimal.Zero)

	proc := &selectiveProcessor{}
	summary, err := settlement.NewSettler(store, proc).Settle(context.Background(), june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.PayoutCount != 1 || summary.FailedCount != 1 {
		t.Errorf("payouts = %d, failed = %d; want 1 and 1", summary.PayoutCount, summary.FailedCount)
	}
}

func TestSettle_RecordsCompletedRun(t *testing.T) {
	store := memory.New()
	activeScout(t, store, "scout-1")
	pendingRow(t, store, "scout-1", "artist-1", decimal.NewFromFloat(4.00), decimal.Zero)
	ctx := context.Background()

	before, err := store.CompletedRun(ctx, "2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before != nil {
		t.Fatal("expected no completed run before settling")
	}

	if _, err := settlement.NewSettler(store, &selectiveProcessor{}).Settle(ctx, june2025(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run, err := store.CompletedRun(ctx, "2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run == nil {
		t.Fatal("expected a completed run after settling")
	}
	if run.PayoutCount != 1 {
		t.Errorf("run payout count = %d, want 1", run.PayoutCount)
	}
	if !run.TotalPaid.Equal(decimal.NewFromFloat(4.00)) {
		t.Errorf("run total = %s, want 4.00", run.TotalPaid)
	}
	if run.CompletedAt == nil {
		t.Error("completed run must carry a completion timestamp")
	}
}

func TestSettle_SecondRun_NothingLeftToPay(t *testing.T) {
	// Once a period's rows are PAID, settling again finds nothing.

	store := memory.New()
	activeScout(t, store, "scout-1")
	pendingRow(t, store, "scout-1", "artist-1", decimal.NewFromFloat(4.00), decimal.Zero)
	ctx := context.Background()

	settler := settlement.NewSettler(store, &selectiveProcessor{})
	if _, err := settler.Settle(ctx, june2025(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := settler.Settle(ctx, june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.PayoutCount != 0 || !second.TotalPaid.IsZero() {
		t.Errorf("second settle paid %s to %d scouts, want nothing", second.TotalPaid, second.PayoutCount)
	}

	scout, err := store.Scout(ctx, "scout-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scout.LifetimeEarnings.Equal(decimal.NewFromFloat(4.00)) {
		t.Errorf("lifetime earnings = %s, want 4.00 (no double credit)", scout.LifetimeEarnings)
	}
}
