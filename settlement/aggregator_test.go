package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
	"github.com/newmusiclives/scout-commissions/settlement"
	"github.com/newmusiclives/scout-commissions/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func june2025(t *testing.T) commission.Period {
	t.Helper()
	p, err := commission.ParsePeriod("2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustSeed(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// seedTwoScouts sets up two active scouts, each with one converted GOLD
// referral, plus one inactive scout and one unconverted referral.
func seedTwoScouts(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()

	for _, sc := range []commission.Scout{
		{ID: "scout-1", Name: "Ana", Status: commission.ScoutActive,
			LifetimeEarnings: decimal.Zero, LifetimeCommissions: decimal.Zero},
		{ID: "scout-2", Name: "Ben", Status: commission.ScoutActive,
			LifetimeEarnings: decimal.Zero, LifetimeCommissions: decimal.Zero},
		{ID: "scout-3", Name: "Cleo", Status: commission.ScoutInactive,
			LifetimeEarnings: decimal.Zero, LifetimeCommissions: decimal.Zero},
	} {
		mustSeed(t, store.SaveScout(ctx, sc))
	}

	for _, a := range []commission.Artist{
		{ID: "artist-1", Name: "Velvet Era", Tier: commission.TierGold},
		{ID: "artist-2", Name: "North Hollow", Tier: commission.TierGold},
		{ID: "artist-3", Name: "The Fallows", Tier: commission.TierGold},
	} {
		mustSeed(t, store.SaveArtist(ctx, a))
	}

	mustSeed(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID: "scout-1", ArtistID: "artist-1",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(date(2025, time.May, 10), false),
	}))
	mustSeed(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID: "scout-2", ArtistID: "artist-2",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(date(2024, time.June, 10), false),
	}))
	// Unconverted: contributes to the skip count, never to the ledger.
	mustSeed(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID: "scout-1", ArtistID: "artist-3",
		Status:     commission.DiscoveryPending,
		Conversion: commission.NotConverted(),
	}))
	// The inactive scout's referral must not be visited at all.
	mustSeed(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID: "scout-3", ArtistID: "artist-1",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(date(2025, time.May, 10), false),
	}))
}

// =============================================================================
// AGGREGATION TESTS
// =============================================================================

func TestRunMonthly_MaterializesPendingRows(t *testing.T) {
	// GIVEN: Two active scouts with converted GOLD referrals
	// WHEN: Running the monthly aggregation
	// THEN: One PENDING row per commissionable referral, correct totals

	store := memory.New()
	seedTwoScouts(t, store)

	summary, err := settlement.NewAggregator(store).RunMonthly(context.Background(), june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.RecordCount != 2 {
		t.Errorf("record count = %d, want 2", summary.RecordCount)
	}
	if summary.ScoutCount != 2 {
		t.Errorf("scout count = %d, want 2", summary.ScoutCount)
	}
	// scout-1: early window 20*0.20=4.00; scout-2: residual 20*0.10=2.00
	if !summary.TotalCommissions.Equal(decimal.NewFromFloat(6.00)) {
		t.Errorf("total commissions = %s, want 6.00", summary.TotalCommissions)
	}

	recs, err := store.PendingByPeriod(context.Background(), "2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 pending rows, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.Status != commission.CommissionPending {
			t.Errorf("row %s/%s: status %s, want PENDING", rec.ScoutID, rec.ArtistID, rec.Status)
		}
	}
}

func TestRunMonthly_SecondRun_CreatesNothing(t *testing.T) {
	// GIVEN: A period that was already aggregated
	// WHEN: Running the aggregation again (retry after a partial failure)
	// THEN: Zero new rows; the existing rows are untouched

	store := memory.New()
	seedTwoScouts(t, store)
	ctx := context.Background()
	agg := settlement.NewAggregator(store)

	first, err := agg.RunMonthly(ctx, june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.RecordCount != 2 {
		t.Fatalf("first run created %d rows, want 2", first.RecordCount)
	}

	second, err := agg.RunMonthly(ctx, june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.RecordCount != 0 {
		t.Errorf("second run created %d rows, want 0", second.RecordCount)
	}
	if second.ScoutCount != 0 {
		t.Errorf("second run scout count = %d, want 0", second.ScoutCount)
	}
	if !second.TotalAmount.IsZero() {
		t.Errorf("second run total = %s, want 0", second.TotalAmount)
	}

	recs, err := store.PendingByPeriod(ctx, "2025-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 pending rows after re-run, got %d", len(recs))
	}
}

func TestRunMonthly_DistinctPeriods_EachGetRows(t *testing.T) {
	// Idempotency is per-period: the next month aggregates fresh rows.

	store := memory.New()
	seedTwoScouts(t, store)
	ctx := context.Background()
	agg := settlement.NewAggregator(store)

	if _, err := agg.RunMonthly(ctx, june2025(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	july, err := commission.ParsePeriod("2025-07")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	summary, err := agg.RunMonthly(ctx, july)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.RecordCount != 2 {
		t.Errorf("july created %d rows, want 2", summary.RecordCount)
	}
}

func TestRunMonthly_InactiveScout_NotVisited(t *testing.T) {
	store := memory.New()
	seedTwoScouts(t, store)
	ctx := context.Background()

	if _, err := settlement.NewAggregator(store).RunMonthly(ctx, june2025(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs, err := store.ByScout(ctx, "scout-3", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("inactive scout has %d ledger rows, want 0", len(recs))
	}
}
