package commission_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
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

func newCalc(store *memory.Store) *commission.Calculator {
	return commission.NewCalculator(store, store, store)
}

func seedConvertedGold(t *testing.T, store *memory.Store, convertedAt time.Time, prepurchase bool) {
	t.Helper()
	ctx := context.Background()

	mustSave(t, store.SaveArtist(ctx, commission.Artist{
		ID: "artist-1", Name: "Velvet Era", Tier: commission.TierGold,
	}))
	mustSave(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID:    "scout-1",
		ArtistID:   "artist-1",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(convertedAt, prepurchase),
	}))
}

func mustSave(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// RATE APPLICATION TESTS
// =============================================================================

func TestCalculate_GoldTier_EarlyWindow(t *testing.T) {
	// GIVEN: A $20 GOLD artist converted one month before the period
	// WHEN: Calculating the commission for that period
	// THEN: Base is 20 * 0.20 = 4.00

	store := memory.New()
	seedConvertedGold(t, store, date(2025, time.May, 10), false)

	res, err := newCalc(store).Calculate(context.Background(), "scout-1", "artist-1", june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a commission, got nil")
	}

	if !res.BaseAmount.Equal(decimal.NewFromFloat(4.00)) {
		t.Errorf("base = %s, want 4.00", res.BaseAmount)
	}
	if !res.Rate.Equal(commission.RateEarly) {
		t.Errorf("rate = %s, want early rate", res.Rate)
	}
	if res.MonthsElapsed != 0 {
		t.Errorf("months elapsed = %d, want 0", res.MonthsElapsed)
	}
	if !res.TotalAmount.Equal(res.BaseAmount) {
		t.Errorf("no bonuses seeded, total %s should equal base %s", res.TotalAmount, res.BaseAmount)
	}
}

func TestCalculate_GoldTier_Residual(t *testing.T) {
	// GIVEN: A $20 GOLD artist converted a year before the period
	// THEN: Base is 20 * 0.10 = 2.00

	store := memory.New()
	seedConvertedGold(t, store, date(2024, time.June, 10), false)

	res, err := newCalc(store).Calculate(context.Background(), "scout-1", "artist-1", june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a commission, got nil")
	}

	if !res.BaseAmount.Equal(decimal.NewFromFloat(2.00)) {
		t.Errorf("base = %s, want 2.00", res.BaseAmount)
	}
	if !res.Rate.Equal(commission.RateResidual) {
		t.Errorf("rate = %s, want residual rate", res.Rate)
	}
}

func TestCalculate_Prepurchase_PremiumRateForever(t *testing.T) {
	// GIVEN: A $50 PLATINUM artist prepaid at referral, 17 months ago
	// THEN: Rate stays 0.25 regardless of age: base 12.50

	store := memory.New()
	ctx := context.Background()
	mustSave(t, store.SaveArtist(ctx, commission.Artist{
		ID: "artist-1", Name: "Glass River", Tier: commission.TierPlatinum,
	}))
	mustSave(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID:    "scout-1",
		ArtistID:   "artist-1",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(date(2024, time.January, 10), true),
	}))

	res, err := newCalc(store).Calculate(ctx, "scout-1", "artist-1", june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a commission, got nil")
	}

	if !res.BaseAmount.Equal(decimal.NewFromFloat(12.50)) {
		t.Errorf("base = %s, want 12.50", res.BaseAmount)
	}
	if !res.Prepurchase {
		t.Error("expected prepurchase flag set")
	}
}

// =============================================================================
// BONUS STACKING TESTS
// =============================================================================

func TestCalculate_BothBonuses_StackOnBase(t *testing.T) {
	// GIVEN: A $20 GOLD artist in the early window, upgraded within the
	//        period after the scout's referred listener played them
	// THEN: Total is 4.00 base + 10 upgrade + 2 influence = 16.00

	store := memory.New()
	ctx := context.Background()

	upgradeAt := date(2025, time.June, 5)
	mustSave(t, store.SaveArtist(ctx, commission.Artist{
		ID: "artist-1", Name: "Velvet Era", Tier: commission.TierGold,
		LastUpgradeAt: &upgradeAt,
		Payments: []commission.TierPayment{
			{Tier: commission.TierSilver, Period: "2025-06", CreatedAt: date(2025, time.June, 2)},
			{Tier: commission.TierGold, Period: "2025-06", CreatedAt: upgradeAt},
		},
	}))
	mustSave(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID:    "scout-1",
		ArtistID:   "artist-1",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(date(2025, time.May, 10), false),
	}))
	mustSave(t, store.AddListenerReferral(ctx, commission.ListenerReferral{
		ScoutID: "scout-1", ListenerID: "listener-1",
	}))
	mustSave(t, store.AddPlayback(ctx, commission.Playback{
		ListenerID: "listener-1", ArtistID: "artist-1", PlayedAt: date(2025, time.June, 1),
	}))

	res, err := newCalc(store).Calculate(ctx, "scout-1", "artist-1", june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil {
		t.Fatal("expected a commission, got nil")
	}

	if !res.UpgradeBonus {
		t.Error("expected upgrade bonus")
	}
	if !res.InfluenceBonus {
		t.Error("expected influence bonus")
	}
	if !res.BonusAmount.Equal(decimal.NewFromInt(12)) {
		t.Errorf("bonus = %s, want 12", res.BonusAmount)
	}
	if !res.TotalAmount.Equal(decimal.NewFromFloat(16.00)) {
		t.Errorf("total = %s, want 16.00", res.TotalAmount)
	}
}

// =============================================================================
// NULL CONDITION TESTS
// =============================================================================

func TestCalculate_NoDiscovery_NilResult(t *testing.T) {
	store := memory.New()
	mustSave(t, store.SaveArtist(context.Background(), commission.Artist{
		ID: "artist-1", Tier: commission.TierGold,
	}))

	res, err := newCalc(store).Calculate(context.Background(), "scout-1", "artist-1", june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result without a discovery, got %+v", res)
	}
}

func TestCalculate_NotConverted_NilResult(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	mustSave(t, store.SaveArtist(ctx, commission.Artist{ID: "artist-1", Tier: commission.TierGold}))
	mustSave(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID:    "scout-1",
		ArtistID:   "artist-1",
		Status:     commission.DiscoveryPending,
		Conversion: commission.NotConverted(),
	}))

	res, err := newCalc(store).Calculate(ctx, "scout-1", "artist-1", june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result for unconverted discovery, got %+v", res)
	}
}

func TestCalculate_FreeTier_NilResult(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	mustSave(t, store.SaveArtist(ctx, commission.Artist{ID: "artist-1", Tier: commission.TierFree}))
	mustSave(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID:    "scout-1",
		ArtistID:   "artist-1",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(date(2025, time.May, 10), false),
	}))

	res, err := newCalc(store).Calculate(ctx, "scout-1", "artist-1", june2025(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result for free tier, got %+v", res)
	}
}

func TestCalculate_MissingArtist_IsError(t *testing.T) {
	// A converted discovery pointing at a missing artist is a data
	// error, not a null condition.

	store := memory.New()
	mustSave(t, store.SaveDiscovery(context.Background(), commission.Discovery{
		ScoutID:    "scout-1",
		ArtistID:   "artist-gone",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(date(2025, time.May, 10), false),
	}))

	_, err := newCalc(store).Calculate(context.Background(), "scout-1", "artist-gone", june2025(t))
	if err == nil {
		t.Fatal("expected an error for missing artist")
	}
	if !commission.IsNotFound(err) {
		t.Errorf("expected a not-found error, got %v", err)
	}
}
