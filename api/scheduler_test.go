package api

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmusiclives/scout-commissions/commission"
	"github.com/newmusiclives/scout-commissions/settlement"
	"github.com/newmusiclives/scout-commissions/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestScheduler wires a scheduler over an in-memory store with one
// scout holding a converted GOLD referral since January 2026, and pins
// the scheduler clock to at.
func newTestScheduler(t *testing.T, at time.Time) (*SettlementScheduler, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.SaveScout(ctx, commission.Scout{
		ID: "scout-1", Name: "Ana", Status: commission.ScoutActive,
		LifetimeEarnings: decimal.Zero, LifetimeCommissions: decimal.Zero,
	}))
	require.NoError(t, store.SaveArtist(ctx, commission.Artist{
		ID: "artist-1", Name: "Velvet Era", Tier: commission.TierGold,
	}))
	require.NoError(t, store.SaveDiscovery(ctx, commission.Discovery{
		ScoutID: "scout-1", ArtistID: "artist-1",
		Status:     commission.DiscoveryConverted,
		Conversion: commission.ConvertedAt(time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC), false),
	}))

	handler := NewHandler(store, settlement.LogProcessor{})
	scheduler := NewSettlementScheduler(store, handler)
	scheduler.now = func() time.Time { return at }
	return scheduler, store
}

// =============================================================================
// SCHEDULER TESTS
// =============================================================================

func TestScheduler_SettlesPreviousMonth(t *testing.T) {
	// GIVEN: The clock reads March 31, the day after a 28-day February
	// WHEN: The scheduler runs
	// THEN: February is aggregated and settled; March, still open, is
	//       left alone

	scheduler, store := newTestScheduler(t, time.Date(2026, time.March, 31, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	scheduler.RunNow()

	run, err := store.CompletedRun(ctx, "2026-02")
	require.NoError(t, err)
	require.NotNil(t, run, "previous month must have a completed run")
	assert.Equal(t, 1, run.PayoutCount)

	current, err := store.CompletedRun(ctx, "2026-03")
	require.NoError(t, err)
	assert.Nil(t, current, "the month in progress must not be settled")

	recs, err := store.ByScout(ctx, "scout-1", "2026-03")
	require.NoError(t, err)
	assert.Empty(t, recs, "no ledger rows may be created for the open month")

	recs, err = store.ByScout(ctx, "scout-1", "2026-02")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, commission.CommissionPaid, recs[0].Status)
}

func TestScheduler_SkipsSettledPeriod(t *testing.T) {
	// GIVEN: A run already settled the previous month
	// WHEN: The scheduler fires again
	// THEN: Nothing is re-paid; lifetime counters stay at one payout

	scheduler, store := newTestScheduler(t, time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	scheduler.RunNow()
	scheduler.RunNow()

	scout, err := store.Scout(ctx, "scout-1")
	require.NoError(t, err)
	// GOLD at the early rate: 20 * 0.20, credited exactly once.
	assert.True(t, scout.LifetimeEarnings.Equal(decimal.NewFromFloat(4.00)),
		"lifetime earnings = %s, want 4.00", scout.LifetimeEarnings)
}
