/*
Package seed loads a demo dataset for local development.

PURPOSE:
  Gives a freshly started server something to show: a handful of
  scouts, converted artists across the rate tiers, and the referral
  graph needed to trigger both bonuses. Running the monthly
  aggregation against this data produces a mix of prepurchase, early
  and residual commissions.

The dataset is anchored to the current month so the demo stays alive:
conversion dates are expressed as offsets from now.

SEE ALSO:
  - cmd/server: applies the seed behind the -seed flag
*/
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
)

// Target is the subset of the stores the seeder writes through.
// Both store/memory and store/sqlite satisfy it.
type Target interface {
	SaveScout(ctx context.Context, scout commission.Scout) error
	SaveArtist(ctx context.Context, artist commission.Artist) error
	SaveDiscovery(ctx context.Context, d commission.Discovery) error
	AddListenerReferral(ctx context.Context, r commission.ListenerReferral) error
	AddPlayback(ctx context.Context, p commission.Playback) error
}

// Demo populates t with the demo dataset. Safe to call on a store that
// was already seeded: saves are upserts.
func Demo(ctx context.Context, t Target) error {
	now := time.Now().UTC()

	scouts := []commission.Scout{
		{ID: "scout-ana", Name: "Ana Reyes", Status: commission.ScoutActive,
			LifetimeEarnings: decimal.Zero, LifetimeCommissions: decimal.Zero},
		{ID: "scout-ben", Name: "Ben Okafor", Status: commission.ScoutActive,
			LifetimeEarnings: decimal.Zero, LifetimeCommissions: decimal.Zero},
		{ID: "scout-cleo", Name: "Cleo Marchetti", Status: commission.ScoutInactive,
			LifetimeEarnings: decimal.Zero, LifetimeCommissions: decimal.Zero},
	}
	for _, sc := range scouts {
		if err := t.SaveScout(ctx, sc); err != nil {
			return fmt.Errorf("seed scout: %w", err)
		}
	}

	// Upgrade early this month, two payments in the month, net price
	// increase: qualifies for the upgrade bonus.
	upgradeAt := time.Date(now.Year(), now.Month(), 1, 10, 0, 0, 0, time.UTC).AddDate(0, 0, 4)
	thisPeriod := commission.PeriodOf(now).Token()

	artists := []commission.Artist{
		{
			ID: "artist-velvet-era", Name: "Velvet Era", Tier: commission.TierGold,
			LastUpgradeAt: &upgradeAt,
			Payments: []commission.TierPayment{
				{Tier: commission.TierSilver, Period: thisPeriod, CreatedAt: upgradeAt.AddDate(0, 0, -3)},
				{Tier: commission.TierGold, Period: thisPeriod, CreatedAt: upgradeAt},
			},
		},
		{ID: "artist-north-hollow", Name: "North Hollow", Tier: commission.TierSilver},
		{ID: "artist-mara-lin", Name: "Mara Lin", Tier: commission.TierBronze},
		{ID: "artist-the-fallows", Name: "The Fallows", Tier: commission.TierFree},
		{ID: "artist-glass-river", Name: "Glass River", Tier: commission.TierPlatinum},
	}
	for _, a := range artists {
		if err := t.SaveArtist(ctx, a); err != nil {
			return fmt.Errorf("seed artist: %w", err)
		}
	}

	discoveries := []commission.Discovery{
		// Converted this month: early-window rate plus the upgrade bonus.
		{ScoutID: "scout-ana", ArtistID: "artist-velvet-era",
			Status:     commission.DiscoveryConverted,
			Conversion: commission.ConvertedAt(upgradeAt, false)},
		// Converted 8 months back: residual rate.
		{ScoutID: "scout-ana", ArtistID: "artist-north-hollow",
			Status:     commission.DiscoveryConverted,
			Conversion: commission.ConvertedAt(now.AddDate(0, -8, 0), false)},
		// Prepurchase referral: premium rate regardless of age.
		{ScoutID: "scout-ben", ArtistID: "artist-glass-river",
			Status:     commission.DiscoveryConverted,
			Conversion: commission.ConvertedAt(now.AddDate(0, -14, 0), true)},
		// Converted last month: early-window rate.
		{ScoutID: "scout-ben", ArtistID: "artist-mara-lin",
			Status:     commission.DiscoveryConverted,
			Conversion: commission.ConvertedAt(now.AddDate(0, -1, 0), false)},
		// Still on the free tier: no commission until they upgrade.
		{ScoutID: "scout-ana", ArtistID: "artist-the-fallows",
			Status:     commission.DiscoveryPending,
			Conversion: commission.NotConverted()},
	}
	for _, d := range discoveries {
		if err := t.SaveDiscovery(ctx, d); err != nil {
			return fmt.Errorf("seed discovery: %w", err)
		}
	}

	// Ana referred listeners who played Velvet Era before the upgrade:
	// triggers the influence bonus on that commission.
	referrals := []commission.ListenerReferral{
		{ScoutID: "scout-ana", ListenerID: "listener-001"},
		{ScoutID: "scout-ana", ListenerID: "listener-002"},
		{ScoutID: "scout-ben", ListenerID: "listener-101"},
	}
	for _, r := range referrals {
		if err := t.AddListenerReferral(ctx, r); err != nil {
			return fmt.Errorf("seed listener referral: %w", err)
		}
	}

	playbacks := []commission.Playback{
		{ListenerID: "listener-001", ArtistID: "artist-velvet-era", PlayedAt: upgradeAt.AddDate(0, 0, -10)},
		{ListenerID: "listener-002", ArtistID: "artist-velvet-era", PlayedAt: upgradeAt.AddDate(0, 0, -2)},
		// After the upgrade: doesn't count toward influence.
		{ListenerID: "listener-101", ArtistID: "artist-glass-river", PlayedAt: now},
	}
	for _, p := range playbacks {
		if err := t.AddPlayback(ctx, p); err != nil {
			return fmt.Errorf("seed playback: %w", err)
		}
	}

	return nil
}
