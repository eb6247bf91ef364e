/*
bonus.go - Bonus detection heuristics

PURPOSE:
  Two independent, order-insensitive predicates evaluated per
  (scout, artist, period):

  UPGRADE BONUS ($10 flat):
    The artist raised their tier within the target period. Detected by:
    1. Last-upgrade timestamp falls inside the period's calendar month
    2. At least two tier-payment events recorded in that period
    3. The LAST event's tier price is strictly greater than the FIRST's

    With three or more tier changes in one period only the net
    first-vs-last movement counts; the intermediate trajectory is
    ignored. An upgrade-then-downgrade nets to no bonus.

  INFLUENCE BONUS ($2 flat):
    The scout's referred listener network engaged with the artist before
    the artist upgraded. Detected by:
    1. The scout has at least one referred listener
    2. The artist has a recorded last-upgrade timestamp
    3. Some referred listener played the artist strictly BEFORE that upgrade

    This is a boolean signal, not a count-scaled reward: one qualifying
    playback pays the same as a thousand.

SEE ALSO:
  - calculator.go: Evaluates both predicates per calculation
*/
package commission

import (
	"context"

	"github.com/shopspring/decimal"
)

// Flat bonus amounts.
var (
	UpgradeBonusAmount   = decimal.NewFromInt(10)
	InfluenceBonusAmount = decimal.NewFromInt(2)
)

// BonusDetector evaluates the two bonus predicates against the
// repositories.
type BonusDetector struct {
	Artists   ArtistRepository
	Referrals ReferralRepository
	Playbacks PlaybackRepository
}

// UpgradeBonus reports whether the artist earned the scout an upgrade
// bonus in the given period.
func (d *BonusDetector) UpgradeBonus(ctx context.Context, artist *Artist, period Period) (bool, error) {
	if artist.LastUpgradeAt == nil || !period.Contains(*artist.LastUpgradeAt) {
		return false, nil
	}

	payments, err := d.Artists.PaymentsInPeriod(ctx, artist.ID, period)
	if err != nil {
		return false, err
	}
	// Two payment events are the minimum evidence of a tier change;
	// an upgrade timestamp alone is not enough.
	if len(payments) < 2 {
		return false, nil
	}

	first := payments[0]
	last := payments[len(payments)-1]
	return last.Tier.Price().GreaterThan(first.Tier.Price()), nil
}

// InfluenceBonus reports whether the scout's listener network played the
// artist before the artist's last upgrade.
func (d *BonusDetector) InfluenceBonus(ctx context.Context, scoutID ScoutID, artist *Artist) (bool, error) {
	if artist.LastUpgradeAt == nil {
		return false, nil
	}

	referrals, err := d.Referrals.ListenerReferrals(ctx, scoutID)
	if err != nil {
		return false, err
	}
	if len(referrals) == 0 {
		return false, nil
	}

	listenerIDs := make([]ListenerID, len(referrals))
	for i, r := range referrals {
		listenerIDs[i] = r.ListenerID
	}

	return d.Playbacks.AnyPlaybackBefore(ctx, listenerIDs, artist.ID, *artist.LastUpgradeAt)
}
