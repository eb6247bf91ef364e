/*
calculator.go - Per-(scout, artist, period) commission calculation

PURPOSE:
  Composes the rate policy and the bonus detectors into one fully
  itemized calculation. This is the read side: it has no side effects
  and persists nothing. The settlement.Aggregator materializes its
  output as ledger rows.

NULL CONDITIONS (normal outcomes, not errors):
  - No discovery exists for the (scout, artist) pair
  - The discovery has not converted
  - The artist is on the free tier

CALCULATION:
  price  = artist tier's fixed monthly price
  months = MonthsElapsed(conversion time, period start)
  rate   = Rate(prepurchase, months)
  base   = price * rate
  bonus  = (upgrade ? $10 : 0) + (influence ? $2 : 0)
  total  = base + bonus

SEE ALSO:
  - rate.go, bonus.go: The composed pieces
  - settlement/aggregator.go: Durable materialization
*/
package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Result is one fully itemized commission calculation. The rate and
// elapsed-months inputs are included for auditability.
type Result struct {
	ScoutID  ScoutID
	ArtistID ArtistID
	Period   string

	Tier          Tier
	PaymentAmount decimal.Decimal

	Rate          decimal.Decimal
	MonthsElapsed int
	Prepurchase   bool
	BaseAmount    decimal.Decimal

	UpgradeBonus   bool
	InfluenceBonus bool
	BonusAmount    decimal.Decimal

	TotalAmount decimal.Decimal
}

// ToRecord converts the calculation into a PENDING ledger row.
func (r *Result) ToRecord(id string, now time.Time) CommissionRecord {
	return CommissionRecord{
		ID:             id,
		ScoutID:        r.ScoutID,
		ArtistID:       r.ArtistID,
		Period:         r.Period,
		Tier:           r.Tier,
		PaymentAmount:  r.PaymentAmount,
		Rate:           r.Rate,
		BaseAmount:     r.BaseAmount,
		UpgradeBonus:   r.UpgradeBonus,
		InfluenceBonus: r.InfluenceBonus,
		BonusAmount:    r.BonusAmount,
		TotalAmount:    r.TotalAmount,
		MonthsElapsed:  r.MonthsElapsed,
		Status:         CommissionPending,
		CreatedAt:      now.UTC(),
	}
}

// Calculator computes commissions for a single (scout, artist, period)
// triple. It is safe for concurrent use.
type Calculator struct {
	Artists   ArtistRepository
	Referrals ReferralRepository
	Detector  *BonusDetector
}

// NewCalculator wires a calculator and its bonus detector from the
// narrow repositories.
func NewCalculator(artists ArtistRepository, referrals ReferralRepository, playbacks PlaybackRepository) *Calculator {
	return &Calculator{
		Artists:   artists,
		Referrals: referrals,
		Detector: &BonusDetector{
			Artists:   artists,
			Referrals: referrals,
			Playbacks: playbacks,
		},
	}
}

// Calculate returns the itemized commission for the triple, or
// (nil, nil) when no commission applies.
func (c *Calculator) Calculate(ctx context.Context, scoutID ScoutID, artistID ArtistID, period Period) (*Result, error) {
	discovery, err := c.Referrals.Discovery(ctx, scoutID, artistID)
	if err != nil {
		return nil, fmt.Errorf("load discovery %s/%s: %w", scoutID, artistID, err)
	}
	if discovery == nil || !discovery.Conversion.Converted() {
		return nil, nil
	}

	artist, err := c.Artists.Artist(ctx, artistID)
	if err != nil {
		// A converted discovery pointing at a missing artist is a data
		// error, not an inapplicability.
		return nil, fmt.Errorf("load artist %s: %w", artistID, err)
	}
	if artist.Tier.IsFree() {
		return nil, nil
	}

	price := artist.Tier.Price()
	months := MonthsElapsed(discovery.Conversion.At(), period.Start())
	rate := Rate(discovery.Conversion.Prepurchase(), months)
	base := price.Mul(rate)

	upgrade, err := c.Detector.UpgradeBonus(ctx, artist, period)
	if err != nil {
		return nil, fmt.Errorf("detect upgrade bonus for %s: %w", artistID, err)
	}
	influence, err := c.Detector.InfluenceBonus(ctx, scoutID, artist)
	if err != nil {
		return nil, fmt.Errorf("detect influence bonus for %s/%s: %w", scoutID, artistID, err)
	}

	bonus := decimal.Zero
	if upgrade {
		bonus = bonus.Add(UpgradeBonusAmount)
	}
	if influence {
		bonus = bonus.Add(InfluenceBonusAmount)
	}

	return &Result{
		ScoutID:        scoutID,
		ArtistID:       artistID,
		Period:         period.Token(),
		Tier:           artist.Tier,
		PaymentAmount:  price,
		Rate:           rate,
		MonthsElapsed:  months,
		Prepurchase:    discovery.Conversion.Prepurchase(),
		BaseAmount:     base,
		UpgradeBonus:   upgrade,
		InfluenceBonus: influence,
		BonusAmount:    bonus,
		TotalAmount:    base.Add(bonus),
	}, nil
}
