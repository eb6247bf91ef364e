/*
Package commission implements the referral-commission calculation engine.

PURPOSE:
  This package contains the domain types and pure calculation logic for
  scout commissions: the period clock, the rate policy, the bonus
  detectors, and the per-(scout, artist, period) calculator. Batch
  orchestration lives in the settlement package; persistence lives under
  store/.

KEY CONCEPTS IN THIS FILE (types.go):
  - Scout: a promoter who refers artists and earns recurring commission
  - Artist: a referred participant on an airplay tier with a payment history
  - Discovery: the (scout, artist) referral relationship
  - Conversion: tagged variant - either NotConverted or Converted{at, prepurchase}
  - CommissionRecord: one immutable ledger row per (scout, artist, period)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all money amounts and rates
  2. Type Safety: Strong typing for IDs prevents mixing scout/artist/listener IDs
  3. No invalid states: Conversion cannot be "converted without a timestamp"
  4. Auditability: Every ledger row itemizes rate, elapsed months, and bonuses

SEE ALSO:
  - period.go: Period parsing and anniversary-based month arithmetic
  - rate.go: The time-decaying commission rate policy
  - bonus.go: Upgrade and influence bonus detection
  - calculator.go: Composes the above into an itemized result
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ScoutID string
type ArtistID string
type ListenerID string

// =============================================================================
// SCOUT - The promoter earning commissions
// =============================================================================

type ScoutStatus string

const (
	ScoutActive   ScoutStatus = "ACTIVE"
	ScoutInactive ScoutStatus = "INACTIVE"
)

// Scout is the commission payee. Lifetime counters are mutated only by
// payout settlement; everything else is externally managed account data.
type Scout struct {
	ID     ScoutID
	Name   string
	Status ScoutStatus

	// LifetimeEarnings is the cumulative amount ever paid out (base + bonuses).
	LifetimeEarnings decimal.Decimal

	// LifetimeCommissions is the cumulative base commission paid out,
	// excluding bonuses.
	LifetimeCommissions decimal.Decimal
}

func (s *Scout) IsActive() bool { return s.Status == ScoutActive }

// =============================================================================
// AIRPLAY TIERS - Fixed monthly prices
// =============================================================================

type Tier string

const (
	TierFree     Tier = "FREE"
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

var tierPrices = map[Tier]decimal.Decimal{
	TierFree:     decimal.Zero,
	TierBronze:   decimal.NewFromInt(5),
	TierSilver:   decimal.NewFromInt(10),
	TierGold:     decimal.NewFromInt(20),
	TierPlatinum: decimal.NewFromInt(50),
}

// Price returns the fixed monthly price for the tier.
// Unknown tiers price as zero and are treated like the free tier.
func (t Tier) Price() decimal.Decimal {
	if p, ok := tierPrices[t]; ok {
		return p
	}
	return decimal.Zero
}

func (t Tier) IsFree() bool { return t.Price().IsZero() }

func (t Tier) Valid() bool {
	_, ok := tierPrices[t]
	return ok
}

// =============================================================================
// ARTIST - Referred participant with tier payment history
// =============================================================================

// TierPayment is one recorded tier payment event for an artist.
type TierPayment struct {
	Tier      Tier
	Period    string // "YYYY-MM" token of the billed period
	CreatedAt time.Time
}

type Artist struct {
	ID   ArtistID
	Name string
	Tier Tier

	// LastUpgradeAt is nil for artists that never upgraded.
	LastUpgradeAt *time.Time

	// Payments is the ordered tier-payment history (ascending CreatedAt).
	Payments []TierPayment
}

// =============================================================================
// DISCOVERY - The referral relationship (scout -> artist)
// =============================================================================

type DiscoveryStatus string

const (
	DiscoveryPending   DiscoveryStatus = "PENDING"
	DiscoveryConverted DiscoveryStatus = "CONVERTED"
	DiscoveryExpired   DiscoveryStatus = "EXPIRED"
)

// Conversion is a tagged variant: either the discovery has not converted,
// or it converted at a known time with a known prepurchase flag. The
// invalid state "converted with no timestamp" cannot be represented.
type Conversion struct {
	converted   bool
	at          time.Time
	prepurchase bool
}

// NotConverted returns the zero conversion state.
func NotConverted() Conversion { return Conversion{} }

// ConvertedAt returns a conversion that happened at the given time.
// prepurchase locks the flat lifetime commission rate.
func ConvertedAt(at time.Time, prepurchase bool) Conversion {
	return Conversion{converted: true, at: at, prepurchase: prepurchase}
}

func (c Conversion) Converted() bool   { return c.converted }
func (c Conversion) Prepurchase() bool { return c.converted && c.prepurchase }

// At returns the conversion time. Only meaningful when Converted() is true.
func (c Conversion) At() time.Time { return c.at }

// Discovery is keyed uniquely by (ScoutID, ArtistID).
type Discovery struct {
	ScoutID    ScoutID
	ArtistID   ArtistID
	Status     DiscoveryStatus
	Conversion Conversion
}

// Commissionable reports whether this discovery can produce a commission:
// lifecycle status CONVERTED and a recorded conversion.
func (d Discovery) Commissionable() bool {
	return d.Status == DiscoveryConverted && d.Conversion.Converted()
}

// =============================================================================
// LISTENER NETWORK - Used only for influence-bonus detection
// =============================================================================

// ListenerReferral links a scout to a listener in their downstream network.
type ListenerReferral struct {
	ScoutID    ScoutID
	ListenerID ListenerID
}

// Playback records a listener playing an artist's content.
type Playback struct {
	ListenerID ListenerID
	ArtistID   ArtistID
	PlayedAt   time.Time
}

// =============================================================================
// COMMISSION RECORD - The durable ledger row
// =============================================================================

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "PENDING"
	CommissionPaid    CommissionStatus = "PAID"
	CommissionFailed  CommissionStatus = "FAILED"
)

// CommissionRecord is one ledger row, uniquely keyed by
// (ScoutID, ArtistID, Period). Rows are created PENDING by the monthly
// aggregator and transitioned to PAID or FAILED by payout settlement.
// No row is ever deleted or recomputed once created.
type CommissionRecord struct {
	ID       string
	ScoutID  ScoutID
	ArtistID ArtistID
	Period   string // "YYYY-MM"

	// Snapshot of the artist's billing state at computation time.
	Tier          Tier
	PaymentAmount decimal.Decimal

	// Itemized calculation, kept for audit.
	Rate           decimal.Decimal
	BaseAmount     decimal.Decimal
	UpgradeBonus   bool
	InfluenceBonus bool
	BonusAmount    decimal.Decimal
	TotalAmount    decimal.Decimal
	MonthsElapsed  int

	Status        CommissionStatus
	FailureReason string
	PaidAt        *time.Time
	CreatedAt     time.Time
}

// =============================================================================
// SETTLEMENT RUN - Audit record for one settlement batch invocation
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SettlementRun records one invocation of the payout settlement batch,
// mirroring the batch summary for later inspection.
type SettlementRun struct {
	ID          string
	Period      string
	Status      RunStatus
	TotalPaid   decimal.Decimal
	PayoutCount int
	FailedCount int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}
