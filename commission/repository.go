/*
repository.go - Persistence interfaces for the commission engine

PURPOSE:
  Defines the interface between domain logic and the datastore. The
  calculator and bonus detector take the narrow repositories so they can
  be unit-tested against in-memory fakes; the batch jobs take Store, the
  aggregate of all repositories plus transactional support.

UNIQUENESS CONTRACT:
  CommissionRepository.Insert MUST enforce uniqueness of
  (scout_id, artist_id, period) as a hard storage-level constraint and
  return ErrDuplicateCommission on violation. An application-level
  pre-check alone is a race under overlapping batch runs.

ATOMICITY CONTRACT:
  WithTx is used by payout settlement for the mark-paid + credit-lifetime
  sequence. Partial completion of that pair is an invariant violation.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite via database/sql
  - store/memory: in-memory, for tests and dev

SEE ALSO:
  - calculator.go, bonus.go: Consumers of the narrow interfaces
  - settlement: Consumer of Store
*/
package commission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// NARROW REPOSITORIES
// =============================================================================

// ScoutRepository provides scout lookup and the lifetime-counter credit.
type ScoutRepository interface {
	// Scout returns the scout or ErrScoutNotFound.
	Scout(ctx context.Context, id ScoutID) (*Scout, error)

	// ActiveScouts returns all scouts with ACTIVE status.
	ActiveScouts(ctx context.Context) ([]Scout, error)

	// CreditLifetime increments the scout's lifetime counters.
	// earnings is the full paid amount (base + bonuses); commissions is
	// the base portion only.
	CreditLifetime(ctx context.Context, id ScoutID, earnings, commissions decimal.Decimal) error
}

// ArtistRepository provides artist lookup and tier-payment history.
type ArtistRepository interface {
	// Artist returns the artist (without payment history) or ErrArtistNotFound.
	Artist(ctx context.Context, id ArtistID) (*Artist, error)

	// PaymentsInPeriod returns the artist's tier-payment events created
	// within the period's calendar month, ordered by CreatedAt ascending.
	PaymentsInPeriod(ctx context.Context, id ArtistID, period Period) ([]TierPayment, error)
}

// ReferralRepository provides the referral graph: artist discoveries and
// the scout's downstream listener network.
type ReferralRepository interface {
	// Discovery returns the discovery for the pair, or (nil, nil) when
	// none exists. A missing discovery is an expected non-error outcome.
	Discovery(ctx context.Context, scoutID ScoutID, artistID ArtistID) (*Discovery, error)

	// DiscoveriesByScout returns all discoveries made by the scout.
	DiscoveriesByScout(ctx context.Context, scoutID ScoutID) ([]Discovery, error)

	// ListenerReferrals returns the scout's referred listeners.
	ListenerReferrals(ctx context.Context, scoutID ScoutID) ([]ListenerReferral, error)
}

// PlaybackRepository answers the single question influence-bonus
// detection needs: did any of these listeners play this artist before
// the cutoff?
type PlaybackRepository interface {
	AnyPlaybackBefore(ctx context.Context, listenerIDs []ListenerID, artistID ArtistID, before time.Time) (bool, error)
}

// CommissionRepository is the ledger. Rows are inserted once and only
// ever transition PENDING -> PAID or PENDING -> FAILED.
type CommissionRepository interface {
	// Insert persists a new PENDING row. Returns ErrDuplicateCommission
	// when a row for (scout, artist, period) already exists; the
	// constraint is enforced by the storage layer.
	Insert(ctx context.Context, rec CommissionRecord) error

	// PendingByPeriod returns all PENDING rows for the period.
	PendingByPeriod(ctx context.Context, period string) ([]CommissionRecord, error)

	// ByScout returns the scout's rows, optionally filtered by period
	// (empty period means all), ordered by period then artist.
	ByScout(ctx context.Context, scoutID ScoutID, period string) ([]CommissionRecord, error)

	// MarkPaid transitions the scout's PENDING rows for the period to PAID.
	MarkPaid(ctx context.Context, scoutID ScoutID, period string, paidAt time.Time) error

	// MarkFailed transitions the scout's PENDING rows for the period to
	// FAILED, recording the failure reason.
	MarkFailed(ctx context.Context, scoutID ScoutID, period string, reason string) error
}

// RunRepository records settlement batch invocations for audit.
type RunRepository interface {
	SaveRun(ctx context.Context, run SettlementRun) error

	// CompletedRun returns the most recent completed run for the period,
	// or (nil, nil) when the period has never been settled.
	CompletedRun(ctx context.Context, period string) (*SettlementRun, error)
}

// =============================================================================
// STORE - Everything the batch jobs need, plus transactions
// =============================================================================

// Store aggregates all repositories with transactional support.
type Store interface {
	ScoutRepository
	ArtistRepository
	ReferralRepository
	PlaybackRepository
	CommissionRepository
	RunRepository

	// WithTx executes fn atomically. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
