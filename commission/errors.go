/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the settlement package wraps
  these with per-scout context.

ERROR CATEGORIES:
  1. Structural/input errors - malformed period tokens, unknown tiers
  2. Not-found errors - missing scout/artist records
  3. Ledger errors - duplicate insert on the (scout, artist, period) key
  4. Payout errors - payment processor failures, isolated per scout

NOTE:
  "Not applicable" outcomes (no discovery, not converted, free tier) are
  NOT errors. The calculator returns a nil result for those; nothing in
  this file represents them.
*/
package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period token is not "YYYY-MM".
	ErrInvalidPeriod = errors.New("invalid period token")

	// ErrScoutNotFound is returned when a referenced scout doesn't exist.
	ErrScoutNotFound = errors.New("scout not found")

	// ErrArtistNotFound is returned when a referenced artist doesn't exist.
	ErrArtistNotFound = errors.New("artist not found")

	// ErrDuplicateCommission is returned when inserting a ledger row whose
	// (scout, artist, period) key already exists. During idempotent
	// re-runs of the monthly aggregator this is expected and means
	// "already processed", not a failure.
	ErrDuplicateCommission = errors.New("commission already exists for scout/artist/period")

	// ErrPaymentFailed is returned when the payment processor rejects or
	// fails a payout handoff.
	ErrPaymentFailed = errors.New("payment processing failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PayoutError captures a per-scout settlement failure. Settlement records
// it on the FAILED ledger rows and continues with the remaining scouts.
type PayoutError struct {
	ScoutID ScoutID
	Amount  decimal.Decimal
	Err     error
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("payout for scout %s (%s) failed: %v", e.ScoutID, e.Amount.StringFixed(2), e.Err)
}

func (e *PayoutError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScoutNotFound) || errors.Is(err, ErrArtistNotFound)
}

// IsAlreadyProcessed returns true if the error is the duplicate-insert
// constraint violation raised by an idempotent re-run.
func IsAlreadyProcessed(err error) bool {
	return errors.Is(err, ErrDuplicateCommission)
}
