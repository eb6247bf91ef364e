package settlement

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/newmusiclives/scout-commissions/commission"
)

// =============================================================================
// PAYMENT PROCESSOR - External collaborator, consumed not designed
// =============================================================================

// PaymentProcessor hands a payout amount to the external payment service.
// The engine only cares about success or failure; retries, currency and
// rails belong to the implementation.
type PaymentProcessor interface {
	Pay(ctx context.Context, scoutID commission.ScoutID, amount decimal.Decimal) error
}

// LogProcessor is a stand-in processor that logs the handoff and
// succeeds. Used in dev and demo setups where no real processor exists.
type LogProcessor struct{}

func (LogProcessor) Pay(_ context.Context, scoutID commission.ScoutID, amount decimal.Decimal) error {
	log.Printf("[Payments] paid %s to scout %s", amount.StringFixed(2), scoutID)
	return nil
}
