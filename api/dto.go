/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the wire as float64 dollars. decimal.Decimal carries
  exact values internally; the conversion happens only at this edge.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - settlement/queries.go: The aggregates these mirror
*/
package api

import (
	"time"

	"github.com/newmusiclives/scout-commissions/commission"
	"github.com/newmusiclives/scout-commissions/settlement"
)

// =============================================================================
// COMMISSION TYPES
// =============================================================================

// CommissionDTO is a single calculated commission in API responses.
type CommissionDTO struct {
	ScoutID        string  `json:"scout_id"`
	ArtistID       string  `json:"artist_id"`
	Period         string  `json:"period"`
	Tier           string  `json:"tier"`
	PaymentAmount  float64 `json:"payment_amount"`
	Rate           float64 `json:"rate"`
	MonthsElapsed  int     `json:"months_elapsed"`
	Prepurchase    bool    `json:"prepurchase"`
	BaseAmount     float64 `json:"base_amount"`
	UpgradeBonus   bool    `json:"upgrade_bonus"`
	InfluenceBonus bool    `json:"influence_bonus"`
	BonusAmount    float64 `json:"bonus_amount"`
	TotalAmount    float64 `json:"total_amount"`
}

func toCommissionDTO(res commission.Result) CommissionDTO {
	return CommissionDTO{
		ScoutID:        string(res.ScoutID),
		ArtistID:       string(res.ArtistID),
		Period:         res.Period,
		Tier:           string(res.Tier),
		PaymentAmount:  res.PaymentAmount.InexactFloat64(),
		Rate:           res.Rate.InexactFloat64(),
		MonthsElapsed:  res.MonthsElapsed,
		Prepurchase:    res.Prepurchase,
		BaseAmount:     res.BaseAmount.InexactFloat64(),
		UpgradeBonus:   res.UpgradeBonus,
		InfluenceBonus: res.InfluenceBonus,
		BonusAmount:    res.BonusAmount.InexactFloat64(),
		TotalAmount:    res.TotalAmount.InexactFloat64(),
	}
}

// ScoutCommissionsDTO is the calculated commissions of one scout for a period.
type ScoutCommissionsDTO struct {
	ScoutID          string          `json:"scout_id"`
	Period           string          `json:"period"`
	TotalCommissions float64         `json:"total_commissions"`
	TotalBonuses     float64         `json:"total_bonuses"`
	TotalAmount      float64         `json:"total_amount"`
	Count            int             `json:"count"`
	Items            []CommissionDTO `json:"items"`
}

func toScoutCommissionsDTO(t *settlement.ScoutPeriodTotals) ScoutCommissionsDTO {
	items := make([]CommissionDTO, len(t.Items))
	for i, it := range t.Items {
		items[i] = toCommissionDTO(it)
	}
	return ScoutCommissionsDTO{
		ScoutID:          string(t.ScoutID),
		Period:           t.Period,
		TotalCommissions: t.TotalCommissions.InexactFloat64(),
		TotalBonuses:     t.TotalBonuses.InexactFloat64(),
		TotalAmount:      t.TotalAmount.InexactFloat64(),
		Count:            t.Count,
		Items:            items,
	}
}

// =============================================================================
// SUMMARY TYPES
// =============================================================================

// PeriodSummaryDTO is one period group in a scout's history.
type PeriodSummaryDTO struct {
	Period       string  `json:"period"`
	TotalBase    float64 `json:"total_base"`
	TotalBonus   float64 `json:"total_bonus"`
	TotalAmount  float64 `json:"total_amount"`
	RecordCount  int     `json:"record_count"`
	PaidCount    int     `json:"paid_count"`
	PendingCount int     `json:"pending_count"`
	FailedCount  int     `json:"failed_count"`
}

// ScoutSummaryDTO is a scout's ledger history grouped by period.
type ScoutSummaryDTO struct {
	ScoutID string             `json:"scout_id"`
	Periods []PeriodSummaryDTO `json:"periods"`
}

func toScoutSummaryDTO(s *settlement.ScoutSummary) ScoutSummaryDTO {
	periods := make([]PeriodSummaryDTO, len(s.Periods))
	for i, p := range s.Periods {
		periods[i] = PeriodSummaryDTO{
			Period:       p.Period,
			TotalBase:    p.TotalBase.InexactFloat64(),
			TotalBonus:   p.TotalBonus.InexactFloat64(),
			TotalAmount:  p.TotalAmount.InexactFloat64(),
			RecordCount:  p.RecordCount,
			PaidCount:    p.PaidCount,
			PendingCount: p.PendingCount,
			FailedCount:  p.FailedCount,
		}
	}
	return ScoutSummaryDTO{ScoutID: string(s.ScoutID), Periods: periods}
}

// LifetimeDTO reports a scout's lifetime earnings.
type LifetimeDTO struct {
	ScoutID             string  `json:"scout_id"`
	LifetimeEarnings    float64 `json:"lifetime_earnings"`
	LifetimeCommissions float64 `json:"lifetime_commissions"`
	PaidAmount          float64 `json:"paid_amount"`
	PendingAmount       float64 `json:"pending_amount"`
	PaidCount           int     `json:"paid_count"`
	PendingCount        int     `json:"pending_count"`
}

func toLifetimeDTO(l *settlement.LifetimeEarnings) LifetimeDTO {
	return LifetimeDTO{
		ScoutID:             string(l.ScoutID),
		LifetimeEarnings:    l.LifetimeEarnings.InexactFloat64(),
		LifetimeCommissions: l.LifetimeCommissions.InexactFloat64(),
		PaidAmount:          l.PaidAmount.InexactFloat64(),
		PendingAmount:       l.PendingAmount.InexactFloat64(),
		PaidCount:           l.PaidCount,
		PendingCount:        l.PendingCount,
	}
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// AggregateRequest asks for the monthly aggregation of a period.
type AggregateRequest struct {
	Period string `json:"period"`
}

// AggregateResponse reports one aggregation run.
type AggregateResponse struct {
	Period           string  `json:"period"`
	TotalCommissions float64 `json:"total_commissions"`
	TotalBonuses     float64 `json:"total_bonuses"`
	TotalAmount      float64 `json:"total_amount"`
	RecordCount      int     `json:"record_count"`
	ScoutCount       int     `json:"scout_count"`
	SkippedCount     int     `json:"skipped_count"`
}

func toAggregateResponse(s *settlement.AggregateSummary) AggregateResponse {
	return AggregateResponse{
		Period:           s.Period,
		TotalCommissions: s.TotalCommissions.InexactFloat64(),
		TotalBonuses:     s.TotalBonuses.InexactFloat64(),
		TotalAmount:      s.TotalAmount.InexactFloat64(),
		RecordCount:      s.RecordCount,
		ScoutCount:       s.ScoutCount,
		SkippedCount:     s.SkippedCount,
	}
}

// SettleRequest asks for the payout settlement of a period.
type SettleRequest struct {
	Period string `json:"period"`
}

// PayoutResultDTO is one scout's outcome within a settlement batch.
type PayoutResultDTO struct {
	ScoutID string  `json:"scout_id"`
	Amount  float64 `json:"amount"`
	Status  string  `json:"status"`
	Error   string  `json:"error,omitempty"`
}

// SettleResponse reports one settlement batch.
type SettleResponse struct {
	Period      string            `json:"period"`
	TotalPaid   float64           `json:"total_paid"`
	PayoutCount int               `json:"payout_count"`
	FailedCount int               `json:"failed_count"`
	Results     []PayoutResultDTO `json:"results"`
}

func toSettleResponse(s *settlement.SettlementSummary) SettleResponse {
	results := make([]PayoutResultDTO, len(s.Results))
	for i, res := range s.Results {
		results[i] = PayoutResultDTO{
			ScoutID: string(res.ScoutID),
			Amount:  res.Amount.InexactFloat64(),
			Status:  string(res.Status),
			Error:   res.Error,
		}
	}
	return SettleResponse{
		Period:      s.Period,
		TotalPaid:   s.TotalPaid.InexactFloat64(),
		PayoutCount: s.PayoutCount,
		FailedCount: s.FailedCount,
		Results:     results,
	}
}

// RunDTO is a settlement audit record.
type RunDTO struct {
	ID          string  `json:"id"`
	Period      string  `json:"period"`
	Status      string  `json:"status"`
	TotalPaid   float64 `json:"total_paid"`
	PayoutCount int     `json:"payout_count"`
	FailedCount int     `json:"failed_count"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	CompletedAt string  `json:"completed_at,omitempty"`
}

func toRunDTO(run *commission.SettlementRun) RunDTO {
	dto := RunDTO{
		ID:          run.ID,
		Period:      run.Period,
		Status:      string(run.Status),
		TotalPaid:   run.TotalPaid.InexactFloat64(),
		PayoutCount: run.PayoutCount,
		FailedCount: run.FailedCount,
		Error:       run.Error,
		StartedAt:   run.StartedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
