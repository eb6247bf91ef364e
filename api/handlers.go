/*
handlers.go - HTTP API handlers for the commission system

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Scouts:
    GET  /api/scouts/{id}/commissions/{artistID}?period=YYYY-MM
         Calculate one commission (preview, nothing persisted)
    GET  /api/scouts/{id}/commissions?period=YYYY-MM
         Calculate all of a scout's commissions for a period
    GET  /api/scouts/{id}/summary?period=YYYY-MM
         Ledger history grouped by period (period optional)
    GET  /api/scouts/{id}/lifetime
         Lifetime earnings

  Admin:
    POST /api/admin/aggregate      Materialize a period's ledger rows
    POST /api/admin/settle         Pay out a period's pending rows
    GET  /api/admin/runs/{period}  Last completed settlement run

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (calculator, aggregator, settler)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid period token
  - 404: Scout or artist not found
  - 500: Internal errors

  A settlement batch with individual payout failures is still a 200:
  per-scout outcomes are reported in the response body.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - settlement: The domain operations these wrap
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newmusiclives/scout-commissions/commission"
	"github.com/newmusiclives/scout-commissions/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      commission.Store
	Calc       *commission.Calculator
	Queries    *settlement.Queries
	Aggregator *settlement.Aggregator
	Settler    *settlement.Settler
}

// NewHandler creates a handler wired to the given store and payment
// processor.
func NewHandler(store commission.Store, processor settlement.PaymentProcessor) *Handler {
	return &Handler{
		Store:      store,
		Calc:       commission.NewCalculator(store, store, store),
		Queries:    settlement.NewQueries(store),
		Aggregator: settlement.NewAggregator(store),
		Settler:    settlement.NewSettler(store, processor),
	}
}

// =============================================================================
// SCOUT HANDLERS
// =============================================================================

// GetCommission calculates a single scout/artist commission for a period.
// Nothing is persisted.
// GET /api/scouts/{id}/commissions/{artistID}?period=YYYY-MM
func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	scoutID := commission.ScoutID(chi.URLParam(r, "id"))
	artistID := commission.ArtistID(chi.URLParam(r, "artistID"))

	period, err := commission.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	res, err := h.Calc.Calculate(r.Context(), scoutID, artistID, period)
	if err != nil {
		writeDomainError(w, "Failed to calculate commission", err)
		return
	}
	if res == nil {
		// No converted referral, or a free-tier artist: zero commission.
		writeJSON(w, http.StatusOK, CommissionDTO{
			ScoutID:  string(scoutID),
			ArtistID: string(artistID),
			Period:   period.Token(),
		})
		return
	}

	writeJSON(w, http.StatusOK, toCommissionDTO(*res))
}

// ListCommissions calculates all of a scout's commissions for a period.
// GET /api/scouts/{id}/commissions?period=YYYY-MM
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	scoutID := commission.ScoutID(chi.URLParam(r, "id"))

	period, err := commission.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	totals, err := h.Queries.AllScoutCommissions(r.Context(), scoutID, period)
	if err != nil {
		writeDomainError(w, "Failed to calculate commissions", err)
		return
	}

	writeJSON(w, http.StatusOK, toScoutCommissionsDTO(totals))
}

// GetSummary returns the scout's ledger history grouped by period.
// GET /api/scouts/{id}/summary?period=YYYY-MM (period optional)
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	scoutID := commission.ScoutID(chi.URLParam(r, "id"))

	token := r.URL.Query().Get("period")
	if token != "" {
		if _, err := commission.ParsePeriod(token); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period", err)
			return
		}
	}

	summary, err := h.Queries.Summary(r.Context(), scoutID, token)
	if err != nil {
		writeDomainError(w, "Failed to load summary", err)
		return
	}

	writeJSON(w, http.StatusOK, toScoutSummaryDTO(summary))
}

// GetLifetime returns the scout's lifetime earnings.
// GET /api/scouts/{id}/lifetime
func (h *Handler) GetLifetime(w http.ResponseWriter, r *http.Request) {
	scoutID := commission.ScoutID(chi.URLParam(r, "id"))

	lifetime, err := h.Queries.Lifetime(r.Context(), scoutID)
	if err != nil {
		writeDomainError(w, "Failed to load lifetime earnings", err)
		return
	}

	writeJSON(w, http.StatusOK, toLifetimeDTO(lifetime))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerAggregate runs the monthly aggregation for a period. Safe to
// call repeatedly: already-materialized commissions are skipped.
// POST /api/admin/aggregate {"period": "YYYY-MM"}
func (h *Handler) TriggerAggregate(w http.ResponseWriter, r *http.Request) {
	var req AggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := commission.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	summary, err := h.Aggregator.RunMonthly(r.Context(), period)
	if err != nil {
		writeDomainError(w, "Aggregation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toAggregateResponse(summary))
}

// TriggerSettle pays out a period's pending commissions.
// POST /api/admin/settle {"period": "YYYY-MM"}
func (h *Handler) TriggerSettle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := commission.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	summary, err := h.Settler.Settle(r.Context(), period)
	if err != nil {
		writeDomainError(w, "Settlement failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toSettleResponse(summary))
}

// GetRun returns the last completed settlement run for a period.
// GET /api/admin/runs/{period}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "period")
	if _, err := commission.ParsePeriod(token); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	run, err := h.Store.CompletedRun(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settlement run", err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Period has not been settled", nil)
		return
	}

	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, commission.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, message, err)
	case commission.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, commission.ErrDuplicateCommission):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
