/*
scheduler.go - Automated monthly settlement scheduler

PURPOSE:
  Periodically checks whether the previous calendar month has been
  settled and, if not, runs the aggregation and payout for it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Targets the previous period (the month that just closed)
  - Skips periods with a completed settlement run on record
  - Aggregation is idempotent, so a crash between aggregate and
    settle is recovered on the next tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSettlementScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerAggregate/TriggerSettle (manual runs)
  - settlement: Aggregator and Settler
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/newmusiclives/scout-commissions/commission"
)

// SettlementScheduler runs the monthly aggregate-then-settle cycle.
type SettlementScheduler struct {
	Store         commission.Store
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	now func() time.Time // overridable in tests
}

// NewSettlementScheduler creates a new scheduler.
func NewSettlementScheduler(store commission.Store, handler *Handler) *SettlementScheduler {
	return &SettlementScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the scheduler.
func (ss *SettlementScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SettlementScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SettlementScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.checkAndProcess()

	for {
		select {
		case <-ss.ticker.C:
			ss.checkAndProcess()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SettlementScheduler) checkAndProcess() {
	ctx := context.Background()

	// The month that just closed. Prev anchors at the month start, so a
	// month-end clock never targets the month still in progress.
	period := commission.PeriodOf(ss.now()).Prev()

	run, err := ss.Store.CompletedRun(ctx, period.Token())
	if err != nil {
		log.Printf("[Scheduler] Error checking settlement run for %s: %v", period.Token(), err)
		return
	}
	if run != nil {
		return
	}

	log.Printf("[Scheduler] Settling period %s", period.Token())

	agg, err := ss.Handler.Aggregator.RunMonthly(ctx, period)
	if err != nil {
		log.Printf("[Scheduler] Aggregation failed for %s: %v", period.Token(), err)
		return
	}

	settle, err := ss.Handler.Settler.Settle(ctx, period)
	if err != nil {
		log.Printf("[Scheduler] Settlement failed for %s: %v", period.Token(), err)
		return
	}

	log.Printf("[Scheduler] Completed %s: %d new commissions, %d paid, %d failed, total %s",
		period.Token(), agg.RecordCount, settle.PayoutCount, settle.FailedCount, settle.TotalPaid)
}

// RunNow triggers an immediate check (for testing/admin).
func (ss *SettlementScheduler) RunNow() {
	ss.checkAndProcess()
}
