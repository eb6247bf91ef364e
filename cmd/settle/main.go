/*
main.go - Batch settlement CLI

PURPOSE:
  Runs the monthly aggregation and payout settlement for a range of
  periods against a SQLite database, without going through the HTTP
  API. Useful for backfilling history and for operating without the
  server's scheduler.

COMMAND-LINE FLAGS:
  -db       SQLite database path (default: commissions.db)
  -from     First period to process, YYYY-MM (default: previous month)
  -to       Last period to process, YYYY-MM (default: same as -from)
  -dry-run  Aggregate only, skip payouts
  -force    Re-settle periods that already have a completed run

Both aggregation and settlement are idempotent, so re-running a range
is safe: existing ledger rows are skipped and paid rows stay paid.

EXAMPLES:
  # Settle last month
  ./settle -db="./data/commissions.db"

  # Backfill a year
  ./settle -from=2025-01 -to=2025-12

  # Preview without paying
  ./settle -from=2025-06 -dry-run

SEE ALSO:
  - settlement/aggregator.go: RunMonthly
  - settlement/payout.go: Settle
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/newmusiclives/scout-commissions/commission"
	"github.com/newmusiclives/scout-commissions/settlement"
	"github.com/newmusiclives/scout-commissions/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "commissions.db", "SQLite database path")
	from := flag.String("from", "", "first period to process (YYYY-MM), default previous month")
	to := flag.String("to", "", "last period to process (YYYY-MM), default same as -from")
	dryRun := flag.Bool("dry-run", false, "aggregate only, skip payouts")
	force := flag.Bool("force", false, "re-settle periods with a completed run")
	flag.Parse()

	periods, err := resolvePeriods(*from, *to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid period range: %v\n", err)
		os.Exit(1)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	aggregator := settlement.NewAggregator(store)
	settler := settlement.NewSettler(store, settlement.LogProcessor{})

	ctx := context.Background()

	bar := progressbar.NewOptions(len(periods),
		progressbar.OptionSetDescription("Settling periods"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	settled, skipped, failed := 0, 0, 0
	payoutFailures := 0

	for _, period := range periods {
		if !*force {
			run, err := store.CompletedRun(ctx, period.Token())
			if err != nil {
				log.Fatalf("Failed to check settlement run for %s: %v", period.Token(), err)
			}
			if run != nil {
				skipped++
				bar.Add(1)
				continue
			}
		}

		agg, err := aggregator.RunMonthly(ctx, period)
		if err != nil {
			log.Printf("Aggregation failed for %s: %v", period.Token(), err)
			failed++
			bar.Add(1)
			continue
		}

		if *dryRun {
			fmt.Printf("%s  %d new commissions, total %s (dry run, not settled)\n",
				period.Token(), agg.RecordCount, agg.TotalAmount.StringFixed(2))
			bar.Add(1)
			continue
		}

		sum, err := settler.Settle(ctx, period)
		if err != nil {
			log.Printf("Settlement failed for %s: %v", period.Token(), err)
			failed++
			bar.Add(1)
			continue
		}

		fmt.Printf("%s  %d new commissions, %d paid, %d failed, total paid %s\n",
			period.Token(), agg.RecordCount, sum.PayoutCount, sum.FailedCount,
			sum.TotalPaid.StringFixed(2))
		payoutFailures += sum.FailedCount
		settled++
		bar.Add(1)
	}

	fmt.Printf("\nDone: %d settled, %d already settled, %d failed, %d scout payouts failed\n",
		settled, skipped, failed, payoutFailures)
	if failed > 0 || payoutFailures > 0 {
		os.Exit(1)
	}
}

// resolvePeriods expands the -from/-to flags into an inclusive list of
// periods. Empty flags default to the month that just closed.
func resolvePeriods(from, to string) ([]commission.Period, error) {
	if from == "" {
		if to != "" {
			return nil, fmt.Errorf("-to requires -from")
		}
		return []commission.Period{commission.PeriodOf(time.Now().UTC()).Prev()}, nil
	}

	first, err := commission.ParsePeriod(from)
	if err != nil {
		return nil, err
	}

	last := first
	if to != "" {
		last, err = commission.ParsePeriod(to)
		if err != nil {
			return nil, err
		}
	}
	if last.Start().Before(first.Start()) {
		return nil, fmt.Errorf("-to %s precedes -from %s", last.Token(), first.Token())
	}

	var periods []commission.Period
	for p := first; !p.Start().After(last.Start()); p = p.Next() {
		periods = append(periods, p)
	}
	return periods, nil
}
