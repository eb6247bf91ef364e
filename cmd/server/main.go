/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the scout commission server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Optionally load the demo dataset
  4. Create API handler with dependencies
  5. Start the settlement scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: commissions.db)
              Use ":memory:" for in-memory database
  -seed       Load the demo dataset on startup
  -scheduler  Run the monthly settlement scheduler (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/commissions.db"

  # Run with demo data, no scheduler
  ./server -db=":memory:" -seed -scheduler=false

ENVIRONMENT:
  No environment variables currently. All config via flags.
  Future: DATABASE_URL, PORT, LOG_LEVEL

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Settlement scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newmusiclives/scout-commissions/api"
	"github.com/newmusiclives/scout-commissions/settlement"
	"github.com/newmusiclives/scout-commissions/store/seed"
	"github.com/newmusiclives/scout-commissions/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "commissions.db", "SQLite database path")
	loadSeed := flag.Bool("seed", false, "load the demo dataset on startup")
	runScheduler := flag.Bool("scheduler", true, "run the monthly settlement scheduler")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *loadSeed {
		if err := seed.Demo(context.Background(), store); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
		log.Println("Demo dataset loaded")
	}

	// Initialize handler
	handler := api.NewHandler(store, settlement.LogProcessor{})

	// Scheduler
	scheduler := api.NewSettlementScheduler(store, handler)
	scheduler.Enabled = *runScheduler
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
