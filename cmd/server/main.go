/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the IPC engine: config resolution, SQLite store,
  pipeline runner and HTTP server, or a single pipeline pass in -once mode.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Resolve configuration (defaults, YAML file, environment, flags)
  3. Initialize SQLite store
  4. Wire source client, pipeline runner and API handler
  5. -once: run one load and exit; otherwise serve HTTP

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (overrides config)
           Use ":memory:" for an in-memory database
  -config  Path to a YAML config file
  -once    Run one pipeline pass, print the JSON report, exit
  -from    Reprocess from this month (YYYY-MM, with -once)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # One incremental load against the default endpoints
  ./server -once

  # Backfill from a month
  ./server -once -from=2024-01

  # Serve the API over an existing database
  ./server -db=./data/ipc.db -port=3000

SEE ALSO:
  - config/config.go: Resolution order and environment variables
  - api/server.go: Router configuration
  - pipeline/run.go: What a run does
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/austral/ipc-engine/api"
	"github.com/austral/ipc-engine/config"
	"github.com/austral/ipc-engine/logger"
	"github.com/austral/ipc-engine/pipeline"
	"github.com/austral/ipc-engine/series"
	"github.com/austral/ipc-engine/source"
	"github.com/austral/ipc-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	configPath := flag.String("config", "", "path to a YAML config file")
	once := flag.Bool("once", false, "run one pipeline pass and exit")
	fromStr := flag.String("from", "", "reprocess from this month (YYYY-MM, with -once)")
	flag.Parse()

	// Resolve configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	var from series.Month
	if *fromStr != "" {
		from, err = series.ParseMonth(*fromStr)
		if err != nil {
			log.Fatalf("Invalid -from month: %v", err)
		}
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the pipeline
	appLog := logger.NewStandardLogger(os.Stdout)
	client := source.New(cfg.HTTPTimeout(), appLog)
	runner := pipeline.NewRunner(cfg, client, store, appLog)

	// One-shot mode: run, print the report, exit
	if *once {
		report, err := runner.Run(context.Background(), from)
		if err != nil {
			store.Close()
			log.Fatalf("Run failed: %v", err)
		}
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			store.Close()
			log.Fatalf("Failed to encode report: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	// Create router
	handler := api.NewHandler(store, runner)
	router := api.NewRouter(handler)

	// A triggered run is synchronous, so the write timeout must outlive a
	// full load across every source.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
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
