/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the credits back-office server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Connect to Redis for cache-invalidation events (optional)
  4. Create transfer service and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: backoffice.db)
               Use ":memory:" for an in-memory database
  -redis       Redis address for cache-invalidation events
               (empty disables event emission)
  -min-amount  Minimum transfer amount (default: 100)
  -max-amount  Maximum transfer amount (default: 50000)
  -max-fee     Maximum service fee (default: 1000)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database and Redis connections
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
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

	"github.com/shopspring/decimal"

	"github.com/atmgo/backoffice/api"
	"github.com/atmgo/backoffice/credits"
	"github.com/atmgo/backoffice/events"
	"github.com/atmgo/backoffice/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "backoffice.db", "SQLite database path")
	redisAddr := flag.String("redis", "", "Redis address for cache-invalidation events (empty disables)")
	minAmount := flag.Int64("min-amount", 100, "Minimum transfer amount")
	maxAmount := flag.Int64("max-amount", 50000, "Maximum transfer amount")
	maxFee := flag.Int64("max-fee", 1000, "Maximum service fee")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Optional cache-invalidation notifier
	var notifier credits.Notifier = credits.NopNotifier{}
	if *redisAddr != "" {
		client, err := events.NewClient(*redisAddr)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		notifier = events.NewCacheInvalidator(client)
	}

	limits := credits.Limits{
		MinAmount:     decimal.NewFromInt(*minAmount),
		MaxAmount:     decimal.NewFromInt(*maxAmount),
		MaxServiceFee: decimal.NewFromInt(*maxFee),
	}
	service := credits.NewService(store, limits, notifier)
	handler := api.NewHandler(service, store)
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
