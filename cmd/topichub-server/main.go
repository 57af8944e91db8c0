// Package main provides the topichub server executable: it warms the
// in-memory state from SQL, runs the sync trigger and backlog cleanup in the
// background and serves health and metrics endpoints.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coregx/topichub"
	"github.com/coregx/topichub/adapters/relica"
	"github.com/coregx/topichub/cmd/topichub-server/internal/config"
)

// SimpleLogger implements topichub.Logger for standard logging.
type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *SimpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}
func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *SimpleLogger) Info(message string) {
	log.Printf("[INFO] %s", message)
}

func main() {
	log.Println("Starting topichub server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded:")
	log.Printf("   Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	log.Printf("   Sync interval: %dms", cfg.Engine.SyncIntervalMS)

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connection established")

	logger := &SimpleLogger{}

	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}
	log.Println("Repositories initialized (Relica adapters)")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := topichub.NewEndpointRegistry(logger)
	store := topichub.NewTopicStore(logger)
	backlog := topichub.NewBacklog(logger)

	if err := warmFromDatabase(ctx, repos, registry, store); err != nil {
		log.Fatalf("Failed to warm in-memory state: %v", err)
	}

	var invoker topichub.ServiceInvoker
	if cfg.Engine.EnableNotifications {
		invoker = topichub.NewLoggingServiceInvoker(logger)
	} else {
		invoker = &topichub.NoOpServiceInvoker{}
	}

	trigger, err := topichub.NewTrigger(append(
		store.TriggerOptions(backlog, invoker),
		topichub.WithTriggerSleepInterval(time.Duration(cfg.Engine.SyncIntervalMS)*time.Millisecond),
		topichub.WithTriggerLogger(logger),
	)...)
	if err != nil {
		log.Fatalf("Failed to create sync trigger: %v", err)
	}

	go trigger.Run(ctx)
	go backlog.RunCleanup(ctx, time.Duration(cfg.Engine.CleanupIntervalSec)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		log.Println("   GET /metrics")
		log.Println("   GET /healthz")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	trigger.Stop()
	cancel()
	log.Println("Server stopped gracefully")
}

// warmFromDatabase loads endpoints, topics and subscriptions from SQL into
// the in-memory registry and store.
func warmFromDatabase(ctx context.Context, repos *relica.Repositories,
	registry *topichub.EndpointRegistry, store *topichub.TopicStore) error {

	endpoints, err := repos.Endpoint.LoadAll(ctx)
	if err != nil {
		return err
	}
	for i := range endpoints {
		if err := registry.Create(endpoints[i]); err != nil {
			return fmt.Errorf("endpoint %d: %w", endpoints[i].ID, err)
		}
	}

	topics, err := repos.Topic.LoadAll(ctx)
	if err != nil {
		return err
	}
	for i := range topics {
		if _, err := store.CreateTopic(topics[i]); err != nil {
			return fmt.Errorf("topic %d: %w", topics[i].ID, err)
		}
	}

	subs, err := repos.Subscription.LoadAll(ctx)
	if err != nil {
		return err
	}
	for i := range subs {
		store.AddSubscription(&subs[i])
	}

	log.Printf("Warmed state: %d endpoint(s), %d topic(s), %d subscription(s)",
		len(endpoints), len(topics), len(subs))

	return nil
}
