package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"rwsplit/internal/codec"
	"rwsplit/internal/config"
	"rwsplit/internal/events"
	"rwsplit/internal/gate"
	"rwsplit/internal/handler"
	"rwsplit/internal/hub"
	"rwsplit/internal/pool"
	"rwsplit/internal/repository/sqlite"
	"rwsplit/internal/routing"
	"rwsplit/internal/service"
	"rwsplit/internal/telemetry"
	"rwsplit/internal/watcher"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	initConfig := flag.Bool("init-config", false, "write a default config file and exit")
	seedPath := flag.String("seed", "", "YAML or JSON file of accounts to import at startup")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *initConfig {
		path := *configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	log.Println("Starting rwsplit server...")

	// Load configuration
	var (
		cfg    *config.Config
		loaded string
		err    error
	)
	if *configPath != "" {
		cfg, loaded, err = config.LoadFromPath(*configPath)
	} else {
		cfg, loaded, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if loaded == "" {
		loaded = "defaults"
	}
	log.Printf("Config loaded from %s: %s", loaded, cfg.Summary())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize pools
	reg, err := pool.Open(ctx, cfg.Database, pool.WithPublisher(eventBus))
	if err != nil {
		log.Fatalf("Failed to open pools: %v", err)
	}
	defer reg.Close()

	// Schema
	for _, role := range routing.Roles {
		p, err := reg.Get(role)
		if err != nil {
			log.Fatalf("Failed to get %s pool: %v", role, err)
		}
		if err := sqlite.Migrate(ctx, p.DB()); err != nil {
			if role == routing.Primary {
				log.Fatalf("Failed to migrate primary: %v", err)
			}
			log.Printf("Warning: failed to migrate %s: %v", role, err)
		}
	}

	// Initialize SSE hub
	sseHub := hub.New()
	go sseHub.Run(ctx)

	// Connect event bus to SSE hub
	eventChan := make(chan events.Event, 100)
	eventBus.Subscribe(eventChan)
	go sseHub.Relay(ctx, eventChan)

	// Replica health watcher
	healthWatcher := watcher.New(reg, eventBus).
		WithInterval(cfg.Database.HealthCheckInterval.Duration())
	go healthWatcher.Watch(ctx)

	// Initialize services
	accountSvc := service.NewAccountService(gate.New(reg), sqlite.New(), eventBus)

	if *seedPath != "" {
		if err := seed(ctx, accountSvc, *seedPath); err != nil {
			log.Fatalf("Failed to seed accounts: %v", err)
		}
	}

	// Initialize HTTP handlers
	accountHandler := handler.NewAccountHandler(accountSvc)
	routingHandler := handler.NewRoutingHandler(reg)

	// Setup routes
	mux := http.NewServeMux()

	// Account endpoints
	mux.HandleFunc("GET /api/accounts", accountHandler.ListAccounts)
	mux.HandleFunc("POST /api/accounts", accountHandler.CreateAccount)
	mux.HandleFunc("GET /api/accounts/{id}", accountHandler.GetAccount)
	mux.HandleFunc("PUT /api/accounts/{id}", accountHandler.UpdateAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", accountHandler.DeleteAccount)

	// Import/export endpoints
	mux.HandleFunc("POST /api/import/{format}", accountHandler.ImportAccounts)
	mux.HandleFunc("GET /api/export/{format}", accountHandler.ExportAccounts)

	// Routing endpoints
	mux.HandleFunc("GET /api/routing", routingHandler.Stats)
	mux.HandleFunc("GET /health", routingHandler.Health)

	// SSE events endpoint
	mux.Handle("GET /events", sseHub)

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop the watcher and close SSE streams before draining requests
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// seed imports the accounts in path, picking the codec from its extension
func seed(ctx context.Context, svc *service.AccountService, path string) error {
	c, err := codec.ForFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	accounts, err := c.Parse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	n, err := svc.ImportAccounts(ctx, accounts)
	if err != nil {
		return err
	}
	log.Printf("Seeded %d accounts from %s", n, path)
	return nil
}
