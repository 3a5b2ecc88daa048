// Package main is the entry point for the Ossuary network server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/ossuary-dev/ossuary-pi/internal/api"
	"github.com/ossuary-dev/ossuary-pi/internal/config"
	"github.com/ossuary-dev/ossuary-pi/internal/database"
	"github.com/ossuary-dev/ossuary-pi/internal/database/models"
	"github.com/ossuary-dev/ossuary-pi/internal/database/repositories"
	"github.com/ossuary-dev/ossuary-pi/internal/services/netman"
	"github.com/ossuary-dev/ossuary-pi/internal/services/pubsub"
	"github.com/ossuary-dev/ossuary-pi/internal/services/version"
	"github.com/ossuary-dev/ossuary-pi/internal/telemetry"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	printBanner(cfg)
	telemetry.Register()

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	log.Println("Running database migrations...")
	if err := db.AutoMigrate(&models.KnownNetwork{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrations complete")

	// Bind the WiFi backend; wired-only hosts run degraded rather than dying.
	var backend netman.Backend
	nmBackend, err := netman.NewNetworkManagerBackend(cfg.WiFiInterface)
	if err != nil {
		log.Printf("Warning: WiFi backend unavailable (%v), running wired-only", err)
		backend = netman.NewUnavailableBackend()
	} else {
		backend = nmBackend
	}
	defer backend.Close()

	apConfig := netman.APConfig{
		SSID:      cfg.APSSID,
		Password:  cfg.APPassphrase,
		Channel:   cfg.APChannel,
		IPAddress: cfg.APIPAddress,
		Subnet:    cfg.APSubnet,
	}

	store := repositories.NewKnownNetworkRepository(db)
	markers := netman.NewMarkerStore(cfg.ReconnectionMarker)
	poller := netman.NewPoller(backend, apConfig, cfg.PollInterval)
	manager := netman.NewManager(backend, poller, store, markers, apConfig, netman.Timing{
		ConnectTimeout: cfg.ConnectTimeout,
		ScanSettle:     cfg.ScanSettle,
		APSettle:       cfg.APSettle,
	})

	fallback := netman.NewFallbackTimer(cfg.FallbackTimeout,
		func() bool { return poller.State() == netman.StateDisconnected },
		func() {
			if _, err := manager.StartAccessPoint(context.Background()); err != nil {
				log.Printf("Fallback AP activation failed: %v", err)
			}
		},
	)
	poller.SetFallback(fallback)
	manager.SetFallback(fallback)

	// Fan network events out to WebSocket clients.
	events := pubsub.New()
	poller.Subscribe(func(old, new netman.NetworkState, status netman.NetworkStatus) {
		events.Publish(pubsub.TopicNetworkState, map[string]interface{}{
			"previous": old,
			"current":  new,
		})
		events.Publish(pubsub.TopicNetworkStatus, status)
		if old == netman.StateAPMode || new == netman.StateAPMode {
			events.Publish(pubsub.TopicAPMode, status)
		}
	})

	// Startup reconnection runs to completion before steady-state polling.
	reconnector := netman.NewStartupReconnector(manager, store, poller, fallback, markers,
		cfg.StartupTimeout, cfg.StartupRetryPause)
	reconnector.Run(context.Background())

	poller.Start()
	defer poller.Stop()

	// Create router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		Debug:            cfg.IsDevelopment(),
	})
	router.Use(corsMiddleware.Handler)

	apiServer := api.NewServer(manager, poller, store, events, version.Version)
	apiServer.Register(router)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%s\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	fallback.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	info := version.Get()
	fmt.Println("============================================")
	fmt.Println("  Ossuary Network Server")
	fmt.Printf("  Version: %s\n", info.Version)
	fmt.Printf("  Build:   %s\n", info.BuildTime)
	fmt.Printf("  Commit:  %s\n", info.GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Interface:   %s\n", cfg.WiFiInterface)
	fmt.Printf("  AP SSID:     %s\n", cfg.APSSID)
	fmt.Println("============================================")
}
