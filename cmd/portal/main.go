package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/physio-portal/internal/api/router"
	"github.com/wolfman30/physio-portal/internal/app/bootstrap"
	"github.com/wolfman30/physio-portal/internal/backend"
	appconfig "github.com/wolfman30/physio-portal/internal/config"
	httpmiddleware "github.com/wolfman30/physio-portal/internal/http/middleware"
	"github.com/wolfman30/physio-portal/internal/observability/metrics"
	"github.com/wolfman30/physio-portal/internal/portal"
	"github.com/wolfman30/physio-portal/internal/session"
	"github.com/wolfman30/physio-portal/internal/viewstate"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

const sweepInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting physio portal",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend_url", cfg.BackendURL,
	)

	key, err := csrfKey(cfg.CSRFKey)
	if err != nil {
		logger.Error("invalid CSRF_KEY", "error", err)
		os.Exit(1)
	}
	if key == nil && cfg.IsProduction() {
		logger.Error("CSRF_KEY is required in production")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	store := bootstrap.BuildSessionStore(redisClient, cfg, logger)

	auditService, closeAudit, err := bootstrap.BuildAuditService(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize audit log", "error", err)
		os.Exit(1)
	}
	defer closeAudit()

	metricsHandler, portalMetrics := setupPortalMetrics()

	client := backend.NewClient(cfg.BackendURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.BackendTimeout}),
		backend.WithLogger(logger),
		backend.WithObserver(portalMetrics),
	)

	sessions := session.NewManager(store, session.ManagerConfig{
		CookieName: cfg.SessionCookieName,
		Secure:     cfg.SessionCookieSecure,
		TTL:        cfg.SessionTTL,
	}, session.NewTokenVerifier(cfg.SessionJWTSecret), logger)

	boards := viewstate.NewRegistry()
	go boards.Run(ctx, sweepInterval, cfg.SessionTTL)

	limiter := httpmiddleware.NewRateLimiter(cfg.LoginRatePerSec, cfg.LoginRateBurst)
	go limiter.Run(ctx, sweepInterval, 10*time.Minute)

	portalHandler := portal.NewHandler(portal.Config{
		Backend:   client,
		Sessions:  sessions,
		Boards:    boards,
		Audit:     auditService,
		Metrics:   portalMetrics,
		Stale:     portalMetrics,
		Logger:    logger,
		CSRFField: router.CSRFField,
	})

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Portal:             portalHandler,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFKey:            key,
		CookieSecure:       cfg.SessionCookieSecure,
		LoginLimiter:       limiter,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.BackendTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupPortalMetrics() (http.Handler, *metrics.PortalMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewPortalMetrics(reg)
}

// csrfKey accepts 64 hex characters or a raw 32-byte string. Empty disables
// CSRF protection.
func csrfKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil, nil
	case len(raw) == 64:
		if key, err := hex.DecodeString(raw); err == nil {
			return key, nil
		}
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("csrf key must be 32 bytes or 64 hex characters, got %d characters", len(raw))
	}
	return []byte(raw), nil
}
