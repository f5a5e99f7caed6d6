package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "coldchain-rental-core/internal/api/http"
	"coldchain-rental-core/internal/app"
	"coldchain-rental-core/internal/config"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/security"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting cold-chain rental core...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "db_driver", cfg.Database.Driver, "momo_mock", cfg.MobileMoney.Mock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		log.Fatalf("Failed to initialize: %v", err)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Assets:         application.Assets,
		Capacity:       application.Capacity,
		Rentals:        application.Rentals,
		Stock:          application.Stock,
		Orders:         application.Orders,
		Invoices:       application.Invoices,
		Payments:       application.Payments,
		Tokens:         security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL()),
		CallbackSecret: []byte(cfg.MobileMoney.CallbackSecret),
		Metrics:        application.Metrics,
	})

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	application.Close()
	logger.Info("Server stopped. Goodbye!")
}
