package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"coldchain-rental-core/internal/app"
	"coldchain-rental-core/internal/config"
	"coldchain-rental-core/internal/jobs"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", fmt.Sprintf("Run a job once and exit (%s, %s, %s)",
		jobs.JobExpireStaleRentals, jobs.JobExpireStalePayments, jobs.JobAll))
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting cold-chain cronjob runner...", "log_level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expiry never dispatches to the provider, but the app still needs one configured.
	application, err := app.New(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	runner := jobs.NewJobRunner(application.Rentals, application.Payments, application.Metrics, 0)

	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runner.Run(*runOnce); err != nil {
			logger.Error("Job failed", "job", *runOnce, "error", err)
			application.Close()
			os.Exit(1)
		}
		return
	}

	cronScheduler, err := scheduler.NewScheduler(cfg.Scheduler, runner)
	if err != nil {
		logger.Error("Failed to build scheduler", "error", err)
		application.Close()
		os.Exit(1)
	}
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	<-ctx.Done()
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}
