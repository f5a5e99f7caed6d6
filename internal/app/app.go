// Package app assembles the store, provider and services from configuration.
// Both binaries build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coldchain-rental-core/internal/config"
	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/mobilemoney"
	"coldchain-rental-core/internal/repository"
	"coldchain-rental-core/internal/repository/memory"
	"coldchain-rental-core/internal/repository/postgres"
	"coldchain-rental-core/internal/service"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	Config  *config.Config
	Store   repository.Store
	Metrics *metrics.Metrics

	Assets   service.AssetService
	Capacity service.CapacityLedger
	Rentals  service.RentalService
	Stock    service.StockService
	Orders   service.OrderService
	Invoices service.InvoiceService
	Payments service.PaymentService

	mock *mobilemoney.MockProvider
	db   *sql.DB
}

// New connects storage and builds every service.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New(reg)}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store

	var notifier service.Notifier
	if n := cfg.Notifications; n.SendGridAPIKey != "" {
		logger.Info("Ops notifications via SendGrid", "ops_email", n.OpsEmail)
		notifier = service.NewSendGridNotifier(n.SendGridAPIKey, n.FromEmail, n.FromName, n.OpsEmail)
	} else {
		logger.Info("SendGrid key not set, ops notifications are logged only")
		notifier = service.NewLogNotifier()
	}

	mm := cfg.MobileMoney
	var provider service.PaymentProvider
	if mm.Mock {
		a.mock = mobilemoney.NewMockProvider(mm.MockCallbackDelay())
		provider = a.mock
	} else {
		provider = mobilemoney.NewClient(mm.BaseURL, mm.APIKey, mm.CallbackURL, mm.RequestTimeout())
	}

	clock := service.Clock(service.SystemClock)
	a.Assets = service.NewAssetService(store, a.Metrics, clock)
	a.Capacity = service.NewCapacityLedger(store, a.Metrics, clock)
	a.Rentals = service.NewRentalService(store, notifier, a.Metrics, clock)
	a.Stock = service.NewStockService(store, clock)
	a.Orders = service.NewOrderService(store, a.Metrics, clock)
	a.Invoices = service.NewInvoiceService(store, a.Metrics, clock)
	a.Payments = service.NewPaymentService(store, provider, notifier, a.Metrics, clock, service.PaymentOptions{
		Currency:        mm.Currency,
		PendingTTL:      cfg.PendingPaymentTTL(),
		DispatchTimeout: mm.RequestTimeout(),
		MaxTries:        mm.MaxTries,
		InitialBackoff:  mm.InitialBackoff(),
		MaxBackoff:      mm.MaxBackoff(),
	})

	if a.mock != nil {
		// The mock settles through the same path a signed webhook takes.
		a.mock.Bind(func(ctx context.Context, ref string, outcome domain.PaymentOutcome, reason string) error {
			_, err := a.Payments.OnProviderCallback(ctx, ref, outcome, reason)
			return err
		})
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	cfg := a.Config.Database
	if cfg.Driver == config.DriverMemory {
		logger.Warn("Using in-memory store; data is lost on exit")
		return memory.NewStore(), nil
	}

	logger.Info("Connecting to database...", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	db, err := sql.Open("postgres", a.Config.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	}
	a.db = db
	return postgres.NewStore(db), nil
}

// Close waits for in-flight payment dispatches and mock settlements, then
// releases the database.
func (a *App) Close() {
	a.Payments.Wait()
	if a.mock != nil {
		a.mock.Wait()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("Closing database", "error", err)
		}
	}
}
