package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/config"
	"github.com/clinicore/dispensary/internal/repository"
	"github.com/clinicore/dispensary/internal/repository/memory"
	"github.com/clinicore/dispensary/internal/repository/mongodb"
	"github.com/clinicore/dispensary/internal/repository/sheets"
	"github.com/clinicore/dispensary/internal/scheduler"
	"github.com/clinicore/dispensary/internal/server/handlers"
	"github.com/clinicore/dispensary/internal/server/router"
	catalogsvc "github.com/clinicore/dispensary/internal/service/catalog"
	dispensesvc "github.com/clinicore/dispensary/internal/service/dispense"
	"github.com/clinicore/dispensary/pkg/clients/alerts"
	"github.com/clinicore/dispensary/pkg/clients/billing"
	"github.com/clinicore/dispensary/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	var store repository.Store
	switch cfg.Storage.Driver {
	case config.StorageMongoDB:
		mongoStore, err := mongodb.NewStore(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb store", zap.Error(err))
		}
		defer func() {
			if err := mongoStore.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		store = mongoStore
	default:
		baseLogger.Warn("using in-memory storage, ledger will not survive restarts")
		store = memory.NewStore()
	}

	var auditSink sheets.AuditSink = sheets.NopAuditSink{}
	if cfg.Sheets.Enabled() {
		sink, err := sheets.NewGoogleSheetAuditSink(context.Background(), cfg.Sheets, baseLogger.Named("audit.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets audit sink", zap.Error(err))
		}
		auditSink = sink
		baseLogger.Info("google sheets audit export enabled")
	}

	catalogSvc := catalogsvc.NewService(store, baseLogger.Named("svc.catalog"))
	coordinator := dispensesvc.NewCoordinator(store, auditSink, baseLogger.Named("svc.dispense"))

	billingClient := billing.NewClient(cfg.Billing)

	var notifier alerts.Notifier = alerts.NopNotifier{}
	if cfg.Alerts.WebhookURL != "" {
		notifier = alerts.NewWebhookNotifier(cfg.Alerts)
		baseLogger.Info("low stock alert webhook enabled")
	} else {
		baseLogger.Warn("alert webhook url missing, low stock alerts disabled")
	}

	catalogHandler := handlers.NewCatalogHandler(catalogSvc, baseLogger.Named("handlers.catalog"))
	orderHandler := handlers.NewOrderHandler(coordinator, baseLogger.Named("handlers.orders"))
	engine := router.New(catalogHandler, orderHandler, baseLogger.Named("router"))

	// Initialize Scheduler
	sched := scheduler.NewScheduler(*cfg, catalogSvc, coordinator, billingClient, notifier, baseLogger.Named("scheduler"))
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
