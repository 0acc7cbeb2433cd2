package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/cache"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/event"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/erp/invoicing/internal/infrastructure/mail"
	"github.com/erp/invoicing/internal/infrastructure/migration"
	"github.com/erp/invoicing/internal/infrastructure/persistence"
	"github.com/erp/invoicing/internal/infrastructure/scheduler"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/erp/invoicing/internal/interfaces/http/handler"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/erp/invoicing/internal/interfaces/http/router"
	"github.com/erp/invoicing/migrations"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers; each one is a no-op when disabled
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	if loggerProvider.IsEnabled() {
		log = telemetry.BridgeLogger(log, telemetry.NewZapOTELCore(
			cfg.Telemetry.ServiceName, loggerProvider, logger.ParseLevel(cfg.Log.Level)))
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	log.Info("Starting invoicing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.GormLevel))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	if cfg.Database.Driver == config.DriverSQLite {
		dbTracing.DBSystem = "sqlite"
	}
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	dbMetricsCfg := telemetry.DefaultDBMetricsConfig()
	dbMetricsCfg.SlowQueryThreshold = cfg.Telemetry.DBSlowQueryThresh
	dbMetrics, err := telemetry.RegisterDBMetrics(ctx, db.DB, meterProvider, dbMetricsCfg, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}

	if cfg.Database.MigrateOnStart {
		if err := applySchema(cfg.Database.Driver, db, log); err != nil {
			log.Fatal("Failed to apply database schema", zap.Error(err))
		}
	}

	// Repositories and ports
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	logRepo := persistence.NewGormNotificationLogRepository(db.DB)
	customers := persistence.NewGormCustomerDirectory(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	notificationMetrics, err := telemetry.NewNotificationMetrics(meterProvider.Meter("invoicing.notifications"))
	if err != nil {
		log.Fatal("Failed to create notification metrics", zap.Error(err))
	}

	// Event bus
	eventBus := event.NewAsyncEventBus(log, cfg.Notification.Workers, cfg.Notification.QueueSize)

	guard, err := cache.NewDispatchGuard(ctx, cfg.Notification, cfg.Redis, !cfg.App.IsProduction(), log)
	if err != nil {
		log.Fatal("Failed to create dispatch guard", zap.Error(err))
	}
	if guard != nil {
		defer func() {
			if err := guard.Close(); err != nil {
				log.Error("Error closing dispatch guard", zap.Error(err))
			}
		}()
	}

	mailer := newMailer(cfg, log)
	renderer, err := mail.NewTemplateNoticeRenderer(cfg.Notification.Locale)
	if err != nil {
		log.Fatal("Failed to create notice renderer", zap.Error(err))
	}

	handlerOpts := []appinvoicing.HandlerOption{
		appinvoicing.WithNoticeRenderer(renderer),
		appinvoicing.WithHandlerMetrics(notificationMetrics),
	}
	if guard != nil {
		handlerOpts = append(handlerOpts, appinvoicing.WithDispatchGuard(guard, cfg.Notification.ClaimTTL))
	}
	notificationHandler := appinvoicing.NewOverdueNotificationHandler(
		invoiceRepo, logRepo, customers, mailer, log, handlerOpts...,
	)
	eventBus.Subscribe(notificationHandler)

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Overdue detection
	detector := appinvoicing.NewOverdueDetector(txScope, eventBus, log,
		appinvoicing.WithDetectorMetrics(notificationMetrics),
	)
	triggerCfg := scheduler.DefaultOverdueTriggerConfig()
	if cfg.Notification.DetectionInterval > 0 {
		triggerCfg.Interval = cfg.Notification.DetectionInterval
	}
	triggerCfg.Timeout = cfg.Notification.DetectionTimeout
	trigger, err := scheduler.NewOverdueTrigger(triggerCfg, detector, log)
	if err != nil {
		log.Fatal("Failed to create overdue trigger", zap.Error(err))
	}
	if cfg.Notification.DetectionEnabled {
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start overdue trigger", zap.Error(err))
		}
	} else {
		log.Info("Scheduled overdue detection disabled; manual runs remain available")
	}

	// HTTP operations API
	ginMode := gin.DebugMode
	if cfg.App.IsProduction() {
		ginMode = gin.ReleaseMode
	}
	engine := router.NewEngine(router.EngineConfig{
		Mode: ginMode,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
		},
		Meter: meterProvider.Meter("http.server"),
	}, log)
	engine.GET("/health", handler.NewHealthHandler(db, 0).Check)

	router.NewRouter(engine).Register(
		handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion,
			handler.WithBusStats(eventBus),
			handler.WithPoolStats(db),
		),
		handler.NewDetectionHandler(trigger),
	).Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := trigger.Stop(shutdownCtx); err != nil {
		log.Error("Overdue trigger did not stop in time", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not drain in time",
			zap.Int("pending", eventBus.Pending()),
			zap.Error(err),
		)
	}
	if dbMetrics != nil {
		dbMetrics.Stop()
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited")
}

// newMailer picks the delivery backend configured for overdue notices
func newMailer(cfg *config.Config, log *zap.Logger) invoicing.Mailer {
	if cfg.Notification.DeliveryMode == config.DeliverySMTP {
		log.Info("Overdue notices delivered over SMTP", zap.String("smtp_addr", cfg.SMTP.Addr()))
		return mail.NewSMTPMailer(cfg.SMTP, log)
	}
	log.Warn("Overdue notices are logged, not sent", zap.String("delivery_mode", cfg.Notification.DeliveryMode))
	return mail.NewLogMailer(log)
}

// applySchema runs the embedded SQL migrations on PostgreSQL and the model
// based schema on sqlite
func applySchema(driver string, db *persistence.Database, log *zap.Logger) error {
	if driver == config.DriverSQLite {
		log.Info("Creating sqlite schema from models")
		return persistence.AutoMigrateSchema(db.DB)
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	// the migrator is not closed here: closing it would close sqlDB
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		return err
	}
	state, err := m.State()
	if err != nil {
		return err
	}
	log.Info("Database schema up to date", zap.Uint("version", state.Version), zap.Bool("dirty", state.Dirty))
	return nil
}
