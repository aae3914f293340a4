// Package main implements the entry point for the taskdeck API server,
// which persists tasks and relays their status changes to a work queue.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taskdeck/taskdeck-api/internal/cache"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/events"
	"github.com/taskdeck/taskdeck-api/internal/outbox"
	"github.com/taskdeck/taskdeck-api/internal/platform/logger"
	"github.com/taskdeck/taskdeck-api/internal/platform/postgres"
	"github.com/taskdeck/taskdeck-api/internal/platform/rabbitmq"
	"github.com/taskdeck/taskdeck-api/internal/redact"
	"github.com/taskdeck/taskdeck-api/internal/service"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.run()
}

// application holds the wired components and their shutdown hooks.
type application struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *sql.DB
	dispatcher *outbox.Dispatcher
	taskCache  *cache.Cache
	service    service.TaskService
	closers    []func()
}

// initializeApp loads configuration and wires the application components
// in dependency order: logging, database, broker, outbox dispatcher,
// cache, and finally the task service.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)

	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_url", redact.String(cfg.Database.URL),
		"queue_url", redact.String(cfg.Queue.URL))

	app := &application{cfg: cfg, logger: appLogger}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, func() { _ = db.Close() })

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		app.close()
		return nil, fmt.Errorf("failed to ping database: %s", redact.Error(err))
	}

	if err := runMigrations(db, appLogger); err != nil {
		app.close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	taskStore := postgres.NewPostgresTaskStore(db, appLogger)
	userStore := postgres.NewPostgresUserStore(db, appLogger)
	eventStore := postgres.NewPostgresTaskEventStore(db, appLogger)

	// Without a broker URL the server still runs; events are recorded in
	// the outbox and drained to an in-memory sink. Useful for local work.
	var publisher events.Publisher
	if cfg.Queue.URL != "" {
		mq, err := rabbitmq.NewPublisher(cfg.Queue.URL, cfg.Queue.Exchange, appLogger)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to connect to broker: %s", redact.Error(err))
		}
		app.closers = append(app.closers, mq.Close)
		publisher = mq
	} else {
		appLogger.Warn("no queue URL configured, events will not leave the process")
		publisher = events.NewInMemoryPublisher(appLogger)
	}

	dispatcher, err := outbox.NewDispatcher(eventStore, publisher, outbox.Config{
		DispatchInterval: cfg.Outbox.DispatchInterval,
		BatchSize:        cfg.Outbox.BatchSize,
	}, appLogger)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to create outbox dispatcher: %w", err)
	}
	app.dispatcher = dispatcher

	app.taskCache = cache.New(cache.Config{
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	}, appLogger)

	svc, err := service.NewTaskService(db, taskStore, userStore, eventStore, appLogger)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	app.service = svc

	return app, nil
}

// run starts the background workers and blocks until a shutdown signal
// arrives, then drains and releases everything in reverse order.
func (a *application) run() {
	a.dispatcher.Start()
	a.taskCache.StartSweeper()

	// The dispatcher and cache register Prometheus counters; serve them
	// so the instrumentation is scrapeable.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: mux,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()

	a.logger.Info("taskdeck server started", "metrics_addr", metricsServer.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	a.logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("metrics server shutdown failed", "error", err)
	}

	a.dispatcher.Stop()

	// Final drain so events committed just before shutdown still go out.
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.dispatcher.DispatchPending(drainCtx); err != nil {
		a.logger.Error("final outbox drain failed", "error", err)
	}

	a.taskCache.Stop()
	a.close()

	a.logger.Info("taskdeck server stopped")
}

// close runs the registered shutdown hooks in reverse order.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
