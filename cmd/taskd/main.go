package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tasksync/internal/api"
	"tasksync/internal/config"
	"tasksync/internal/connectivity"
	"tasksync/internal/database"
	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/logging"
	"tasksync/internal/metrics"
	"tasksync/internal/remote"
	"tasksync/internal/service"
	"tasksync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (defaults to $CONFIG_PATH or configs/config.yaml)")
	flag.Parse()

	cfg, base, closer, err := loadConfigAndLogger(*configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := base.With().Str("component", "main").Logger()

	db, err := database.NewDB(cfg.Database.Path, logging.Component(base, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	remoteSvc, closeRemote, err := initRemote(cfg, &logger)
	if err != nil {
		return err
	}
	defer closeRemote()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	eventBus := events.NewEventBus(logging.Component(base, "events"))
	eventBus.Subscribe(events.Wildcard, func(ev *events.Event) error {
		logger.Debug().Str("event", ev.Type).RawJSON("payload", ev.Payload).Msg("event")
		return nil
	})

	monitor := connectivity.NewMonitor(newProbe(cfg.Connectivity), cfg.Connectivity.Interval, cfg.Connectivity.Timeout,
		logging.Component(base, "connectivity"))
	monitor.Start(ctx)
	defer monitor.Stop()

	engine := worker.NewEngine(db, remoteSvc, eventBus, engineOptions(cfg.Sync), logging.Component(base, "sync"))
	tasks := service.NewTaskService(db, eventBus, logging.Component(base, "tasks"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		engine.Run(ctx, monitor)
	}()
	go func() {
		defer wg.Done()
		database.NewBackupService(db, cfg.Backup, logging.Component(base, "backup")).Start(ctx)
	}()

	var httpServer *api.HTTPServer
	if cfg.API.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, api.Deps{
			Tasks:   tasks,
			Sync:    engine,
			Ledger:  db,
			Monitor: monitor,
		}, logging.Component(base, "api"))
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
				stop()
			}
		}()
	}

	logger.Info().
		Str("remote", cfg.Remote.Kind).
		Bool("online", monitor.CurrentState()).
		Bool("api", cfg.API.Enabled).
		Msg("tasksync started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	wg.Wait()

	logger.Info().Msg("tasksync stopped")
	return nil
}

func loadConfigAndLogger(configPath string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func initRemote(cfg *config.Config, logger *zerolog.Logger) (domain.RemoteTaskService, func(), error) {
	switch cfg.Remote.Kind {
	case "redis":
		client := remote.NewRedisClient(cfg.Remote.Redis)
		r := remote.NewRedis(client, cfg.Remote.Redis.KeyPrefix)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			// The outbox keeps growing until redis is reachable.
			logger.Warn().Err(err).Str("addr", cfg.Remote.Redis.Address).Msg("redis not reachable yet")
		} else {
			logger.Info().Str("addr", cfg.Remote.Redis.Address).Msg("redis connected")
		}
		return r, func() { _ = r.Close() }, nil
	case "http":
		return remote.NewHTTP(cfg.Remote.HTTP, &http.Client{}), func() {}, nil
	case "memory", "":
		logger.Warn().Msg("using in-memory remote, pushed tasks are lost on exit")
		return remote.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote kind %q", cfg.Remote.Kind)
	}
}

func newProbe(cfg config.ConnectivityConfig) connectivity.Probe {
	if cfg.Probe == "http" {
		return &connectivity.HTTPProbe{URL: cfg.URL}
	}
	return &connectivity.TCPProbe{Address: cfg.Address}
}

func engineOptions(cfg config.SyncConfig) worker.Options {
	opts := worker.Options{RemoteTimeout: cfg.RemoteTimeout}
	if cfg.Retry.Enabled {
		opts.Retry = &worker.RetryPolicy{
			MaxRetries:    cfg.Retry.MaxRetries,
			InitialDelay:  cfg.Retry.InitialDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: cfg.Retry.Multiplier,
		}
	}
	return opts
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
