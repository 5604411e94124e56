package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Mathfer/Bot-gemini-middleware/internal/config"
	"github.com/Mathfer/Bot-gemini-middleware/internal/dispatch"
	"github.com/Mathfer/Bot-gemini-middleware/internal/filter"
	"github.com/Mathfer/Bot-gemini-middleware/internal/filter/injection"
	"github.com/Mathfer/Bot-gemini-middleware/internal/filter/secrets"
	"github.com/Mathfer/Bot-gemini-middleware/internal/gateway"
	"github.com/Mathfer/Bot-gemini-middleware/internal/history"
	"github.com/Mathfer/Bot-gemini-middleware/internal/ratelimit"
	"github.com/Mathfer/Bot-gemini-middleware/internal/router"
	"github.com/Mathfer/Bot-gemini-middleware/internal/scheduler"
	"github.com/Mathfer/Bot-gemini-middleware/internal/telemetry"
)

var version = "dev"

func main() {
	start := time.Now()
	configDir := flag.String("config", "configs", "path to configuration directory")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
	}

	bootLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	loader := config.NewLoader(*configDir, bootLogger)
	if err := loader.Load(); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	var out io.Writer = os.Stdout
	if cfg.Telemetry.LogFile != "" {
		f, err := os.OpenFile(cfg.Telemetry.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			bootLogger.Error("failed to open log file", "path", cfg.Telemetry.LogFile, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = io.MultiWriter(os.Stdout, f)
	}
	logger := telemetry.NewLogger(out, cfg.Telemetry.LogFormat, cfg.Telemetry.LogLevel)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	metrics := telemetry.NewMetrics()

	// Optional Postgres archive of accepted events.
	var archiver history.Archiver
	if cfg.Database.Enabled {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(1)
		}
		if cfg.Database.MaxConns > 0 {
			poolCfg.MaxConns = int32(cfg.Database.MaxConns)
		}
		dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		if err := dbPool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (archive writes will fail)", "error", err)
		} else {
			logger.Info("database connected")
		}
		archiver = history.NewPGArchive(dbPool)
	}

	store, err := history.NewStore(history.Options{
		HistoryDir:    cfg.History.Dir,
		JournalPath:   cfg.History.JournalPath,
		PayloadPath:   cfg.History.PayloadPath,
		IDsPath:       cfg.History.IDsPath,
		Archiver:      archiver,
		OnSinkFailure: metrics.RecordSinkFailure,
	}, logger)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}

	validator, err := filter.NewValidator()
	if err != nil {
		logger.Error("failed to build validator", "error", err)
		os.Exit(1)
	}

	limit := func() int { return loader.Config().RateLimit.RequestsPerMinute }
	window := ratelimit.NewWindow(cfg.RateLimit.Window, limit)
	var admitter ratelimit.Admitter = window
	if cfg.RateLimit.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiter fails open)", "error", err)
		} else {
			logger.Info("redis connected")
		}
		admitter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.Window, limit)
	}

	health := router.NewHealthTracker(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.OpenTimeout, metrics)
	completer, err := router.BuildCompleter(cfg.Completion, health)
	if err != nil {
		logger.Error("failed to build completion gateway", "error", err)
		os.Exit(1)
	}
	if completer == nil {
		logger.Warn("completion gateway not configured, inbound events will only be recorded")
	}
	relayer := router.BuildRelayer(cfg.Relay, health)
	if relayer == nil {
		logger.Warn("relay gateway not configured, outbound replies will fail")
	}

	pool := dispatch.NewPool(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, logger)
	pool.OnDone = gateway.TaskOutcomes(metrics)
	pool.Start()

	agg := telemetry.NewAggregator(telemetry.DefaultWindowSize, metrics)
	handler := gateway.NewHandler(gateway.Deps{
		Config:    loader.Config,
		Validator: validator,
		Scanner:   secrets.NewScanner(),
		Injection: injection.NewScanner(),
		Store:     store,
		Pool:      pool,
		Agg:       agg,
		Metrics:   metrics,
		Completer: completer,
		Relayer:   relayer,
		Health:    health,
		Window:    window,
		Logger:    logger,
	})

	loader.OnReload(func() {
		c := loader.Config()
		logger.Info("configuration reloaded",
			"rate_limit", c.RateLimit.RequestsPerMinute,
			"max_reply_chars", c.Completion.MaxReplyChars,
		)
	})

	sched := scheduler.New(logger)
	for _, j := range handler.Jobs() {
		if err := sched.Add(j); err != nil {
			logger.Error("failed to schedule job", "job", j.Name, "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	if cfg.Telemetry.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		go func() {
			logger.Info("metrics server starting", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	token := func() string { return loader.Config().Auth.Token }
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(admitter, token),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay starting",
			"addr", addr,
			"version", version,
			"completion", cfg.Completion.Type,
			"rate_limit_backend", cfg.RateLimit.Backend,
		)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := pool.Shutdown(ctx); err != nil {
		logger.Warn("background tasks abandoned", "error", err, "stats", pool.Stats())
	}
	if err := sched.Stop(ctx); err != nil {
		logger.Warn("scheduler stop timed out", "error", err)
	}
	logger.Info("relay stopped", "uptime", time.Since(start).Round(time.Second).String())
}
