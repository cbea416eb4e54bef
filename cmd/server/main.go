package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/web3-frozen/lp-range-monitor/internal/config"
	"github.com/web3-frozen/lp-range-monitor/internal/dedup"
	"github.com/web3-frozen/lp-range-monitor/internal/handler"
	"github.com/web3-frozen/lp-range-monitor/internal/middleware"
	"github.com/web3-frozen/lp-range-monitor/internal/monitor"
	"github.com/web3-frozen/lp-range-monitor/internal/monitor/sources"
	"github.com/web3-frozen/lp-range-monitor/internal/store"
	"github.com/web3-frozen/lp-range-monitor/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	poolID, err := sources.NormalizePoolID(cfg.PoolID)
	if err != nil {
		logger.Error("invalid pool id", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var readiness []handler.Pinger

	// Postgres is optional: only the latest snapshot is kept there.
	var db *store.Store
	var latest handler.LatestReader
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		readiness = append(readiness, db)
		latest = db
		logger.Info("database connected and migrated")
	}

	// Redis dedup (retry up to 30s for ExternalSecret to sync)
	var dd *dedup.Deduplicator
	if cfg.RedisURL != "" && cfg.AlertDedupTTL > 0 {
		for i := 0; i < 6; i++ {
			dd, err = dedup.New(cfg.RedisURL, cfg.RedisPassword)
			if err == nil {
				break
			}
			logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
			time.Sleep(5 * time.Second)
		}
		if err != nil {
			logger.Error("failed to connect to redis after retries", "error", err)
			os.Exit(1)
		}
		defer dd.Close()
		readiness = append(readiness, dd)
		logger.Info("redis connected for alert dedup", "ttl", cfg.AlertDedupTTL.String())
	}

	var runner *monitor.Runner
	bot := telegram.NewBot(cfg.TelegramToken, cfg.TelegramChatID, func() string {
		return monitor.FormatStatus(runner.Status())
	}, logger)

	dispatcher := monitor.NewDispatcher(bot, logger)
	if dd != nil {
		dispatcher.WithDedup(dd, cfg.AlertDedupTTL)
	}

	engine := monitor.NewEngine(cfg.Thresholds, logger)
	pool := sources.NewSubgraph(cfg.GraphGatewayURL, cfg.GraphAPIKey, cfg.SubgraphID, poolID)
	runner = monitor.NewRunner(monitor.RunnerConfig{
		Range:        cfg.Position,
		PollInterval: cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
	}, engine, pool, dispatcher, logger).
		WithGas(sources.NewEtherscan(cfg.EtherscanURL, cfg.EtherscanAPIKey))
	if db != nil {
		runner.WithRecorder(db)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		bot.Run(ctx)
	}()

	if cfg.DailyReportCron != "" {
		reporter, err := monitor.NewReporter(cfg.DailyReportCron, runner, dispatcher, logger)
		if err != nil {
			logger.Error("failed to schedule daily report", "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			reporter.Run(ctx)
		}()
	}

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(readiness...))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", handler.Status(runner, latest, poolID))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	// Wait for the runner to deliver its shutdown notice.
	wg.Wait()
}
