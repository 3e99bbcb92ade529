// Command reviewapi serves the versioned HTTP surface for the citizenship
// case-review pipeline: login/signup, case and document CRUD, processing
// and review-decision endpoints, and the advisory/review-queue reads. The
// background extraction and rule-evaluation workers run as a separate
// process (cmd/reviewworker); this binary only ever queues work.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"

	"github.com/nordicgov/citizenship-review/pkg/advisory"
	"github.com/nordicgov/citizenship-review/pkg/artifacts"
	"github.com/nordicgov/citizenship-review/pkg/auth"
	"github.com/nordicgov/citizenship-review/pkg/config"
	"github.com/nordicgov/citizenship-review/pkg/dictionaries"
	"github.com/nordicgov/citizenship-review/pkg/extractor"
	"github.com/nordicgov/citizenship-review/pkg/observability"
	"github.com/nordicgov/citizenship-review/pkg/orchestrator"
	"github.com/nordicgov/citizenship-review/pkg/priority"
	"github.com/nordicgov/citizenship-review/pkg/queue"
	"github.com/nordicgov/citizenship-review/pkg/server"
	"github.com/nordicgov/citizenship-review/pkg/store"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DBURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to reach database", "error", err)
		os.Exit(1)
	}

	caseStore := store.New(db)

	documents, err := artifacts.NewStoreFromConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize document store", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to parse REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	locker := orchestrator.NewRedisCaseLocker(redisClient)

	dict, err := dictionaries.Load(cfg.DictionariesDir)
	if err != nil {
		logger.Error("failed to load dictionaries", "error", err)
		os.Exit(1)
	}
	ex := extractor.New(dict, extractor.WithTimeout(cfg.ExtractorTimeout))

	orch := orchestrator.New(caseStore, locker, ex, server.NewDocumentReader(documents), logger, orchestrator.Options{
		PoolSize:     cfg.WorkerPoolSize,
		StaleLockTTL: cfg.StaleLockTTL,
		SLAWindow: priority.SLAWindow{
			LowDays:    cfg.SLAWindowLowDays,
			MediumDays: cfg.SLAWindowMediumDays,
			HighDays:   cfg.SLAWindowHighDays,
		},
		WorkerIDPrefix: "reviewapi",
	})

	q := queue.New(caseStore, cfg.DailyManualCapacity, cfg.HighPriorityThresh)

	var generator advisory.Generator
	if cfg.AdvisoryBaseURL != "" {
		generator = advisory.NewHTTPGenerator(cfg.AdvisoryBaseURL, cfg.AdvisoryAPIKey, cfg.AdvisoryTemperature, cfg.AdvisoryTimeout)
	}
	advisor, err := advisory.New(caseStore, generator)
	if err != nil {
		logger.Error("failed to initialize advisor", "error", err)
		os.Exit(1)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = "reviewapi"
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	srv := &server.Server{
		Store:        caseStore,
		Documents:    documents,
		Orchestrator: orch,
		Queue:        q,
		Advisor:      advisor,
		Tokens:       auth.NewTokenManager(cfg.SecretKey, cfg.AccessTTL),
		Config:       cfg,
		Obs:          obs,
		Log:          logger,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("reviewapi listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
