// Command reviewworker runs the Pipeline Orchestrator's bounded worker
// pool: it drains the Queued backlog, runs extraction and rule evaluation
// under the per-case lock, and reclaims work left behind by a crashed
// peer. It shares its database and Redis lock backend with cmd/reviewapi
// but never serves HTTP.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"

	"github.com/nordicgov/citizenship-review/pkg/artifacts"
	"github.com/nordicgov/citizenship-review/pkg/config"
	"github.com/nordicgov/citizenship-review/pkg/dictionaries"
	"github.com/nordicgov/citizenship-review/pkg/extractor"
	"github.com/nordicgov/citizenship-review/pkg/orchestrator"
	"github.com/nordicgov/citizenship-review/pkg/priority"
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
		WorkerIDPrefix: "reviewworker",
	})

	logger.Info("reviewworker starting", "pool_size", cfg.WorkerPoolSize)
	orch.Run(ctx)
	logger.Info("reviewworker stopped")
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
