package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yoppiari/loopingflow/internal/credits"
	"github.com/yoppiari/loopingflow/internal/ffmpeg"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/orchestrator"
	"github.com/yoppiari/loopingflow/internal/probe"
	"github.com/yoppiari/loopingflow/internal/progress"
	"github.com/yoppiari/loopingflow/internal/storage"
	"github.com/yoppiari/loopingflow/internal/store"
)

// The poll worker claims pending jobs straight from postgres. It runs with
// or without Redis; without it, progress reporting is simply skipped.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	var progressCache *progress.Cache
	if cfg.QueueEnabled() {
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: redis unavailable, progress reporting disabled")
		} else {
			defer rdb.Close()
			progressCache = progress.New(rdb)
		}
	}

	orch := &orchestrator.Orchestrator{
		Store:   store.New(runner),
		Credits: credits.NewLedger(runner),
		Prober:  &probe.Prober{Binary: cfg.FFprobePath},
		Runner: &ffmpeg.Executor{
			Binary:  cfg.FFmpegPath,
			Timeout: cfg.RenderTimeout,
		},
		Files:      fileStore,
		Progress:   progressCache,
		Logger:     logger,
		ScratchDir: cfg.ScratchDir,
	}

	poller := &orchestrator.Poller{
		Orchestrator: orch,
		Interval:     cfg.PollInterval,
	}

	logger.Info().Msg("worker: started")
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
