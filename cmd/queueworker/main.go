package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/yoppiari/loopingflow/internal/credits"
	"github.com/yoppiari/loopingflow/internal/ffmpeg"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/orchestrator"
	"github.com/yoppiari/loopingflow/internal/probe"
	"github.com/yoppiari/loopingflow/internal/progress"
	"github.com/yoppiari/loopingflow/internal/queue"
	"github.com/yoppiari/loopingflow/internal/storage"
	"github.com/yoppiari/loopingflow/internal/store"
)

// The queue worker consumes render tasks from Redis. It shares the claim
// logic with the poll worker, so running both at once never double-renders
// a job.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if !cfg.QueueEnabled() {
		logger.Fatal().Msg("queueworker: REDIS_ADDR is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("queueworker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("queueworker: failed to configure storage")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("queueworker: redis connection failed")
	}
	defer rdb.Close()

	orch := &orchestrator.Orchestrator{
		Store:   store.New(runner),
		Credits: credits.NewLedger(runner),
		Prober:  &probe.Prober{Binary: cfg.FFprobePath},
		Runner: &ffmpeg.Executor{
			Binary:  cfg.FFmpegPath,
			Timeout: cfg.RenderTimeout,
		},
		Files:      fileStore,
		Progress:   progress.New(rdb),
		Logger:     logger,
		ScratchDir: cfg.ScratchDir,
	}

	srv := asynq.NewServer(infra.AsynqRedisOpt(cfg), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})
	mux := asynq.NewServeMux()
	mux.Handle(queue.TypeRenderLoop, orchestrator.NewTaskHandler(orch, cfg.RendersPerSecond, cfg.RenderBurst))

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("queueworker: started")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("queueworker: stopped with error")
	}
	logger.Info().Msg("queueworker: stopped")
}
