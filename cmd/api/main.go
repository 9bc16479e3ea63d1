package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	httpapi "github.com/yoppiari/loopingflow/internal/http"
	"github.com/yoppiari/loopingflow/internal/http/handlers"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/probe"
	"github.com/yoppiari/loopingflow/internal/progress"
	"github.com/yoppiari/loopingflow/internal/queue"
	"github.com/yoppiari/loopingflow/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	// Redis is optional. Without it jobs still render through the
	// database poller; the API just loses enqueue and live progress.
	var (
		enqueuer      *queue.Enqueuer
		progressCache *progress.Cache
	)
	if cfg.QueueEnabled() {
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		progressCache = progress.New(rdb)

		asynqClient := asynq.NewClient(infra.AsynqRedisOpt(cfg))
		defer asynqClient.Close()
		enqueuer = queue.NewEnqueuer(asynqClient, logger)
	} else {
		logger.Warn().Msg("redis not configured, running poll-only")
	}

	app := handlers.NewApp(runner, logger)
	app.Files = fileStore
	app.Queue = enqueuer
	app.Progress = progressCache
	app.Prober = &probe.Prober{Binary: cfg.FFprobePath}
	app.MaxUploadBytes = cfg.MaxUploadBytes

	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
