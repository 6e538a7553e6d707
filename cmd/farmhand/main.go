// Command farmhand runs a standalone worker process: it connects to Redis,
// starts the worker pool and the cleanup daemon, and shuts down gracefully on
// SIGINT/SIGTERM.
//
// The built-in handler only echoes job payloads back as results; real
// deployments embed the queue package and supply their own handler via
// queue.WithHandler.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthrax3/farmhand/core/config"
	"github.com/anthrax3/farmhand/core/logger"
	"github.com/anthrax3/farmhand/core/queue"
	redisdb "github.com/anthrax3/farmhand/integration/database/redis"
)

type appConfig struct {
	Redis redisdb.Config
	Queue queue.Config

	AppName  string `env:"APP_NAME" envDefault:"farmhand"`
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := redisdb.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", logger.Error(err))
		os.Exit(1)
	}

	fctx, err := queue.NewContextFromConfig(cfg.Queue, client,
		queue.WithHandler(echoHandler),
		queue.WithContextLogger(log),
	)
	if err != nil {
		log.Error("failed to create queue context", logger.Error(err))
		os.Exit(1)
	}

	srv, err := queue.NewServerFromConfig(cfg.Queue, fctx,
		queue.WithServerLogger(log),
		queue.WithPoolOptions(
			queue.WithNumWorkers(cfg.Queue.NumWorkers),
			queue.WithPollInterval(cfg.Queue.PollInterval),
			queue.WithPoolLogger(log),
		),
		queue.WithDaemonOptions(
			queue.WithCleanupInterval(cfg.Queue.CleanupInterval),
			queue.WithDaemonLogger(log),
		),
		queue.WithCloseClientOnStop(),
	)
	if err != nil {
		log.Error("failed to create queue server", logger.Error(err))
		os.Exit(1)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("farmhand worker starting",
		logger.Component("server"),
		slog.Int("workers", cfg.Queue.NumWorkers),
		slog.Any("queues", cfg.Queue.Queues))

	if err := srv.Run(ctx); err != nil {
		log.Error("queue server exited with error", logger.Error(err))
		os.Exit(1)
	}

	log.Info("farmhand worker stopped")
}

// echoHandler returns the job payload as its result. It exists so the binary
// can run end-to-end against a real Redis without application code.
func echoHandler(ctx context.Context, job *queue.Job) (any, error) {
	return job.Payload, nil
}

func newLogger(cfg appConfig) *slog.Logger {
	opts := []logger.Option{}
	if cfg.Env == "production" {
		opts = append(opts, logger.WithProduction(cfg.AppName))
	} else {
		opts = append(opts, logger.WithDevelopment(cfg.AppName))
	}
	if cfg.LogLevel == "debug" {
		opts = append(opts, logger.WithLevel(slog.LevelDebug))
	}
	return logger.New(opts...)
}
