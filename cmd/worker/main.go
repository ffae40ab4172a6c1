package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dontdude/gograde/internal/config"
	"github.com/dontdude/gograde/internal/domain"
	"github.com/dontdude/gograde/internal/judge"
	"github.com/dontdude/gograde/internal/keepalive"
	"github.com/dontdude/gograde/internal/platform/docker"
	"github.com/dontdude/gograde/internal/platform/history"
	"github.com/dontdude/gograde/internal/platform/logging"
	"github.com/dontdude/gograde/internal/platform/queue"
	"github.com/dontdude/gograde/internal/platform/web"
	"github.com/dontdude/gograde/internal/sandbox"
	"github.com/dontdude/gograde/internal/toolchain"
	"github.com/dontdude/gograde/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Worker failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config and initialize logger
	cfg, err := config.LoadWorker()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.NoColor).With("worker", cfg.Field)
	slog.SetDefault(logger)
	logger.Info("Starting grading worker", "executor", cfg.Executor, "work_dir", cfg.WorkDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Coordination store (fail fast)
	store, err := queue.NewRedisStore(ctx, queue.Config{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Queue:    cfg.Redis.Queue,
		Events:   cfg.Redis.Events,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr, "queue", cfg.Redis.Queue)

	// 3. Toolchains and executors. Builds always run on the host.
	registry, err := toolchain.NewRegistry(cfg.ToolchainConfig())
	if err != nil {
		return err
	}
	host := sandbox.NewProcessExecutor(logger)
	var runner domain.Executor = host
	if cfg.Executor == "docker" {
		dx, err := docker.NewExecutor(ctx, docker.Options{
			Images: docker.Images{
				Native: cfg.Docker.NativeImage,
				JVM:    cfg.Docker.JVMImage,
				Python: cfg.Docker.PythonImage,
				Node:   cfg.Docker.NodeImage,
			},
			MemoryBytes: cfg.Docker.MemoryMB << 20,
			PullTimeout: cfg.Docker.PullTimeout,
		}, logger)
		if err != nil {
			return err
		}
		defer dx.Close()
		runner = dx
	}

	// 4. Optional job ledger
	var recorder domain.Recorder
	if cfg.HistoryDB != "" {
		ledger, err := history.Open(ctx, cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer ledger.Close()
		recorder = ledger
		logger.Info("Job ledger enabled", "path", cfg.HistoryDB)
	}

	// 5. Pipeline and poller
	pipeline := judge.NewPipeline(cfg.Field, cfg.WorkDir, judge.Limits{
		DefaultTimeout: cfg.DefaultTestTimeout,
		MaxTimeout:     cfg.MaxTestTimeout,
		DefaultOutput:  cfg.DefaultOutputKB * 1024,
		MaxParallel:    cfg.MaxParallel,
	}, judge.Deps{
		Materializer: judge.NewMaterializer(store, cfg.Field),
		Registry:     registry,
		Compiler:     judge.NewCompiler(host, cfg.CompileTimeout),
		Executor:     runner,
		Publisher:    judge.NewPublisher(store, cfg.Field, cfg.ResultTTL, cfg.StatusTTL, logger),
		Recorder:     recorder,
		Logger:       logger,
	})
	poller := worker.NewPoller(store, pipeline, cfg.PollBlock, logger)

	// 6. Liveness endpoint and keep-alive pinger
	started := time.Now()
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", web.Alive(cfg.Field))
	r.Get("/ping", web.Ping(cfg.Field, started))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Liveness server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Liveness server failed", "err", err)
			stop()
		}
	}()
	go keepalive.NewPinger(cfg.PingURLs, cfg.PingInterval, logger).Run(ctx)

	// 7. Block until shutdown; the in-flight job still publishes and cleans up.
	poller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Liveness server shutdown", "err", err)
	}
	logger.Info("Worker stopped")
	return nil
}
