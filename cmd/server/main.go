package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dontdude/gograde/internal/config"
	"github.com/dontdude/gograde/internal/platform/logging"
	"github.com/dontdude/gograde/internal/platform/queue"
	"github.com/dontdude/gograde/internal/platform/web"
	"github.com/dontdude/gograde/internal/submit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config and initialize logger
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.NoColor)
	slog.SetDefault(logger)

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

	// 3. Relay completion events to WebSocket clients
	h := newHub(logger)
	events, err := store.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	go h.forward(ctx, events)

	// 4. Rate limiter with background eviction
	limiter := web.NewRateLimiter(cfg.RatePerSec, cfg.RateBurst)
	go limiter.Run(ctx)

	a := &api{
		svc:     submit.NewService(store, cfg.Workers, cfg.JobTTL, logger),
		hub:     h,
		limiter: limiter,
		origins: cfg.AllowedOrigins,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
		started: time.Now(),
		logger:  logger,
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server starting", "port", cfg.Port, "workers", cfg.Workers)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("Shutting down API server")
	return srv.Shutdown(shutdownCtx)
}

// originChecker accepts any origin when "*" is configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
