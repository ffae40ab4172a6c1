package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dontdude/gograde/internal/config"
	"github.com/dontdude/gograde/internal/domain"
	"github.com/dontdude/gograde/internal/platform/logging"
	"github.com/dontdude/gograde/internal/platform/queue"
	"github.com/dontdude/gograde/internal/submit"
)

// samples exercise each language strategy and the main verdict kinds.
var samples = []submit.Submission{
	{
		Language: "cpp",
		Code: `#include <iostream>
int main() { std::string s; std::cin >> s; std::cout << "echo_input: " << s << std::endl; }`,
		TestCases: []domain.TestCase{
			{Input: "hello", ExpectedOutput: "echo_input: hello"},
			{Input: "world", ExpectedOutput: "echo_input: nope"},
		},
	},
	{
		Language: "python",
		Code:     "while True:\n    pass\n",
		TestCases: []domain.TestCase{
			{Input: "", ExpectedOutput: "never", Timeout: 0.5},
		},
	},
	{
		Language: "javascript",
		Code:     "process.exit(3)",
		TestCases: []domain.TestCase{
			{Input: "", ExpectedOutput: "x"},
		},
	},
	{
		Language: "rust-nightly",
		Code:     "fn main() {}",
		TestCases: []domain.TestCase{
			{Input: "", ExpectedOutput: ""},
		},
	},
}

func main() {
	wait := flag.Duration("wait", 15*time.Second, "how long to wait for completion events (0 disables)")
	flag.Parse()

	// 1. Initialize logger and config
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.NoColor)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the store
	store, err := queue.NewRedisStore(ctx, queue.Config{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Queue:    cfg.Redis.Queue,
		Events:   cfg.Redis.Events,
	})
	if err != nil {
		logger.Error("Failed to connect to store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	var events <-chan domain.JobEvent
	if *wait > 0 {
		if events, err = store.SubscribeEvents(ctx); err != nil {
			logger.Error("Failed to subscribe", "err", err)
			os.Exit(1)
		}
	}

	// 3. Publish sample jobs
	svc := submit.NewService(store, cfg.Workers, cfg.JobTTL, logger)
	pending := make(map[string]int)
	for _, sub := range samples {
		rec, err := svc.Submit(ctx, sub)
		if err != nil {
			logger.Error("Failed to submit job", "language", sub.Language, "err", err)
			os.Exit(1)
		}
		pending[rec.JobID] = len(rec.Partitions)
	}
	logger.Info("Published sample jobs", "count", len(samples), "workers", strings.Join(cfg.Workers, ","))

	if events == nil {
		return
	}

	// 4. Wait for every partition to report
	timeout := time.After(*wait)
	for len(pending) > 0 {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, tracked := pending[ev.JobID]; !tracked {
				continue
			}
			logger.Info("Partition finished", "job_id", ev.JobID, "worker", ev.Worker, "outcome", ev.Outcome, "passed", ev.Passed, "total", ev.Total)
			if pending[ev.JobID]--; pending[ev.JobID] == 0 {
				delete(pending, ev.JobID)
			}
		case <-timeout:
			logger.Warn("Timed out waiting for workers", "pending_jobs", len(pending))
			os.Exit(1)
		case <-ctx.Done():
			return
		}
	}
	logger.Info("All sample jobs graded")
}
