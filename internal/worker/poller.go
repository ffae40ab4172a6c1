// Package worker runs the queue poller: one sequential loop per process that
// hands each dequeued job to the grading pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dontdude/gograde/internal/domain"
)

// JobProcessor handles a single dequeued job.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// ProcessorFunc adapts a function to JobProcessor.
type ProcessorFunc func(ctx context.Context, jobID string) error

func (f ProcessorFunc) Process(ctx context.Context, jobID string) error { return f(ctx, jobID) }

// Poller pops job ids one at a time. A job that fails or panics is logged
// and the loop goes straight back to the queue.
type Poller struct {
	source    domain.JobSource
	processor JobProcessor
	// block bounds each pop so cancellation is noticed between pops.
	block   time.Duration
	backoff time.Duration
	logger  *slog.Logger
}

func NewPoller(source domain.JobSource, processor JobProcessor, block time.Duration, logger *slog.Logger) *Poller {
	if block <= 0 {
		block = 5 * time.Second
	}
	return &Poller{
		source:    source,
		processor: processor,
		block:     block,
		backoff:   time.Second,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled. An in-flight job is never cut short:
// it runs to publish and cleanup on a context detached from ctx.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Poller started", "block", p.block)
	defer p.logger.Info("Poller stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := p.source.Pop(ctx, p.block)
		if err != nil {
			if errors.Is(err, domain.ErrQueueEmpty) {
				continue
			}
			// Check if context canceled during blocking call
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Queue read error", "err", err)
			p.sleep(ctx, p.backoff)
			continue
		}

		p.handle(context.WithoutCancel(ctx), jobID)
	}
}

func (p *Poller) handle(ctx context.Context, jobID string) {
	start := time.Now()
	err := p.safeProcess(ctx, jobID)
	if err != nil {
		p.logger.Error("Job failed", "job_id", jobID, "err", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	p.logger.Debug("Job handled", "job_id", jobID, "duration_ms", time.Since(start).Milliseconds())
}

func (p *Poller) safeProcess(ctx context.Context, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return p.processor.Process(ctx, jobID)
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
