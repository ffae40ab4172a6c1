package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dontdude/gograde/internal/domain"
)

// Publisher writes a worker's verdicts and completion flag. It tries once;
// a failed store write is reported to the caller and never retried.
type Publisher struct {
	sink      domain.ResultSink
	worker    string
	resultTTL time.Duration
	statusTTL time.Duration
	logger    *slog.Logger
}

func NewPublisher(sink domain.ResultSink, worker string, resultTTL, statusTTL time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		sink:      sink,
		worker:    worker,
		resultTTL: resultTTL,
		statusTTL: statusTTL,
		logger:    logger,
	}
}

// Publish stores verdicts under job:<id>:worker:<identity>, then flags the
// worker as completed in job:<id>:status. The completion event is sent last
// and its failure only logs.
func (p *Publisher) Publish(ctx context.Context, jobID, outcome string, verdicts []domain.Verdict) error {
	payload, err := json.Marshal(verdicts)
	if err != nil {
		return fmt.Errorf("%w: encode verdicts: %v", domain.ErrPublish, err)
	}

	if err := p.sink.PutResult(ctx, domain.ResultKey(jobID, p.worker), payload, p.resultTTL); err != nil {
		return fmt.Errorf("%w: write result: %v", domain.ErrPublish, err)
	}
	if err := p.sink.MarkStatus(ctx, domain.StatusKey(jobID), p.worker, domain.StatusCompleted, p.statusTTL); err != nil {
		return fmt.Errorf("%w: write status: %v", domain.ErrPublish, err)
	}

	event := domain.JobEvent{
		JobID:   jobID,
		Worker:  p.worker,
		Outcome: outcome,
		Passed:  domain.CountPassed(verdicts),
		Total:   len(verdicts),
	}
	if err := p.sink.Broadcast(ctx, event); err != nil {
		p.logger.Warn("Failed to broadcast completion", "job_id", jobID, "err", err)
	}
	return nil
}
