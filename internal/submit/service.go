// Package submit is the server side of grading: it splits a submission's
// test cases across worker identities, enqueues the job and aggregates the
// per-worker results.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dontdude/gograde/internal/domain"
)

var ErrInvalidSubmission = errors.New("invalid submission")

// Submission is one request to grade code against test cases.
type Submission struct {
	Code      string            `json:"code"`
	Language  string            `json:"language"`
	TestCases []domain.TestCase `json:"test_cases"`
}

// Receipt tells the caller where its test cases went.
type Receipt struct {
	JobID      string         `json:"job_id"`
	Status     string         `json:"status"`
	Partitions map[string]int `json:"partitions"`
}

// WorkerReport is one worker's share of a job.
type WorkerReport struct {
	Worker    string           `json:"worker"`
	Completed bool             `json:"completed"`
	Verdicts  []domain.Verdict `json:"verdicts,omitempty"`
}

// Report aggregates every partition of a job.
type Report struct {
	JobID   string         `json:"job_id"`
	Done    bool           `json:"done"`
	Passed  int            `json:"passed"`
	Total   int            `json:"total"`
	Workers []WorkerReport `json:"workers"`
}

type Service struct {
	board   domain.JobBoard
	workers []string
	ttl     time.Duration
	newID   func() string
	logger  *slog.Logger
}

func NewService(board domain.JobBoard, workers []string, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		board:   board,
		workers: workers,
		ttl:     ttl,
		newID:   func() string { return uuid.New().String() },
		logger:  logger,
	}
}

// Partition deals test cases round-robin over workers, preserving relative
// order inside each partition. Workers that receive nothing are left out.
func Partition(cases []domain.TestCase, workers []string) map[string][]domain.TestCase {
	out := make(map[string][]domain.TestCase)
	if len(workers) == 0 {
		return out
	}
	for i, tc := range cases {
		w := workers[i%len(workers)]
		out[w] = append(out[w], tc)
	}
	return out
}

// Submit validates, partitions and enqueues. One queue entry is pushed per
// non-empty partition.
func (s *Service) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if strings.TrimSpace(sub.Code) == "" {
		return Receipt{}, fmt.Errorf("%w: code is required", ErrInvalidSubmission)
	}
	if len(sub.TestCases) == 0 {
		return Receipt{}, fmt.Errorf("%w: at least one test case is required", ErrInvalidSubmission)
	}

	parts := Partition(sub.TestCases, s.workers)
	fields := map[string]string{
		domain.FieldCode:     sub.Code,
		domain.FieldLanguage: sub.Language,
	}
	counts := make(map[string]int, len(parts))
	for w, cases := range parts {
		raw, err := json.Marshal(cases)
		if err != nil {
			return Receipt{}, fmt.Errorf("encode partition for %s: %w", w, err)
		}
		fields[w] = string(raw)
		counts[w] = len(cases)
	}

	jobID := s.newID()
	if err := s.board.Submit(ctx, jobID, fields, len(parts), s.ttl); err != nil {
		return Receipt{}, fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	s.logger.Info("Job enqueued", "job_id", jobID, "language", sub.Language, "test_cases", len(sub.TestCases), "partitions", len(parts))
	return Receipt{JobID: jobID, Status: "queued", Partitions: counts}, nil
}

// Report reads every partition's status and verdicts. A result that has
// already expired reads as completed without verdicts.
func (s *Service) Report(ctx context.Context, jobID string) (Report, error) {
	workers, err := s.board.Partitions(ctx, jobID)
	if err != nil {
		return Report{}, err
	}
	sort.Strings(workers)

	status, err := s.board.Status(ctx, jobID)
	if err != nil {
		return Report{}, fmt.Errorf("read status for %s: %w", jobID, err)
	}

	rep := Report{JobID: jobID, Done: true}
	for _, w := range workers {
		wr := WorkerReport{Worker: w, Completed: status[w] == domain.StatusCompleted}
		raw, err := s.board.Result(ctx, domain.ResultKey(jobID, w))
		if err != nil {
			return Report{}, fmt.Errorf("read result for %s/%s: %w", jobID, w, err)
		}
		if raw != nil {
			if err := json.Unmarshal(raw, &wr.Verdicts); err != nil {
				return Report{}, fmt.Errorf("decode result for %s/%s: %w", jobID, w, err)
			}
		}
		if !wr.Completed {
			rep.Done = false
		}
		rep.Passed += domain.CountPassed(wr.Verdicts)
		rep.Total += len(wr.Verdicts)
		rep.Workers = append(rep.Workers, wr)
	}
	return rep, nil
}
