// Package judge implements the per-job grading pipeline:
// materialize, compile, run every test case concurrently, evaluate, publish, clean up.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/dontdude/gograde/internal/domain"
	"github.com/dontdude/gograde/internal/toolchain"
)

// Limits bounds every test case run.
type Limits struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	DefaultOutput  int64
	// MaxParallel caps concurrent test-case processes; 0 runs them all at once.
	MaxParallel int
}

// Timeout clamps a requested budget into (0, MaxTimeout]. The ceiling is
// compared in seconds so huge requests cannot overflow a Duration.
func (l Limits) Timeout(requested domain.Seconds) time.Duration {
	secs := float64(requested)
	if l.MaxTimeout > 0 && secs > l.MaxTimeout.Seconds() {
		return l.MaxTimeout
	}
	var d time.Duration
	if secs > 0 && secs < math.MaxInt64/float64(time.Second) {
		d = requested.Duration()
	}
	if d <= 0 {
		d = l.DefaultTimeout
	}
	if l.MaxTimeout > 0 && d > l.MaxTimeout {
		d = l.MaxTimeout
	}
	return d
}

// Output resolves the capture cap in bytes.
func (l Limits) Output(requested domain.Kilobytes) int64 {
	if b := requested.Bytes(); b > 0 {
		return b
	}
	return l.DefaultOutput
}

// Deps wires the pipeline's collaborators.
type Deps struct {
	Materializer *Materializer
	Registry     *toolchain.Registry
	Compiler     *Compiler
	Executor     domain.Executor
	Publisher    *Publisher
	// Recorder is optional.
	Recorder domain.Recorder
	Logger   *slog.Logger
}

// Pipeline grades one job at a time for a single worker identity.
type Pipeline struct {
	worker  string
	workDir string
	limits  Limits
	Deps
}

func NewPipeline(worker, workDir string, limits Limits, deps Deps) *Pipeline {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Pipeline{worker: worker, workDir: workDir, limits: limits, Deps: deps}
}

// Process runs the whole pipeline for jobID. Test-case failures never surface
// as errors; the returned error is a job-level failure for the caller to log.
func (p *Pipeline) Process(ctx context.Context, jobID string) error {
	start := time.Now()
	log := p.Logger.With("job_id", jobID)

	job, err := p.Materializer.Load(ctx, jobID)
	switch {
	case errors.Is(err, domain.ErrPartitionMissing):
		log.Debug("No test cases for this worker, skipping")
		return nil
	case errors.Is(err, domain.ErrMalformedJob):
		// Nothing is published; the ledger still records the rejection.
		p.record(ctx, job, domain.OutcomeMalformed, 0, 0, start)
		return err
	case err != nil:
		return err
	}
	log.Info("Job materialized", "language", job.Language, "test_cases", len(job.TestCases))

	lang, err := p.Registry.Resolve(job.Language)
	if err != nil {
		reason := fmt.Sprintf("Unsupported language: %s", job.Language)
		verdicts := make([]domain.Verdict, len(job.TestCases))
		for i, tc := range job.TestCases {
			spec := p.runSpec(toolchain.Language{}, "", tc)
			verdicts[i] = Evaluate(tc, spec, domain.ExecutionOutcome{Exit: domain.ExitUnsupported, Reason: reason})
		}
		log.Warn("Unsupported language", "language", job.Language)
		return p.finish(ctx, job, domain.OutcomeUnsupported, verdicts, start)
	}

	dir, err := p.prepareWorkspace(job, lang)
	if err != nil {
		pubErr := p.finish(ctx, job, domain.OutcomeInternal, []domain.Verdict{internalErrorVerdict("Internal error: " + err.Error())}, start)
		return errors.Join(err, pubErr)
	}
	defer p.cleanup(log, dir)

	if err := p.Compiler.Compile(ctx, lang, dir); err != nil {
		var ce *domain.CompileError
		if !errors.As(err, &ce) {
			return err
		}
		log.Info("Compilation failed", "err", ce)
		return p.finish(ctx, job, domain.OutcomeCompileError, []domain.Verdict{compileFailureVerdict(ce)}, start)
	}

	verdicts := p.runAll(ctx, job, lang, dir)
	return p.finish(ctx, job, domain.OutcomeGraded, verdicts, start)
}

// runAll fans the test cases out and joins them. Each goroutine owns its
// slot in verdicts, so input order is preserved without locking.
func (p *Pipeline) runAll(ctx context.Context, job domain.Job, lang toolchain.Language, dir string) []domain.Verdict {
	verdicts := make([]domain.Verdict, len(job.TestCases))

	var g errgroup.Group
	if p.limits.MaxParallel > 0 {
		g.SetLimit(p.limits.MaxParallel)
	}
	for i, tc := range job.TestCases {
		g.Go(func() error {
			spec := p.runSpec(lang, dir, tc)
			defer func() {
				if r := recover(); r != nil {
					p.Logger.Error("Test case panicked", "job_id", job.ID, "test_index", i, "panic", r)
					verdicts[i] = Evaluate(tc, spec, domain.ExecutionOutcome{
						Exit:   domain.ExitSpawnFailure,
						Reason: fmt.Sprintf("Internal error: %v", r),
					})
				}
			}()
			out := p.Executor.Execute(ctx, spec)
			verdicts[i] = Evaluate(tc, spec, out)
			p.Logger.Debug("Test case graded",
				"job_id", job.ID,
				"test_index", i,
				"status", verdicts[i].Status,
				"duration_ms", out.Elapsed.Milliseconds())
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

func (p *Pipeline) runSpec(lang toolchain.Language, dir string, tc domain.TestCase) domain.RunSpec {
	return domain.RunSpec{
		Kind:      lang.Kind,
		Argv:      lang.RunArgv,
		Dir:       dir,
		Stdin:     normalizeInput(tc.Input),
		Timeout:   p.limits.Timeout(tc.Timeout),
		MaxOutput: p.limits.Output(tc.SizeOut),
	}
}

func (p *Pipeline) finish(ctx context.Context, job domain.Job, outcome string, verdicts []domain.Verdict, start time.Time) error {
	err := p.Publisher.Publish(ctx, job.ID, outcome, verdicts)
	passed := domain.CountPassed(verdicts)
	p.Logger.Info("Job finished",
		"job_id", job.ID,
		"outcome", outcome,
		"passed", passed,
		"total", len(verdicts),
		"duration_ms", time.Since(start).Milliseconds(),
		"published", err == nil)
	p.record(ctx, job, outcome, passed, len(verdicts), start)
	return err
}

func (p *Pipeline) record(ctx context.Context, job domain.Job, outcome string, passed, total int, start time.Time) {
	if p.Recorder == nil || job.ID == "" {
		return
	}
	rec := domain.JobRecord{
		JobID:      job.ID,
		Worker:     p.worker,
		Language:   job.Language,
		Outcome:    outcome,
		Passed:     passed,
		Total:      total,
		Duration:   time.Since(start),
		FinishedAt: time.Now().UTC(),
	}
	if err := p.Recorder.Record(ctx, rec); err != nil {
		p.Logger.Warn("Failed to record job", "job_id", job.ID, "err", err)
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// prepareWorkspace creates a private directory for the job and writes the source into it.
func (p *Pipeline) prepareWorkspace(job domain.Job, lang toolchain.Language) (string, error) {
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	prefix := unsafeName.ReplaceAllString(job.ID+"_"+p.worker, "_") + "-"
	dir, err := os.MkdirTemp(p.workDir, prefix)
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, lang.SourceFile), []byte(job.Code), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write source: %w", err)
	}
	return dir, nil
}

// cleanup removes source and artifact together. A missing directory is not an error.
func (p *Pipeline) cleanup(log *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Warn("Failed to remove workspace", "dir", dir, "err", err)
	}
}

// normalizeInput converts CRLF to LF, trims trailing whitespace and ends with one newline.
func normalizeInput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimRightFunc(s, unicode.IsSpace) + "\n"
}
