// Package sandbox runs submissions as host processes with a wall-clock budget
// and bounded output capture. It is containment, not isolation.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/dontdude/gograde/internal/domain"
)

// Cancellation causes recorded when an executor kills a run.
var (
	ErrTimeLimit   = errors.New("time limit exceeded")
	ErrOutputLimit = errors.New("output limit exceeded")
)

// defaultWaitDelay bounds how long Wait keeps draining pipes after the kill,
// in case a grandchild escaped the process group and still holds them open.
const defaultWaitDelay = 500 * time.Millisecond

// ProcessExecutor implements domain.Executor with os/exec.
type ProcessExecutor struct {
	logger    *slog.Logger
	waitDelay time.Duration
}

var _ domain.Executor = (*ProcessExecutor)(nil)

func NewProcessExecutor(logger *slog.Logger) *ProcessExecutor {
	return &ProcessExecutor{logger: logger, waitDelay: defaultWaitDelay}
}

// Execute starts the process, feeds Stdin, and races it against the timer.
// The timer and the output cap both end the run with a SIGKILL to the whole
// process group.
func (e *ProcessExecutor) Execute(ctx context.Context, spec domain.RunSpec) domain.ExecutionOutcome {
	if len(spec.Argv) == 0 {
		return domain.ExecutionOutcome{Exit: domain.ExitSpawnFailure, Reason: "Failed to start process: empty command"}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	cmd := exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdin = strings.NewReader(spec.Stdin)
	stdout := NewCappedBuffer(spec.MaxOutput, func() { cancel(ErrOutputLimit) })
	stderr := NewCappedBuffer(spec.MaxOutput, func() { cancel(ErrOutputLimit) })
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = e.waitDelay
	isolateGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return domain.ExecutionOutcome{
			Exit:   domain.ExitSpawnFailure,
			Reason: fmt.Sprintf("Failed to start process: %v", err),
		}
	}

	var timer *time.Timer
	if spec.Timeout > 0 {
		timer = time.AfterFunc(spec.Timeout, func() { cancel(ErrTimeLimit) })
	}
	waitErr := cmd.Wait()
	if timer != nil {
		timer.Stop()
	}

	out := domain.ExecutionOutcome{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}
	classify(&out, waitErr, context.Cause(runCtx), stdout.Exceeded() || stderr.Exceeded())

	e.logger.Debug("process finished",
		"argv0", spec.Argv[0],
		"exit", out.Exit,
		"exit_code", out.ExitCode,
		"duration_ms", out.Elapsed.Milliseconds())
	return out
}

// classify maps Wait's error and the cancellation cause onto an ExitKind.
// Output past the cap is always reported, even if the process managed to exit
// before the kill landed. Otherwise a clean exit wins over a late timer.
func classify(out *domain.ExecutionOutcome, waitErr, cause error, exceeded bool) {
	switch {
	case waitErr != nil && errors.Is(cause, ErrTimeLimit):
		out.Exit = domain.ExitTimeout
		out.TimedOut = true
		out.ExitCode = -1
		return
	case exceeded:
		out.Exit = domain.ExitOutputLimit
		out.ExitCode = -1
		return
	case waitErr == nil:
		out.Exit = domain.ExitSuccess
		return
	case cause != nil:
		out.Exit = domain.ExitAborted
		out.ExitCode = -1
		out.Reason = fmt.Sprintf("Execution aborted: %v", cause)
		return
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		out.Exit = domain.ExitNonZero
		out.ExitCode = exitErr.ExitCode()
		out.Signal = exitSignal(exitErr.ProcessState)
		return
	}

	// Wait failed without an exit status, e.g. WaitDelay expired on a leaked pipe.
	out.Exit = domain.ExitNonZero
	out.ExitCode = -1
	out.Reason = waitErr.Error()
}
