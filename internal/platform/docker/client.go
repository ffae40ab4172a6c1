// Package docker runs test cases inside throwaway containers. The job
// workspace is bind-mounted at /work, so the same relative argv that runs on
// the host runs in the container.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/dontdude/gograde/internal/domain"
	"github.com/dontdude/gograde/internal/sandbox"
)

const workMount = "/work"

// Images picks the runtime image per strategy.
type Images struct {
	Native string
	JVM    string
	Python string
	Node   string
}

// For returns the image for a run, or "" when none is configured.
func (im Images) For(spec domain.RunSpec) string {
	switch spec.Kind {
	case domain.KindNative:
		return im.Native
	case domain.KindJVM:
		return im.JVM
	case domain.KindScript:
		if len(spec.Argv) > 0 && strings.Contains(filepath.Base(spec.Argv[0]), "node") {
			return im.Node
		}
		return im.Python
	}
	return ""
}

// Options tune container limits.
type Options struct {
	Images      Images
	MemoryBytes int64
	PullTimeout time.Duration
}

// Executor implements domain.Executor with one container per run.
type Executor struct {
	cli    *client.Client
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	pulled map[string]bool
}

// Check if Executor implements domain.Executor
var _ domain.Executor = (*Executor)(nil)

// NewExecutor connects to the daemon from the environment and pings it.
func NewExecutor(ctx context.Context, opts Options, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("connect to docker daemon: %w", err)
	}
	logger.Info("Docker client initialized")
	return &Executor{cli: cli, opts: opts, logger: logger, pulled: make(map[string]bool)}, nil
}

func (e *Executor) Close() error {
	return e.cli.Close()
}

// ensureImage pulls ref once per process.
func (e *Executor) ensureImage(ctx context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pulled[ref] {
		return nil
	}

	if e.opts.PullTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.PullTimeout)
		defer cancel()
	}
	e.logger.Info("Pulling image", "image", ref)
	reader, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	// Drain the response body to ensure the pull completes properly.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	e.pulled[ref] = true
	return nil
}

// Execute creates, attaches, starts and waits on a container. The timer and
// the output cap both end the run with a container kill.
func (e *Executor) Execute(ctx context.Context, spec domain.RunSpec) domain.ExecutionOutcome {
	ref := e.opts.Images.For(spec)
	if ref == "" {
		return domain.ExecutionOutcome{Exit: domain.ExitUnsupported, Reason: fmt.Sprintf("No container image for %s", spec.Kind)}
	}
	if len(spec.Argv) == 0 {
		return spawnFailure(errors.New("empty command"))
	}
	if err := e.ensureImage(ctx, ref); err != nil {
		return spawnFailure(err)
	}
	hostDir, err := filepath.Abs(spec.Dir)
	if err != nil {
		return spawnFailure(err)
	}

	pids := int64(64)
	resp, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image:           ref,
		Cmd:             spec.Argv,
		WorkingDir:      workMount,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		OpenStdin:       true,
		StdinOnce:       true,
		NetworkDisabled: true,
	}, &container.HostConfig{
		Binds: []string{hostDir + ":" + workMount},
		Resources: container.Resources{
			Memory:    e.opts.MemoryBytes,
			PidsLimit: &pids,
		},
	}, nil, nil, "")
	if err != nil {
		return spawnFailure(fmt.Errorf("create container: %w", err))
	}
	id := resp.ID
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := e.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Warn("Failed to remove container", "container_id", id, "err", err)
		}
	}()

	hijacked, err := e.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return spawnFailure(fmt.Errorf("attach container: %w", err))
	}
	defer hijacked.Close()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stdout := sandbox.NewCappedBuffer(spec.MaxOutput, func() { cancel(sandbox.ErrOutputLimit) })
	stderr := sandbox.NewCappedBuffer(spec.MaxOutput, func() { cancel(sandbox.ErrOutputLimit) })

	copied := make(chan struct{})
	go func() {
		defer close(copied)
		_, _ = stdcopy.StdCopy(stdout, stderr, hijacked.Reader)
	}()

	start := time.Now()
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return spawnFailure(fmt.Errorf("start container: %w", err))
	}
	go func() {
		_, _ = io.Copy(hijacked.Conn, strings.NewReader(spec.Stdin))
		_ = hijacked.CloseWrite()
	}()

	var timer *time.Timer
	if spec.Timeout > 0 {
		timer = time.AfterFunc(spec.Timeout, func() { cancel(sandbox.ErrTimeLimit) })
	}

	statusCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	var (
		status  int64
		waitErr error
	)
	select {
	case st := <-statusCh:
		status = st.StatusCode
		if st.Error != nil {
			waitErr = errors.New(st.Error.Message)
		}
	case waitErr = <-errCh:
	case <-runCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := e.cli.ContainerKill(killCtx, id, "KILL"); err != nil {
			e.logger.Debug("Container kill failed", "container_id", id, "err", err)
		}
		killCancel()
		waitErr = context.Cause(runCtx)
	}
	if timer != nil {
		timer.Stop()
	}
	elapsed := time.Since(start)

	// The stream ends once the container exits; do not hang on a stuck daemon.
	select {
	case <-copied:
	case <-time.After(2 * time.Second):
	}

	out := domain.ExecutionOutcome{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: elapsed,
	}
	classify(&out, status, waitErr, context.Cause(runCtx), stdout.Exceeded() || stderr.Exceeded())

	e.logger.Debug("container finished",
		"image", ref,
		"exit", out.Exit,
		"exit_code", out.ExitCode,
		"duration_ms", out.Elapsed.Milliseconds())
	return out
}

func spawnFailure(err error) domain.ExecutionOutcome {
	return domain.ExecutionOutcome{
		Exit:   domain.ExitSpawnFailure,
		Reason: fmt.Sprintf("Failed to start process: %v", err),
	}
}

// classify mirrors the host executor's precedence: timeout, output cap,
// clean exit, abort, then a plain nonzero status. A timer that fires after
// the container already exited does not count.
func classify(out *domain.ExecutionOutcome, status int64, waitErr, cause error, exceeded bool) {
	switch {
	case waitErr != nil && errors.Is(cause, sandbox.ErrTimeLimit):
		out.Exit = domain.ExitTimeout
		out.TimedOut = true
		out.ExitCode = -1
	case exceeded:
		out.Exit = domain.ExitOutputLimit
		out.ExitCode = -1
	case waitErr == nil && status == 0:
		out.Exit = domain.ExitSuccess
	case waitErr != nil:
		out.Exit = domain.ExitAborted
		out.ExitCode = -1
		out.Reason = fmt.Sprintf("Execution aborted: %v", waitErr)
	default:
		out.Exit = domain.ExitNonZero
		out.ExitCode = int(status)
		if status == 137 {
			out.Signal = "killed"
		}
	}
}
