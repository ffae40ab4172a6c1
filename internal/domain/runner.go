package domain

import (
	"context"
	"time"
)

// ExitKind classifies how an executed process ended.
type ExitKind int

const (
	ExitSuccess      ExitKind = iota // exited with status 0
	ExitNonZero                      // exited with a nonzero code or an uncaught signal
	ExitTimeout                      // killed because the wall-clock budget elapsed
	ExitOutputLimit                  // killed because captured output exceeded the cap
	ExitUnsupported                  // no runtime for the language; nothing was spawned
	ExitSpawnFailure                 // the process could not be started
	ExitAborted                      // the worker itself was shutting down
)

// RunSpec describes one process to execute. Argv is resolved relative to Dir.
type RunSpec struct {
	Kind      Kind
	Argv      []string
	Dir       string
	Stdin     string
	Timeout   time.Duration
	MaxOutput int64
}

// ExecutionOutcome is the raw result of running one process.
type ExecutionOutcome struct {
	Stdout   string
	Stderr   string
	Exit     ExitKind
	ExitCode int
	Signal   string
	TimedOut bool
	Elapsed  time.Duration

	// Reason carries a human-readable explanation for infrastructure failures.
	Reason string
}

// Executor runs a single process to completion under the limits in the spec.
// Implementations never return an error: every failure is folded into the outcome.
type Executor interface {
	Execute(ctx context.Context, spec RunSpec) ExecutionOutcome
}
