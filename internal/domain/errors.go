package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQueueEmpty          = errors.New("queue empty")
	ErrPartitionMissing    = errors.New("no test cases assigned to this worker")
	ErrMalformedJob        = errors.New("malformed job")
	ErrCompile             = errors.New("compilation failed")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrPublish             = errors.New("publish failed")
	ErrJobNotFound         = errors.New("job not found")
)

// CompileError is returned when the toolchain rejects a submission.
type CompileError struct {
	Output   string
	TimedOut bool
	Budget   time.Duration
	ExitCode int
}

func (e *CompileError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("compilation timed out after %s", e.Budget)
	}
	return fmt.Sprintf("compilation failed with exit code %d", e.ExitCode)
}

func (e *CompileError) Unwrap() error { return ErrCompile }
