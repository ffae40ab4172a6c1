package docker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dontdude/gograde/internal/domain"
	"github.com/dontdude/gograde/internal/sandbox"
)

func TestImagesFor(t *testing.T) {
	im := Images{Native: "gcc", JVM: "jre", Python: "py", Node: "node"}
	tests := []struct {
		spec domain.RunSpec
		want string
	}{
		{domain.RunSpec{Kind: domain.KindNative, Argv: []string{"./main"}}, "gcc"},
		{domain.RunSpec{Kind: domain.KindJVM, Argv: []string{"java"}}, "jre"},
		{domain.RunSpec{Kind: domain.KindScript, Argv: []string{"python3", "main.py"}}, "py"},
		{domain.RunSpec{Kind: domain.KindScript, Argv: []string{"/usr/bin/node", "main.js"}}, "node"},
		{domain.RunSpec{}, ""},
	}
	for _, tt := range tests {
		if got := im.For(tt.spec); got != tt.want {
			t.Errorf("For(%v) = %q, want %q", tt.spec.Argv, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		status   int64
		waitErr  error
		cause    error
		exceeded bool
		want     domain.ExitKind
		code     int
	}{
		{"clean", 0, nil, nil, false, domain.ExitSuccess, 0},
		{"nonzero", 3, nil, nil, false, domain.ExitNonZero, 3},
		{"timeout", 0, sandbox.ErrTimeLimit, sandbox.ErrTimeLimit, false, domain.ExitTimeout, -1},
		{"late timer after clean exit", 0, nil, sandbox.ErrTimeLimit, false, domain.ExitSuccess, 0},
		{"late timer after nonzero exit", 2, nil, sandbox.ErrTimeLimit, false, domain.ExitNonZero, 2},
		{"output cap wins over clean exit", 0, nil, sandbox.ErrOutputLimit, true, domain.ExitOutputLimit, -1},
		{"daemon error", 0, errors.New("wait failed"), nil, false, domain.ExitAborted, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out domain.ExecutionOutcome
			classify(&out, tt.status, tt.waitErr, tt.cause, tt.exceeded)
			if out.Exit != tt.want || out.ExitCode != tt.code {
				t.Errorf("got %v/%d, want %v/%d", out.Exit, out.ExitCode, tt.want, tt.code)
			}
		})
	}
}

// Runs only where a Docker daemon is explicitly made available.
func TestExecutorAgainstDaemon(t *testing.T) {
	if os.Getenv("DOCKER_INTEGRATION") == "" {
		t.Skip("set DOCKER_INTEGRATION=1 to run against a local daemon")
	}
	ctx := context.Background()
	e, err := NewExecutor(ctx, Options{
		Images:      Images{Python: "python:3.12-alpine"},
		MemoryBytes: 128 << 20,
		PullTimeout: 5 * time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	defer e.Close()

	dir := t.TempDir()
	if err := os.WriteFile(dir+"/main.py", []byte("print('echo_input: ' + input())"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := e.Execute(ctx, domain.RunSpec{
		Kind:      domain.KindScript,
		Argv:      []string{"python3", "main.py"},
		Dir:       dir,
		Stdin:     "hello\n",
		Timeout:   10 * time.Second,
		MaxOutput: 1024,
	})
	if out.Exit != domain.ExitSuccess || strings.TrimSpace(out.Stdout) != "echo_input: hello" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}
