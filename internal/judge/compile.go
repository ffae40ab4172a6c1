package judge

import (
	"context"
	"strings"
	"time"

	"github.com/dontdude/gograde/internal/domain"
	"github.com/dontdude/gograde/internal/toolchain"
)

// compileOutputCap bounds the diagnostics kept from a failing build.
const compileOutputCap = 64 * 1024

// Compiler runs the build step of compiled languages on the host.
type Compiler struct {
	executor domain.Executor
	timeout  time.Duration
}

func NewCompiler(executor domain.Executor, timeout time.Duration) *Compiler {
	return &Compiler{executor: executor, timeout: timeout}
}

// Compile builds lang's artifact inside dir. Script languages succeed
// without spawning anything. A rejected build returns *domain.CompileError.
func (c *Compiler) Compile(ctx context.Context, lang toolchain.Language, dir string) error {
	if !lang.Kind.Compiled() {
		return nil
	}

	out := c.executor.Execute(ctx, domain.RunSpec{
		Kind:      lang.Kind,
		Argv:      lang.CompileArgv,
		Dir:       dir,
		Timeout:   c.timeout,
		MaxOutput: compileOutputCap,
	})

	switch out.Exit {
	case domain.ExitSuccess:
		return nil
	case domain.ExitTimeout:
		return &domain.CompileError{TimedOut: true, Budget: c.timeout, ExitCode: -1}
	case domain.ExitSpawnFailure, domain.ExitAborted:
		return &domain.CompileError{Output: out.Reason, ExitCode: -1}
	default:
		diag := strings.TrimSpace(out.Stderr + "\n" + out.Stdout)
		return &domain.CompileError{Output: diag, ExitCode: out.ExitCode}
	}
}
