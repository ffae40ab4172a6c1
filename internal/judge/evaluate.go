package judge

import (
	"fmt"
	"strings"

	"github.com/dontdude/gograde/internal/domain"
)

// Evaluate grades one outcome against the limits that spec applied. Only a
// clean exit whose trimmed stdout equals the trimmed, non-empty expected
// output is correct.
func Evaluate(tc domain.TestCase, spec domain.RunSpec, out domain.ExecutionOutcome) domain.Verdict {
	applied := spec.Timeout
	v := domain.Verdict{
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		Timeout:        domain.Seconds(applied.Seconds()),
		SizeOut:        tc.SizeOut,
		TimeMs:         out.Elapsed.Milliseconds(),
	}

	switch out.Exit {
	case domain.ExitSuccess:
		v.Result = out.Stdout
		expected := strings.TrimSpace(tc.ExpectedOutput)
		v.Correct = expected != "" && strings.TrimSpace(out.Stdout) == expected
		v.Status = domain.StatusWrongAnswer
		if v.Correct {
			v.Status = domain.StatusAccepted
		}
	case domain.ExitTimeout:
		v.Status = domain.StatusTimeLimit
		v.Result = fmt.Sprintf("Timeout exceeded (%dms)", applied.Milliseconds())
	case domain.ExitOutputLimit:
		v.Status = domain.StatusOutputLimit
		v.Result = fmt.Sprintf("Output limit exceeded (%d bytes)", spec.MaxOutput)
	case domain.ExitNonZero:
		v.Status = domain.StatusRuntimeError
		v.Result = runtimeErrorText(out)
	default:
		v.Status = domain.StatusInternalError
		v.Result = out.Reason
	}
	return v
}

func runtimeErrorText(out domain.ExecutionOutcome) string {
	var head string
	switch {
	case out.Signal != "":
		head = fmt.Sprintf("Runtime error (signal: %s)", out.Signal)
	case out.Reason != "":
		head = fmt.Sprintf("Runtime error (%s)", out.Reason)
	default:
		head = fmt.Sprintf("Runtime error (exit code %d)", out.ExitCode)
	}
	return head + "\n" + out.Stderr
}

// compileFailureVerdict is the single entry published when a build fails.
func compileFailureVerdict(err *domain.CompileError) domain.Verdict {
	result := "Compilation failed"
	if err.TimedOut {
		result = fmt.Sprintf("Compilation timed out (%dms)", err.Budget.Milliseconds())
	} else if err.Output != "" {
		result += "\n" + err.Output
	}
	return domain.Verdict{Result: result, Status: domain.StatusCompileError}
}

// internalErrorVerdict is the single entry published when the job itself is unusable.
func internalErrorVerdict(msg string) domain.Verdict {
	return domain.Verdict{Result: msg, Status: domain.StatusInternalError}
}
