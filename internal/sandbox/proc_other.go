//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

// isolateGroup keeps exec's default cancellation (Process.Kill) where process
// groups are not available.
func isolateGroup(cmd *exec.Cmd) {}

func exitSignal(state *os.ProcessState) string { return "" }
