// Package hooks runs the pre-push hook chain (spec §4.5): a sequence of
// shell commands that must all succeed, in order, before a push is allowed
// to touch the network.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Timeout is the per-hook budget from spec §5.
const Timeout = 120 * time.Second

// Result is the outcome of running the configured hook chain.
type Result struct {
	Success bool
	Output  string
}

// Run executes each hook in order in dir, concatenating output with
// newline separators and stopping at the first non-zero exit. Empty
// configuration is a trivial success.
func Run(ctx context.Context, hookCommands []string, dir string) Result {
	var combined strings.Builder

	for _, hook := range hookCommands {
		hookCtx, cancel := context.WithTimeout(ctx, Timeout)
		cmd := exec.CommandContext(hookCtx, "sh", "-c", hook)
		cmd.Dir = dir

		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		err := cmd.Run()
		cancel()

		if combined.Len() > 0 {
			combined.WriteByte('\n')
		}
		combined.WriteString(out.String())

		if hookCtx.Err() == context.DeadlineExceeded {
			combined.WriteString(fmt.Sprintf("\npre-push hook %q timed out after %s", hook, Timeout))
			return Result{Success: false, Output: combined.String()}
		}
		if err != nil {
			combined.WriteString(fmt.Sprintf("\npre-push hook %q failed: %v", hook, err))
			return Result{Success: false, Output: combined.String()}
		}
	}

	return Result{Success: true, Output: combined.String()}
}
