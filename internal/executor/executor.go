// Package executor runs the actual git/gh binary on behalf of the
// dispatcher (spec §4.4): a fixed working directory, a scoped environment,
// an optional credential-helper shim, a hard timeout, and combined
// stdout/stderr capture translated into a single result the HTTP layer can
// hand back verbatim.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// Identity is the fixed author/committer identity every invocation runs
// under; the agent never supplies its own.
type Identity struct {
	Name  string
	Email string
}

// Executor runs git/gh invocations with a bounded timeout.
type Executor struct {
	Timeout time.Duration
}

// New returns an Executor using spec §5's command timeout.
func New() *Executor {
	return &Executor{Timeout: 300 * time.Second}
}

// Run executes binary with args in dir under ident, without forge
// credentials. Used for *local*, *branch-view* and *merge-family*
// categories (spec §4.9).
func (e *Executor) Run(ctx context.Context, binary string, args []string, dir string, ident Identity) protocol.CommandResult {
	return e.run(ctx, binary, args, dir, ident, "", "")
}

// RunAuthenticated is like Run but materializes a credential-helper shim
// for the duration of the invocation so the binary can reach the
// authenticated upstream. Used for *remote-read* and, after the push gate
// and pre-push hooks pass, *remote-write*.
func (e *Executor) RunAuthenticated(ctx context.Context, binary string, args []string, dir string, ident Identity, token string) protocol.CommandResult {
	helperPath, cleanup, err := materializeCredentialHelper(token)
	defer cleanup()
	if err != nil {
		return protocol.CommandResult{
			Output:   fmt.Sprintf("executor: credential helper setup failed: %v", err),
			ExitCode: 1,
		}
	}
	return e.run(ctx, binary, args, dir, ident, helperPath, token)
}

func (e *Executor) run(ctx context.Context, binary string, args []string, dir string, ident Identity, credentialHelper, token string) protocol.CommandResult {
	if _, err := exec.LookPath(binary); err != nil {
		return protocol.CommandResult{
			Output:   fmt.Sprintf("executor: %s binary not found in PATH", binary),
			ExitCode: 127,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Env = buildEnv(ident, credentialHelper, token)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()

	result := protocol.CommandResult{Output: out.String()}

	if ctx.Err() == context.DeadlineExceeded {
		result.Output += fmt.Sprintf("\nexecutor: %s timed out after %s", binary, e.Timeout)
		result.ExitCode = 124
		return result
	}

	if err == nil {
		result.ExitCode = 0
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result
	}

	result.Output += fmt.Sprintf("\nexecutor: %v", err)
	result.ExitCode = 1
	return result
}

// buildEnv returns the fixed environment every invocation runs with: an
// inherited PATH/HOME (so the binary itself can be found and can read its
// own config), fixed author/committer identity, non-interactive prompts
// disabled, and every repository directory trusted regardless of on-disk
// ownership (the pod runtime may create the workspace mount as a
// different uid than the process euid). When credentialHelper is set,
// token is also exported as GH_TOKEN/GITHUB_TOKEN so gh's own REST/
// GraphQL auth (which reads those, not GIT_ASKPASS) works too — mirrors
// the original dispatcher's _base_env() setting both alongside git's
// askpash helper.
func buildEnv(ident Identity, credentialHelper, token string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"GIT_AUTHOR_NAME=" + ident.Name,
		"GIT_AUTHOR_EMAIL=" + ident.Email,
		"GIT_COMMITTER_NAME=" + ident.Name,
		"GIT_COMMITTER_EMAIL=" + ident.Email,
		"GIT_TERMINAL_PROMPT=0",
		"GH_PROMPT_DISABLED=1",
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=safe.directory",
		"GIT_CONFIG_VALUE_0=*",
	}
	if credentialHelper != "" {
		env = append(env,
			"GIT_ASKPASS="+credentialHelper,
			"GH_TOKEN="+token,
			"GITHUB_TOKEN="+token,
		)
	}
	return env
}

// materializeCredentialHelper writes a small askpass script that emits
// token on stdout, under a uniquely-suffixed name so concurrent
// invocations never collide, and returns a cleanup function that removes
// it. cleanup is safe to call even when err != nil and is always called on
// every exit path.
func materializeCredentialHelper(token string) (path string, cleanup func(), err error) {
	cleanup = func() {}

	dir, err := os.MkdirTemp("", "yolo-cage-cred-*")
	if err != nil {
		return "", cleanup, fmt.Errorf("executor: create credential helper dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	name := filepath.Join(dir, "askpass-"+uuid.NewString()+".sh")
	script := "#!/bin/sh\nprintf '%s\\n' \"" + token + "\"\n"
	if err := os.WriteFile(name, []byte(script), 0o700); err != nil {
		return "", cleanup, fmt.Errorf("executor: write credential helper: %w", err)
	}
	return name, cleanup, nil
}
