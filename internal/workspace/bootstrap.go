package workspace

import (
	"context"
	"fmt"

	"github.com/yolo-cage/yolo-cage/internal/executor"
	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// BootstrapError wraps a failed git invocation with its own stderr so the
// operator can see exactly what the binary said (spec §4.7: "every failure
// is translated to a single typed error carrying the binary's own
// stderr").
type BootstrapError struct {
	Step   string
	Output string
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("workspace bootstrap: %s failed: %s", e.Step, e.Output)
}

// Params bundles everything Bootstrap needs to run git against the bound
// upstream.
type Params struct {
	Exec       *executor.Executor
	Identity   executor.Identity
	UpstreamURL string
	Token      string
}

func (p Params) runAuth(ctx context.Context, args []string, dir string) protocol.CommandResult {
	return p.Exec.RunAuthenticated(ctx, "git", args, dir, p.Identity, p.Token)
}

func (p Params) run(ctx context.Context, args []string, dir string) protocol.CommandResult {
	return p.Exec.Run(ctx, "git", args, dir, p.Identity)
}

// Bootstrap implements spec §4.7's full algorithm: classify, then dispatch
// to the empty/has-metadata/has-files branch.
func Bootstrap(ctx context.Context, p Params, dir, branch string) (protocol.BootstrapResult, error) {
	state, err := Classify(dir)
	if err != nil {
		return protocol.BootstrapResult{}, &BootstrapError{Step: "classify workspace", Output: err.Error()}
	}

	switch state {
	case StateEmpty:
		return bootstrapEmpty(ctx, p, dir, branch)
	case StateHasMetadata:
		return bootstrapHasMetadata(ctx, p, dir, branch)
	case StateHasFiles:
		return bootstrapHasFiles(ctx, p, dir, branch)
	default:
		return protocol.BootstrapResult{}, &BootstrapError{Step: "classify workspace", Output: "unreachable state"}
	}
}

func bootstrapEmpty(ctx context.Context, p Params, dir, branch string) (protocol.BootstrapResult, error) {
	res := p.runAuth(ctx, []string{"clone", p.UpstreamURL, "."}, dir)
	if res.ExitCode != 0 {
		return protocol.BootstrapResult{}, &BootstrapError{Step: "clone", Output: res.Output}
	}

	if branchExistsOnRemote(ctx, p, dir, branch) {
		res = p.run(ctx, []string{"checkout", branch}, dir)
		if res.ExitCode != 0 {
			return protocol.BootstrapResult{}, &BootstrapError{Step: "checkout", Output: res.Output}
		}
		return protocol.BootstrapResult{Action: "checked_out", Cloned: true, Branch: branch}, nil
	}

	res = p.run(ctx, []string{"checkout", "-b", branch}, dir)
	if res.ExitCode != 0 {
		return protocol.BootstrapResult{}, &BootstrapError{Step: "create branch", Output: res.Output}
	}
	return protocol.BootstrapResult{Action: "created", Cloned: true, Branch: branch}, nil
}

func bootstrapHasMetadata(ctx context.Context, p Params, dir, branch string) (protocol.BootstrapResult, error) {
	return syncExisting(ctx, p, dir, branch)
}

func bootstrapHasFiles(ctx context.Context, p Params, dir, branch string) (protocol.BootstrapResult, error) {
	return syncExistingFiles(ctx, p, dir, branch)
}
