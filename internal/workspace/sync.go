package workspace

import (
	"context"
	"strings"

	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// syncExisting handles the has-metadata case: fetch, then switch branches
// if needed. Split out from bootstrap.go the way the original dispatcher
// separates sync.py's update_workspace from bootstrap.py's top-level
// dispatch.
func syncExisting(ctx context.Context, p Params, dir, branch string) (protocol.BootstrapResult, error) {
	// Fetch failure is a warning, not fatal: the existing state is still
	// usable even if the network blipped.
	p.runAuth(ctx, []string{"fetch", "origin"}, dir)

	if currentBranch(ctx, p, dir) == branch {
		return protocol.BootstrapResult{Action: "already_on_branch", Branch: branch}, nil
	}

	if err := switchToBranch(ctx, p, dir, branch); err != nil {
		return protocol.BootstrapResult{}, err
	}
	return protocol.BootstrapResult{Action: "switched_branch", Branch: branch}, nil
}

// syncExistingFiles handles the has-files case: initialize git in place,
// wire up the origin remote, fetch, then land on the right branch.
func syncExistingFiles(ctx context.Context, p Params, dir, branch string) (protocol.BootstrapResult, error) {
	res := p.run(ctx, []string{"init"}, dir)
	if res.ExitCode != 0 {
		return protocol.BootstrapResult{}, &BootstrapError{Step: "init", Output: res.Output}
	}

	res = p.run(ctx, []string{"remote", "add", "origin", p.UpstreamURL}, dir)
	if res.ExitCode != 0 {
		return protocol.BootstrapResult{}, &BootstrapError{Step: "add remote", Output: res.Output}
	}

	res = p.runAuth(ctx, []string{"fetch", "origin"}, dir)
	if res.ExitCode != 0 {
		return protocol.BootstrapResult{}, &BootstrapError{Step: "fetch", Output: res.Output}
	}

	action, err := setupBranchWithExistingFiles(ctx, p, dir, branch)
	if err != nil {
		return protocol.BootstrapResult{}, err
	}
	return protocol.BootstrapResult{Action: action, Branch: branch}, nil
}

func switchToBranch(ctx context.Context, p Params, dir, branch string) error {
	var res protocol.CommandResult
	switch {
	case localBranchExists(ctx, p, dir, branch):
		res = p.run(ctx, []string{"checkout", branch}, dir)
	case branchExistsOnRemote(ctx, p, dir, branch):
		res = p.run(ctx, []string{"checkout", "-b", branch, "origin/" + branch}, dir)
	default:
		res = p.run(ctx, []string{"checkout", "-b", branch}, dir)
	}
	if res.ExitCode != 0 {
		return &BootstrapError{Step: "checkout branch " + branch, Output: res.Output}
	}
	return nil
}

func setupBranchWithExistingFiles(ctx context.Context, p Params, dir, branch string) (string, error) {
	if branchExistsOnRemote(ctx, p, dir, branch) {
		res := p.run(ctx, []string{"reset", "origin/" + branch}, dir)
		if res.ExitCode != 0 {
			return "", &BootstrapError{Step: "reset to remote branch", Output: res.Output}
		}
		res = p.run(ctx, []string{"checkout", "-B", branch, "origin/" + branch}, dir)
		if res.ExitCode != 0 {
			return "", &BootstrapError{Step: "checkout", Output: res.Output}
		}
		return "initialized_from_remote", nil
	}

	defaultBranch := remoteDefaultBranch(ctx, p, dir)
	res := p.run(ctx, []string{"checkout", "-b", branch, "origin/" + defaultBranch}, dir)
	if res.ExitCode != 0 {
		return "", &BootstrapError{Step: "create branch from default", Output: res.Output}
	}
	return "initialized_new_branch", nil
}

func branchExistsOnRemote(ctx context.Context, p Params, dir, branch string) bool {
	res := p.run(ctx, []string{"ls-remote", "--heads", "origin", branch}, dir)
	return res.ExitCode == 0 && strings.Contains(res.Output, branch)
}

func localBranchExists(ctx context.Context, p Params, dir, branch string) bool {
	res := p.run(ctx, []string{"show-ref", "--verify", "refs/heads/" + branch}, dir)
	return res.ExitCode == 0
}

// CurrentBranch reports the workspace's checked-out branch, used by the
// HTTP layer's merge-family and push gates (spec §4.3) which need the
// workspace's present branch independently of any bootstrap call.
func CurrentBranch(ctx context.Context, p Params, dir string) string {
	return currentBranch(ctx, p, dir)
}

func currentBranch(ctx context.Context, p Params, dir string) string {
	res := p.run(ctx, []string{"rev-parse", "--abbrev-ref", "HEAD"}, dir)
	if res.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(res.Output)
}

// remoteDefaultBranch extracts the remote's advertised default branch from
// `git remote show origin`'s "HEAD branch:" line, falling back to the
// conventional default when parsing yields nothing.
func remoteDefaultBranch(ctx context.Context, p Params, dir string) string {
	res := p.run(ctx, []string{"remote", "show", "origin"}, dir)
	if res.ExitCode == 0 {
		for _, line := range strings.Split(res.Output, "\n") {
			if idx := strings.Index(line, "HEAD branch:"); idx != -1 {
				branch := strings.TrimSpace(line[idx+len("HEAD branch:"):])
				if branch != "" && branch != "(unknown)" {
					return branch
				}
			}
		}
	}
	return "main"
}
