package dispatcherhttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yolo-cage/yolo-cage/internal/classify"
	"github.com/yolo-cage/yolo-cage/internal/hooks"
	"github.com/yolo-cage/yolo-cage/internal/policy"
	"github.com/yolo-cage/yolo-cage/internal/workspace"
	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// handleGit implements spec §4.9's source-control pipeline: look up
// assignment, translate the workspace path, classify, then dispatch per
// category. Grounded on original_source/dispatcher/handlers/git.py, whose
// category-by-category dispatch this mirrors one for one.
func (s *Server) handleGit(w http.ResponseWriter, r *http.Request) {
	branch, ok := s.assignedBranch(r)
	if !ok {
		writeJSONError(w, http.StatusForbidden, "yolo-cage: pod not registered. Contact cluster admin.")
		return
	}

	var req protocol.GitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	cwd := translateCwd(s.WorkspaceRoot, req.Cwd, branch)
	logRequest(r, "git command", "caller", callerID(r), "branch", branch, "args", req.Args)

	category, denyMsg := classify.ClassifyGit(req.Args)

	switch category {
	case classify.GitDenied:
		writeDenial(w, "yolo-cage: "+denyMsg)
		return
	case classify.GitUnrecognized:
		writeDenial(w, "yolo-cage: unrecognized or disallowed git operation")
		return
	case classify.GitBranchView:
		decision := policy.CheckBranchSwitch(checkoutTarget(req.Args), branch)
		result := s.runExec(r, "git", req.Args, cwd, branch)
		if decision.Verdict == policy.Warn {
			result.Output = decision.Message + "\n" + result.Output
		}
		writeCommandResult(w, result)
		return
	case classify.GitMergeFamily:
		current := workspace.CurrentBranch(r.Context(), s.workspaceParams(), cwd)
		decision := policy.CheckMergeFamily(current, branch)
		if decision.Verdict == policy.Deny {
			writeDenial(w, "yolo-cage: "+decision.Message)
			return
		}
		writeCommandResult(w, s.runExec(r, "git", req.Args, cwd, branch))
		return
	case classify.GitRemoteWrite:
		current := workspace.CurrentBranch(r.Context(), s.workspaceParams(), cwd)
		decision := policy.CheckPush(req.Args, current, branch)
		if decision.Verdict == policy.Deny {
			writeDenial(w, "yolo-cage: "+decision.Message)
			return
		}

		hookResult := hooks.Run(r.Context(), s.PrePushHooks, cwd)
		if !hookResult.Success {
			writeDenial(w, "yolo-cage: push rejected by pre-push hooks\n\n"+hookResult.Output)
			return
		}

		writeCommandResult(w, s.runExecAuthenticated(r, "git", req.Args, cwd, branch))
		return
	case classify.GitRemoteRead:
		writeCommandResult(w, s.runExecAuthenticated(r, "git", req.Args, cwd, branch))
		return
	default: // classify.GitLocal
		writeCommandResult(w, s.runExec(r, "git", req.Args, cwd, branch))
		return
	}
}

// checkoutTarget extracts the branch name a checkout/switch command names,
// skipping flags, mirroring original_source/dispatcher/policy.py's
// get_checkout_target.
func checkoutTarget(args []string) string {
	foundCmd := false
	for _, arg := range args {
		if arg == "checkout" || arg == "switch" {
			foundCmd = true
			continue
		}
		if foundCmd && !strings.HasPrefix(arg, "-") {
			return arg
		}
	}
	return ""
}
