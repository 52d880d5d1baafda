package dispatcherhttp

import "strings"

// AgentWorkspace is the fixed mount point every sandbox pod sees its
// workspace at (matches the pod spec's workspace volume mount in
// internal/podlifecycle). Grounded on original_source/dispatcher/paths.py's
// AGENT_WORKSPACE constant.
const AgentWorkspace = "/home/dev/workspace"

// translateCwd rewrites the agent's logical workspace path to the
// dispatcher's on-disk per-branch path (spec §4.9's path translation).
// Paths outside the logical root pass through unchanged.
func translateCwd(root, agentCwd, branch string) string {
	if agentCwd == AgentWorkspace {
		return root + "/" + branch
	}
	if rel, ok := strings.CutPrefix(agentCwd, AgentWorkspace+"/"); ok {
		return root + "/" + branch + "/" + rel
	}
	return agentCwd
}
