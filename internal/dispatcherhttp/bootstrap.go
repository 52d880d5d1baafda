package dispatcherhttp

import (
	"net/http"

	"github.com/yolo-cage/yolo-cage/internal/workspace"
)

// handleBootstrap runs spec §4.7 synchronously and returns the final state
// dictionary, or a 500 with the underlying binary's own diagnostic
// (workspace.BootstrapError carries that verbatim).
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	branch := r.URL.Query().Get("branch")
	if branch == "" {
		writeJSONError(w, http.StatusBadRequest, "branch query parameter is required")
		return
	}

	dir := s.WorkspaceRoot + "/" + branch
	result, err := workspace.Bootstrap(r.Context(), s.workspaceParams(), dir, branch)
	if err != nil {
		logRequest(r, "bootstrap failed", "branch", branch, "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logRequest(r, "bootstrap complete", "branch", branch, "action", result.Action)
	writeJSON(w, http.StatusOK, result)
}
