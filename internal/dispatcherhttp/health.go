package dispatcherhttp

import (
	"net/http"
	"os"
	"os/exec"

	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// handleHealth answers GET /health with a small liveness object (spec §6)
// carrying a startup-preflight checks array — workspace root writable,
// git/gh present on PATH. Grounded on the supplemented-feature note that
// original_source's tests/test_prerequisites.py implies a preflight check
// belongs somewhere in the running service, not only in `doctor`.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := []protocol.HealthCheck{
		s.checkWorkspaceWritable(),
		checkBinaryOnPath("git"),
		checkBinaryOnPath("gh"),
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}

	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		OK:      ok,
		Version: s.VersionBanner,
		Checks:  checks,
	})
}

func (s *Server) checkWorkspaceWritable() protocol.HealthCheck {
	check := protocol.HealthCheck{Name: "workspace_root_writable"}
	if s.WorkspaceRoot == "" {
		check.Note = "workspace root not configured"
		return check
	}
	probe, err := os.CreateTemp(s.WorkspaceRoot, ".health-*")
	if err != nil {
		check.Note = err.Error()
		return check
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	check.OK = true
	return check
}

func checkBinaryOnPath(name string) protocol.HealthCheck {
	check := protocol.HealthCheck{Name: name + "_on_path"}
	if _, err := exec.LookPath(name); err != nil {
		check.Note = err.Error()
		return check
	}
	check.OK = true
	return check
}
