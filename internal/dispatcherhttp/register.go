package dispatcherhttp

import (
	"net/http"

	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// handleRegister binds the caller's observed address to a branch (spec
// §4.6/§4.9). No authentication beyond the transport: the network topology
// (only sandbox pods can reach the dispatcher) is the trust boundary.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	branch := r.URL.Query().Get("branch")
	if branch == "" {
		writeJSONError(w, http.StatusBadRequest, "branch query parameter is required")
		return
	}
	caller := callerID(r)
	s.Registry.Register(caller, branch)
	logRequest(r, "registered caller", "caller", caller, "branch", branch)
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered", "branch": branch})
}

// handleDeregister unbinds the caller's observed address.
func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	s.Registry.Deregister(caller)
	logRequest(r, "deregistered caller", "caller", caller)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deregistered"})
}

// handleRegistry answers GET /registry with a point-in-time snapshot.
func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.RegistrySnapshot{Assignments: s.Registry.Enumerate()})
}
