package dispatcherhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// handleCreatePod answers POST /pods: create (idempotent-by-name) the
// sandbox for the branch named in the body.
func (s *Server) handleCreatePod(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateSandboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Branch == "" {
		writeJSONError(w, http.StatusBadRequest, "branch is required")
		return
	}

	record, err := s.Pods.Create(r.Context(), req.Branch)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleListPods answers GET /pods with every sandbox under the
// well-known app label.
func (s *Server) handleListPods(w http.ResponseWriter, r *http.Request) {
	records, err := s.Pods.List(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetPod answers GET /pods/{branch} with one record, or 404.
func (s *Server) handleGetPod(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")
	record, ok, err := s.Pods.Get(r.Context(), branch)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no sandbox for branch "+branch)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDeletePod answers DELETE /pods/{branch}?clean=<bool>.
func (s *Server) handleDeletePod(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")
	clean, _ := strconv.ParseBool(r.URL.Query().Get("clean"))

	existed, err := s.Pods.Delete(r.Context(), branch, clean)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"existed": existed})
}
