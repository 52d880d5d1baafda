package dispatcherhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// writeJSON is the teacher's writeJSON idiom (internal/http/agents.go),
// carried over for every endpoint whose response shape is JSON (§6: health,
// registry, bootstrap, pods).
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeCommandResult renders a protocol.CommandResult as the plain-text
// body plus exit-code header spec §4.12 mandates for /git and /gh: the
// shim reads the header, never the body, to decide its own exit code.
func writeCommandResult(w http.ResponseWriter, result protocol.CommandResult) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(protocol.ExitCodeHeader, strconv.Itoa(result.ExitCode))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(result.Output))
}

// writeDenial is writeCommandResult's counterpart for classifier/policy
// refusals: always exit code 1, body is the human-readable reason.
func writeDenial(w http.ResponseWriter, message string) {
	writeCommandResult(w, protocol.CommandResult{Output: message, ExitCode: 1})
}
