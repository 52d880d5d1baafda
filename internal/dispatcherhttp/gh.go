package dispatcherhttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/yolo-cage/yolo-cage/internal/classify"
	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// handleGh implements spec §4.9's forge pipeline: classify, then on allow
// rewrite any --body-file arguments pointing at transmitted file/stdin
// content into real temp files before executing with authentication.
// Grounded on original_source/dispatcher/handlers/gh.py and gh.py's
// _rewrite_args_with_temp_files.
func (s *Server) handleGh(w http.ResponseWriter, r *http.Request) {
	branch, ok := s.assignedBranch(r)
	if !ok {
		writeJSONError(w, http.StatusForbidden, "yolo-cage: pod not registered. Contact cluster admin.")
		return
	}

	var req protocol.GhRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	cwd := translateCwd(s.WorkspaceRoot, req.Cwd, branch)
	logRequest(r, "gh command", "caller", callerID(r), "branch", branch, "args", req.Args)

	category, denyMsg := classify.ClassifyGh(req.Args)
	switch category {
	case classify.GhDenied:
		writeDenial(w, "yolo-cage: "+denyMsg)
		return
	case classify.GhUnrecognized:
		writeDenial(w, "yolo-cage: unrecognized or disallowed gh operation")
		return
	}

	args, cleanup, err := rewriteBodyFiles(req.Args, req.Files, req.Stdin)
	defer cleanup()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "yolo-cage: failed to materialize body file: "+err.Error())
		return
	}

	writeCommandResult(w, s.runExecAuthenticated(r, "gh", args, cwd, branch))
}

// rewriteBodyFiles substitutes any "--body-file <path>" pair where <path>
// was transmitted in files, or is "-" with a transmitted stdin body, with
// a freshly materialized temp file. Every temp file is unique per call and
// removed by the returned cleanup on every exit path, including error
// paths, per spec §5's "unique per argv element" requirement.
func rewriteBodyFiles(args []string, files map[string]string, stdin *string) (rewritten []string, cleanup func(), err error) {
	var tempPaths []string
	cleanup = func() {
		for _, p := range tempPaths {
			os.Remove(p)
		}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--body-file" && i+1 < len(args) {
			path := args[i+1]

			var content string
			var hit bool
			if path == "-" && stdin != nil {
				content, hit = *stdin, true
			} else if c, ok := files[path]; ok {
				content, hit = c, true
			}

			if hit {
				tempPath, werr := writeBodyTempFile(content)
				if werr != nil {
					return nil, cleanup, werr
				}
				tempPaths = append(tempPaths, tempPath)
				out = append(out, "--body-file", tempPath)
				i++
				continue
			}
		}
		out = append(out, arg)
	}
	return out, cleanup, nil
}

func writeBodyTempFile(content string) (string, error) {
	f, err := os.CreateTemp("", "yolo-cage-gh-body-*.md")
	if err != nil {
		return "", fmt.Errorf("create temp body file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp body file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}
