package dispatcherhttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"k8s.io/client-go/kubernetes/fake"

	"github.com/yolo-cage/yolo-cage/internal/executor"
	"github.com/yolo-cage/yolo-cage/internal/podlifecycle"
	"github.com/yolo-cage/yolo-cage/internal/registry"
	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// installFakeGit writes a stub "git" that exits 0 for every subcommand and
// answers rev-parse with currentBranch, enough to drive the local and
// merge-family paths through handleGit.
func installFakeGit(t *testing.T, currentBranch string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	script := `#!/bin/sh
case "$1" in
  rev-parse)
    echo "` + currentBranch + `"
    ;;
esac
exit 0
`
	if err := os.WriteFile(filepath.Join(dir, "git"), []byte(script), 0o755); err != nil {
		t.Fatalf("write fake git: %v", err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func newTestServer(t *testing.T) *Server {
	client := fake.NewSimpleClientset()
	s := New(registry.New(), executor.New(), podlifecycle.New(client, "yolo-cage", "yolo-cage/agent:latest"))
	s.WorkspaceRoot = t.TempDir()
	s.Identity = executor.Identity{Name: "yolo-cage-agent", Email: "agent@yolo-cage.invalid"}
	s.VersionBanner = "test"
	return s
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.BuildMux().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp protocol.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// OK depends on git/gh actually being on PATH in whatever environment
	// runs this test, so only the workspace sub-check (which newTestServer
	// points at a writable t.TempDir()) is asserted strictly.
	if len(resp.Checks) == 0 {
		t.Fatalf("expected sub-checks in the health response")
	}
	var sawWorkspaceCheck bool
	for _, c := range resp.Checks {
		if c.Name == "workspace_root_writable" {
			sawWorkspaceCheck = true
			if !c.OK {
				t.Fatalf("expected workspace_root_writable to pass against a temp dir, note: %s", c.Note)
			}
		}
	}
	if !sawWorkspaceCheck {
		t.Fatalf("expected a workspace_root_writable check in %+v", resp.Checks)
	}
}

func TestRegisterDeregisterAndSnapshot(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, "POST", "/register?branch=feature/x", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "GET", "/registry", nil)
	var snap protocol.RegistrySnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(snap.Assignments) != 1 {
		t.Fatalf("expected one assignment, got %d", len(snap.Assignments))
	}

	rec = doRequest(t, s, "DELETE", "/register", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deregister: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, "GET", "/registry", nil)
	var after protocol.RegistrySnapshot
	json.Unmarshal(rec.Body.Bytes(), &after)
}

func TestHandleGitRejectsUnregisteredCaller(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, "POST", "/git", protocol.GitRequest{Args: []string{"status"}, Cwd: AgentWorkspace})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unregistered caller, got %d", rec.Code)
	}
}

func TestHandleGitDeniedSubcommand(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "POST", "/register?branch=feature/x", nil)

	rec := doRequest(t, s, "POST", "/git", protocol.GitRequest{Args: []string{"clone", "https://example.invalid/repo.git"}, Cwd: AgentWorkspace})
	if rec.Header().Get(protocol.ExitCodeHeader) != "1" {
		t.Fatalf("expected exit code 1 for denied subcommand, got %q", rec.Header().Get(protocol.ExitCodeHeader))
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected a denial message body")
	}
}

func TestHandleGitLocalCommandExecutes(t *testing.T) {
	installFakeGit(t, "feature/x")
	s := newTestServer(t)
	if err := os.MkdirAll(filepath.Join(s.WorkspaceRoot, "feature/x"), 0o755); err != nil {
		t.Fatalf("create workspace dir: %v", err)
	}
	doRequest(t, s, "POST", "/register?branch=feature/x", nil)

	rec := doRequest(t, s, "POST", "/git", protocol.GitRequest{Args: []string{"status"}, Cwd: AgentWorkspace})
	if rec.Header().Get(protocol.ExitCodeHeader) != "0" {
		t.Fatalf("expected exit code 0, got %q: %s", rec.Header().Get(protocol.ExitCodeHeader), rec.Body.String())
	}
}

func TestHandleGitMergeFamilyDeniedOffBranch(t *testing.T) {
	installFakeGit(t, "other-branch")
	s := newTestServer(t)
	doRequest(t, s, "POST", "/register?branch=feature/x", nil)

	rec := doRequest(t, s, "POST", "/git", protocol.GitRequest{Args: []string{"merge", "feature/y"}, Cwd: AgentWorkspace})
	if rec.Header().Get(protocol.ExitCodeHeader) != "1" {
		t.Fatalf("expected merge to be denied off-branch, got exit code %q", rec.Header().Get(protocol.ExitCodeHeader))
	}
}

func TestHandleGhDeniedPrimary(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "POST", "/register?branch=feature/x", nil)

	rec := doRequest(t, s, "POST", "/gh", protocol.GhRequest{Args: []string{"api", "repos"}, Cwd: AgentWorkspace})
	if rec.Header().Get(protocol.ExitCodeHeader) != "1" {
		t.Fatalf("expected gh api to be denied, got exit code %q", rec.Header().Get(protocol.ExitCodeHeader))
	}
}

func TestHandlePodsCreateListGetDelete(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, "POST", "/pods", protocol.CreateSandboxRequest{Branch: "feature/x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("create pod: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "GET", "/pods", nil)
	var records []protocol.SandboxRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 sandbox, got %d", len(records))
	}

	rec = doRequest(t, s, "GET", "/pods/feature/x", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get pod: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, "DELETE", "/pods/feature/x?clean=false", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete pod: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, "GET", "/pods/feature/x", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}
