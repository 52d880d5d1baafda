package workspace

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/yolo-cage/yolo-cage/internal/executor"
)

// installFakeGit writes a stub "git" script that logs every invocation to
// logPath and fakes just enough subcommands for the empty-state bootstrap
// path to run end to end, then prepends its directory to PATH.
func installFakeGit(t *testing.T, logPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	dir := t.TempDir()
	script := `#!/bin/sh
echo "$@" >> "` + logPath + `"
case "$1" in
  clone)
    mkdir -p "$3/.git"
    ;;
  ls-remote)
    exit 1
    ;;
  checkout)
    ;;
esac
exit 0
`
	path := filepath.Join(dir, "git")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake git: %v", err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func TestBootstrapEmptyWorkspaceClonesAndCreatesBranch(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "git.log")
	installFakeGit(t, logPath)

	dir := t.TempDir()
	p := Params{
		Exec:        executor.New(),
		Identity:    executor.Identity{Name: "yolo-cage-agent", Email: "agent@yolo-cage.invalid"},
		UpstreamURL: "https://example.invalid/repo.git",
		Token:       "tok",
	}

	result, err := Bootstrap(context.Background(), p, dir, "feature/x")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if result.Action != "created" {
		t.Fatalf("expected action 'created' (branch absent on remote), got %q", result.Action)
	}
	if !result.Cloned {
		t.Fatalf("expected Cloned=true")
	}
	if result.Branch != "feature/x" {
		t.Fatalf("expected branch feature/x, got %q", result.Branch)
	}
}

func TestBootstrapAlreadyOnAssignedBranch(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "git.log")
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := os.Mkdir(gitDir, 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}

	scriptDir := t.TempDir()
	script := `#!/bin/sh
echo "$@" >> "` + logPath + `"
case "$1" in
  rev-parse)
    echo "feature/x"
    ;;
esac
exit 0
`
	if err := os.WriteFile(filepath.Join(scriptDir, "git"), []byte(script), 0o755); err != nil {
		t.Fatalf("write fake git: %v", err)
	}
	t.Setenv("PATH", scriptDir+":"+os.Getenv("PATH"))

	p := Params{
		Exec:        executor.New(),
		Identity:    executor.Identity{Name: "yolo-cage-agent", Email: "agent@yolo-cage.invalid"},
		UpstreamURL: "https://example.invalid/repo.git",
		Token:       "tok",
	}

	result, err := Bootstrap(context.Background(), p, dir, "feature/x")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if result.Action != "already_on_branch" {
		t.Fatalf("expected already_on_branch, got %q", result.Action)
	}
}
