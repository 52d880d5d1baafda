package executor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func testIdentity() Identity {
	return Identity{Name: "yolo-cage-agent", Email: "agent@yolo-cage.invalid"}
}

func TestRunCapturesCombinedOutputAndExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	e := New()
	result := e.Run(context.Background(), "sh", []string{"-c", "echo out; echo err 1>&2; exit 3"}, dir, testIdentity())
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if !contains(result.Output, "out") || !contains(result.Output, "err") {
		t.Fatalf("expected combined output to contain both streams, got %q", result.Output)
	}
}

func TestRunMissingBinaryIsSyntheticFailure(t *testing.T) {
	e := New()
	result := e.Run(context.Background(), "definitely-not-a-real-binary-xyz", nil, t.TempDir(), testIdentity())
	if result.ExitCode == 0 {
		t.Fatalf("expected a non-zero exit code for a missing binary")
	}
	if !contains(result.Output, "not found") {
		t.Fatalf("expected an explanatory message, got %q", result.Output)
	}
}

func TestRunTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	e := &Executor{Timeout: 50 * time.Millisecond}
	result := e.Run(context.Background(), "sh", []string{"-c", "sleep 5"}, t.TempDir(), testIdentity())
	if result.ExitCode != 124 {
		t.Fatalf("expected synthetic timeout exit code 124, got %d", result.ExitCode)
	}
	if !contains(result.Output, "timed out") {
		t.Fatalf("expected a timeout explanation, got %q", result.Output)
	}
}

func TestRunAuthenticatedCleansUpCredentialHelperOnSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	e := New()

	var helperDirBefore string
	tmp := os.TempDir()
	before, _ := os.ReadDir(tmp)
	beforeCount := countYoloCageCredDirs(before)

	result := e.RunAuthenticated(context.Background(), "sh", []string{"-c", "echo $GIT_ASKPASS"}, t.TempDir(), testIdentity(), "secret-token")
	if result.ExitCode != 0 {
		t.Fatalf("expected success, got exit %d: %s", result.ExitCode, result.Output)
	}
	if !contains(result.Output, "askpass-") {
		t.Fatalf("expected GIT_ASKPASS to be set to the materialized helper, got %q", result.Output)
	}

	after, _ := os.ReadDir(tmp)
	afterCount := countYoloCageCredDirs(after)
	if afterCount > beforeCount {
		t.Fatalf("expected credential helper dir to be cleaned up, leaked %d dirs", afterCount-beforeCount)
	}
	_ = helperDirBefore
}

func TestRunAuthenticatedExportsGhToken(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	e := New()
	result := e.RunAuthenticated(context.Background(), "sh", []string{"-c", "echo GH=$GH_TOKEN; echo GITHUB=$GITHUB_TOKEN"}, t.TempDir(), testIdentity(), "secret-token")
	if result.ExitCode != 0 {
		t.Fatalf("expected success, got exit %d: %s", result.ExitCode, result.Output)
	}
	if !contains(result.Output, "GH=secret-token") {
		t.Fatalf("expected GH_TOKEN to carry the authenticated token, got %q", result.Output)
	}
	if !contains(result.Output, "GITHUB=secret-token") {
		t.Fatalf("expected GITHUB_TOKEN to carry the authenticated token, got %q", result.Output)
	}
}

func countYoloCageCredDirs(entries []os.DirEntry) int {
	n := 0
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) > len("yolo-cage-cred-") && e.Name()[:len("yolo-cage-cred-")] == "yolo-cage-cred-" {
			n++
		}
	}
	return n
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

func TestMaterializeCredentialHelperUniqueSuffix(t *testing.T) {
	p1, cleanup1, err := materializeCredentialHelper("tok")
	if err != nil {
		t.Fatalf("materializeCredentialHelper: %v", err)
	}
	defer cleanup1()
	p2, cleanup2, err := materializeCredentialHelper("tok")
	if err != nil {
		t.Fatalf("materializeCredentialHelper: %v", err)
	}
	defer cleanup2()
	if p1 == p2 {
		t.Fatalf("expected unique paths for concurrent credential helpers, got the same path twice")
	}
	if filepath.Base(p1) == filepath.Base(p2) {
		t.Fatalf("expected unique filenames")
	}
}
