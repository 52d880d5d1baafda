package onboard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRequireNonEmptyRejectsBlank(t *testing.T) {
	if err := requireNonEmpty("   "); err == nil {
		t.Fatalf("expected error for blank input")
	}
	if err := requireNonEmpty("x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCronRequiresFiveFields(t *testing.T) {
	if err := validateCron("*/15 * * * *"); err != nil {
		t.Fatalf("unexpected error for valid-shaped expression: %v", err)
	}
	if err := validateCron("not a cron"); err == nil {
		t.Fatalf("expected error for malformed expression")
	}
}

func TestValidateDurationRejectsGarbage(t *testing.T) {
	if err := validateDuration("24h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateDuration("a while"); err == nil {
		t.Fatalf("expected error for unparseable duration")
	}
}

func TestEnvLineQuotesValuesNeedingIt(t *testing.T) {
	plain := envLine("KEY", "value")
	if plain != "KEY=value\n" {
		t.Fatalf("expected unquoted line, got %q", plain)
	}

	quoted := envLine("KEY", "has space")
	if quoted != `KEY="has space"`+"\n" {
		t.Fatalf("expected quoted line, got %q", quoted)
	}
}

func TestWriteEnvFileWritesAllFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dispatcher.env")

	a := &Answers{
		WorkspaceRoot:  "/var/lib/yolo-cage/workspaces",
		UpstreamURL:    "https://github.com/acme/repo.git",
		UpstreamToken:  "ghp_secret",
		CommitterName:  "yolo-cage-agent",
		CommitterEmail: "agent@yolo-cage.invalid",
		Namespace:      "yolo-cage",
		PodImage:       "yolo-cage/agent:latest",
		ForgeAPIHost:   "api.github.com",
		ProxyCACert:    "/etc/yolo-cage/proxy-ca.pem",
		ReaperSchedule: "*/15 * * * *",
		ReaperMaxAge:   2 * time.Hour,
	}

	if err := WriteEnvFile(path, a); err != nil {
		t.Fatalf("WriteEnvFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		`YOLO_CAGE_WORKSPACE_ROOT=/var/lib/yolo-cage/workspaces`,
		`YOLO_CAGE_UPSTREAM_URL=https://github.com/acme/repo.git`,
		`YOLO_CAGE_UPSTREAM_TOKEN=ghp_secret`,
		`YOLO_CAGE_NAMESPACE=yolo-cage`,
		`YOLO_CAGE_REAPER_SCHEDULE="*/15 * * * *"`,
		`YOLO_CAGE_REAPER_MAX_AGE=2h0m0s`,
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected env file to contain %q, got:\n%s", want, content)
		}
	}
}
