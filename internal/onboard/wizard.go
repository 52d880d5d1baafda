// Package onboard implements the interactive first-run setup wizard for
// `yolo-cage-dispatcher init`: it collects the install-time settings in
// Answers and writes them out as a sourceable env file. It does not ask
// for everything config.LoadDispatcher reads: pre-push hooks, the forge API
// bypass list, listen/dispatcher/proxy addresses, the node name and the
// Tailscale key are left out.
// Grounded on the teacher's cmd/onboard_auto.go/onboard_managed.go — same
// "collect settings, write config to disk, print a summary" shape — but
// interactive rather than env-var auto-detected, since nothing in this
// harness's deployment has an equivalent of the teacher's GOCLAW_*_API_KEY
// auto-onboard signal to detect from. The teacher declares
// github.com/charmbracelet/huh as a direct go.mod dependency but never
// imports it anywhere in its own code (same situation as go.mod's otlp
// exporters); this wizard is the wiring that dependency never got.
package onboard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
)

// Answers mirrors the subset of config.Dispatcher an operator sets once at
// install time, rather than per-deploy (TailscaleAuthKey is deliberately
// excluded — it's handed in at deploy time, never written to a file on
// disk the wizard leaves behind).
type Answers struct {
	WorkspaceRoot  string
	UpstreamURL    string
	UpstreamToken  string
	CommitterName  string
	CommitterEmail string
	Namespace      string
	PodImage       string
	ForgeAPIHost   string
	ProxyCACert    string
	ReaperSchedule string
	ReaperMaxAge   time.Duration
}

// Run walks the operator through a huh form collecting Answers. The form
// runs against the terminal directly (huh's default), so out is only used
// for the completion summary, not the form itself.
func Run(out io.Writer) (*Answers, error) {
	a := &Answers{
		CommitterName:  "yolo-cage-agent",
		CommitterEmail: "agent@yolo-cage.invalid",
		Namespace:      "default",
		PodImage:       "yolo-cage/agent:latest",
		ForgeAPIHost:   "api.github.com",
		ProxyCACert:    "/etc/yolo-cage/proxy-ca.pem",
		ReaperSchedule: "*/15 * * * *",
		ReaperMaxAge:   24 * time.Hour,
	}

	var maxAgeStr = a.ReaperMaxAge.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workspace root").
				Description("Directory on the dispatcher host under which per-branch clones live").
				Value(&a.WorkspaceRoot).
				Validate(requireNonEmpty),
			huh.NewInput().
				Title("Upstream forge URL").
				Description("e.g. https://github.com/your-org/your-repo.git").
				Value(&a.UpstreamURL).
				Validate(requireNonEmpty),
			huh.NewInput().
				Title("Upstream token").
				Description("Forge PAT used for authenticated git/gh operations").
				EchoMode(huh.EchoModePassword).
				Value(&a.UpstreamToken).
				Validate(requireNonEmpty),
		),
		huh.NewGroup(
			huh.NewInput().Title("Committer name").Value(&a.CommitterName),
			huh.NewInput().Title("Committer email").Value(&a.CommitterEmail),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Kubernetes namespace").
				Description("Namespace sandbox pods are created in").
				Value(&a.Namespace),
			huh.NewInput().
				Title("Sandbox pod image").
				Value(&a.PodImage),
			huh.NewInput().
				Title("Forge API host").
				Description("Host the egress proxy treats as the forge API for §4.10 gating").
				Value(&a.ForgeAPIHost),
			huh.NewInput().
				Title("Egress proxy CA certificate path").
				Value(&a.ProxyCACert),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Reaper cron schedule").
				Description("gronx cron expression for the stale-sandbox sweep").
				Value(&a.ReaperSchedule).
				Validate(validateCron),
			huh.NewInput().
				Title("Reaper max sandbox age").
				Description("Go duration, e.g. 24h").
				Value(&maxAgeStr).
				Validate(validateDuration),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("onboard: form: %w", err)
	}

	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("onboard: parse reaper max age: %w", err)
	}
	a.ReaperMaxAge = maxAge

	fmt.Fprintf(out, "Collected dispatcher configuration for workspace %q.\n", a.WorkspaceRoot)
	return a, nil
}

func requireNonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func validateDuration(s string) error {
	_, err := time.ParseDuration(s)
	return err
}

// envLine formats a KEY=value line, quoting the value whenever it contains
// whitespace or a shell-special character so the file can be `source`d.
func envLine(key, value string) string {
	if needsQuoting(value) {
		return fmt.Sprintf("%s=%q\n", key, value)
	}
	return fmt.Sprintf("%s=%s\n", key, value)
}

func needsQuoting(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '"' || r == '\'' || r == '$' || r == '\t' {
			return true
		}
	}
	return s == ""
}

// WriteEnvFile writes a as a sourceable shell env file at path, the env
// vars config.LoadDispatcher reads at boot (spec §6: the dispatcher has no
// config file of its own, only environment). Grounded on the teacher's
// saveCleanConfig's "write settings to disk, 0600, MkdirAll the parent"
// shape, adapted from a JSON config document to an env file since this
// harness's dispatcher config surface is env-only.
func WriteEnvFile(path string, a *Answers) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("onboard: create config dir: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(envLine("YOLO_CAGE_WORKSPACE_ROOT", a.WorkspaceRoot))
	sb.WriteString(envLine("YOLO_CAGE_UPSTREAM_URL", a.UpstreamURL))
	sb.WriteString(envLine("YOLO_CAGE_UPSTREAM_TOKEN", a.UpstreamToken))
	sb.WriteString(envLine("YOLO_CAGE_COMMITTER_NAME", a.CommitterName))
	sb.WriteString(envLine("YOLO_CAGE_COMMITTER_EMAIL", a.CommitterEmail))
	sb.WriteString(envLine("YOLO_CAGE_NAMESPACE", a.Namespace))
	sb.WriteString(envLine("YOLO_CAGE_POD_IMAGE", a.PodImage))
	sb.WriteString(envLine("YOLO_CAGE_FORGE_API_HOST", a.ForgeAPIHost))
	sb.WriteString(envLine("YOLO_CAGE_PROXY_CA_CERT", a.ProxyCACert))
	sb.WriteString(envLine("YOLO_CAGE_REAPER_SCHEDULE", a.ReaperSchedule))
	sb.WriteString(envLine("YOLO_CAGE_REAPER_MAX_AGE", a.ReaperMaxAge.String()))

	return os.WriteFile(path, []byte(sb.String()), 0o600)
}

// validateCron is a shallow sanity check (non-empty, five whitespace-
// separated fields); the authoritative check is reaper.Reaper.Validate,
// which calls gronx itself once the dispatcher boots. Kept shallow here
// so the wizard doesn't need to import internal/reaper just to validate
// a string field.
func validateCron(s string) error {
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return fmt.Errorf("expected 5 whitespace-separated fields, got %d", len(fields))
	}
	return nil
}
