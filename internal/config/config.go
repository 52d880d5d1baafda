// Package config loads the dispatcher's and egress proxy's environment-driven
// configuration (spec §6) plus the JSON5 egress policy document that backs
// §4.10's host/forge-API blocklists.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Dispatcher holds everything the dispatcher process needs at boot. Every
// field is env-driven per spec §6; there is no config file for the
// dispatcher itself (only the egress proxy's policy document is a file).
type Dispatcher struct {
	WorkspaceRoot   string
	UpstreamURL     string
	UpstreamToken   string
	CommitterName   string
	CommitterEmail  string
	PrePushHooks    []string
	VersionBanner   string
	ForgeAPIBypass  []string

	ScannerURL   string
	ScannerToken string

	Namespace   string
	PodImage    string
	ProxyCACert string

	// NodeName is the Kubernetes node the dispatcher's own pod is
	// scheduled on (populated via a downward-API fieldRef: spec.nodeName
	// env var in the dispatcher's own pod spec). Every sandbox pod is
	// pinned to this same node via spec.nodeName so its hostPath
	// workspace mount resolves to the same on-disk directory the
	// dispatcher bootstraps and runs git against.
	NodeName string

	// DispatcherAddr and ProxyAddr are handed to every sandbox pod so the
	// in-pod shim and the container's HTTP(S)_PROXY env point back here.
	DispatcherAddr string
	ProxyAddr      string

	ListenAddr string

	// TailscaleAuthKey, when set, switches the dispatcher's HTTP listener
	// to a tsnet-backed one instead of a plain TCP listener. Never
	// persisted; auth key from env only.
	TailscaleAuthKey string
	TailscaleHost    string

	OTLPEndpoint string

	// ReaperSchedule is a cron expression (github.com/adhocore/gronx syntax)
	// governing how often the stale-sandbox sweep runs. Empty disables the
	// reaper entirely.
	ReaperSchedule string
	// ReaperMaxAge is how long a sandbox pod may exist before the reaper
	// considers it stale and deletes it.
	ReaperMaxAge time.Duration
}

// Proxy holds the egress proxy's environment-driven configuration.
type Proxy struct {
	ListenAddr      string
	PolicyPath      string
	LogPath         string
	ScannerURL      string
	ScannerToken    string
	ForgeAPIHost    string
	CACertPath      string
	CAKeyPath       string
	OTLPEndpoint    string
}

func must(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("config: required env var %s is unset", key)
	}
	return v, nil
}

func optional(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func optionalList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func optionalDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// LoadDispatcher reads the dispatcher's configuration from the environment.
func LoadDispatcher() (*Dispatcher, error) {
	root, err := must("YOLO_CAGE_WORKSPACE_ROOT")
	if err != nil {
		return nil, err
	}
	upstream, err := must("YOLO_CAGE_UPSTREAM_URL")
	if err != nil {
		return nil, err
	}
	token, err := must("YOLO_CAGE_UPSTREAM_TOKEN")
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		WorkspaceRoot:    root,
		UpstreamURL:      upstream,
		UpstreamToken:    token,
		CommitterName:    optional("YOLO_CAGE_COMMITTER_NAME", "yolo-cage-agent"),
		CommitterEmail:   optional("YOLO_CAGE_COMMITTER_EMAIL", "agent@yolo-cage.invalid"),
		PrePushHooks:     optionalList("YOLO_CAGE_PRE_PUSH_HOOKS"),
		VersionBanner:    optional("YOLO_CAGE_VERSION", "dev"),
		ForgeAPIBypass:   optionalList("YOLO_CAGE_FORGE_API_BYPASS"),
		ScannerURL:       optional("YOLO_CAGE_SCANNER_URL", ""),
		ScannerToken:     optional("YOLO_CAGE_SCANNER_TOKEN", ""),
		Namespace:        optional("YOLO_CAGE_NAMESPACE", "default"),
		PodImage:         optional("YOLO_CAGE_POD_IMAGE", "yolo-cage/agent:latest"),
		NodeName:         os.Getenv("YOLO_CAGE_NODE_NAME"),
		ProxyCACert:      optional("YOLO_CAGE_PROXY_CA_CERT", "/etc/yolo-cage/proxy-ca.pem"),
		DispatcherAddr:   optional("YOLO_CAGE_DISPATCHER_ADDR", "http://yolo-cage-dispatcher:8080"),
		ProxyAddr:        optional("YOLO_CAGE_PROXY_ADDR", "http://yolo-cage-proxy:3128"),
		ListenAddr:       optional("YOLO_CAGE_LISTEN_ADDR", ":8080"),
		TailscaleAuthKey: os.Getenv("YOLO_CAGE_TAILSCALE_AUTHKEY"),
		TailscaleHost:    optional("YOLO_CAGE_TAILSCALE_HOST", "yolo-cage-dispatcher"),
		OTLPEndpoint:     os.Getenv("YOLO_CAGE_OTLP_ENDPOINT"),
		ReaperSchedule:   os.Getenv("YOLO_CAGE_REAPER_SCHEDULE"),
		ReaperMaxAge:     optionalDuration("YOLO_CAGE_REAPER_MAX_AGE", 24*time.Hour),
	}, nil
}

// LoadProxy reads the egress proxy's configuration from the environment.
func LoadProxy() (*Proxy, error) {
	policy, err := must("YOLO_CAGE_EGRESS_POLICY_FILE")
	if err != nil {
		return nil, err
	}

	return &Proxy{
		ListenAddr:   optional("YOLO_CAGE_PROXY_LISTEN_ADDR", ":3128"),
		PolicyPath:   policy,
		LogPath:      optional("YOLO_CAGE_EGRESS_LOG_PATH", "/var/log/yolo-cage/egress.log"),
		ScannerURL:   optional("YOLO_CAGE_SCANNER_URL", ""),
		ScannerToken: optional("YOLO_CAGE_SCANNER_TOKEN", ""),
		ForgeAPIHost: optional("YOLO_CAGE_FORGE_API_HOST", "api.github.com"),
		CACertPath:   optional("YOLO_CAGE_PROXY_CA_CERT", "/etc/yolo-cage/proxy-ca.pem"),
		CAKeyPath:    optional("YOLO_CAGE_PROXY_CA_KEY", "/etc/yolo-cage/proxy-ca-key.pem"),
		OTLPEndpoint: os.Getenv("YOLO_CAGE_OTLP_ENDPOINT"),
	}, nil
}

// Resource-model timeout constants from spec §5. Only ScannerTimeout is
// referenced elsewhere (the proxy's scanner client); executor.New and
// hooks.Timeout carry their own 300s and 120s values, and no pod runtime
// call is bounded by PodRuntimeTimeout.
const (
	CommandTimeout     = 300 * time.Second
	HookTimeout        = 120 * time.Second
	ScannerTimeout      = 10 * time.Second
	PodRuntimeTimeout  = 30 * time.Second
)
