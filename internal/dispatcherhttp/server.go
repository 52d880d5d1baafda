// Package dispatcherhttp implements spec §4.9: the dispatcher's HTTP
// surface. It glues classify+policy+executor+hooks+registry+workspace+
// podlifecycle behind the endpoint table in spec §6. Handler-struct and
// mux-wiring idiom grounded on the teacher's internal/http/agents.go
// (NewXHandler + RegisterRoutes(mux)) and internal/gateway/server.go
// (BuildMux caching a *http.ServeMux).
package dispatcherhttp

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yolo-cage/yolo-cage/internal/executor"
	"github.com/yolo-cage/yolo-cage/internal/podlifecycle"
	"github.com/yolo-cage/yolo-cage/internal/registry"
	"github.com/yolo-cage/yolo-cage/internal/telemetry"
	"github.com/yolo-cage/yolo-cage/internal/workspace"
	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// Server bundles the dispatcher's dependencies. Every field is set once at
// construction; handlers only read from it, the same way the teacher's
// gateway.Server holds its collaborators as plain fields.
type Server struct {
	Registry *registry.Registry
	Exec     *executor.Executor
	Pods     *podlifecycle.Manager

	WorkspaceRoot  string
	UpstreamURL    string
	UpstreamToken  string
	Identity       executor.Identity
	PrePushHooks   []string
	VersionBanner  string

	// Telemetry wraps every handler in a span when non-nil. A nil value is
	// valid (e.g. in unit tests) and simply skips instrumentation.
	Telemetry *telemetry.Provider

	mux *http.ServeMux
}

// New constructs a Server from its collaborators. Callers (cmd/yolo-cage-
// dispatcher) wire config.Dispatcher's fields into this directly.
func New(reg *registry.Registry, exec *executor.Executor, pods *podlifecycle.Manager) *Server {
	return &Server{Registry: reg, Exec: exec, Pods: pods}
}

// workspaceParams builds the workspace.Params this server's bootstrap and
// branch-inspection calls share.
func (s *Server) workspaceParams() workspace.Params {
	return workspace.Params{
		Exec:        s.Exec,
		Identity:    s.Identity,
		UpstreamURL: s.UpstreamURL,
		Token:       s.UpstreamToken,
	}
}

// BuildMux creates and caches the HTTP mux with all routes registered
// (spec §6's endpoint table), using Go 1.22+ method-and-pattern routing.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.traced("GET /health", s.handleHealth))
	mux.HandleFunc("POST /register", s.traced("POST /register", s.handleRegister))
	mux.HandleFunc("DELETE /register", s.traced("DELETE /register", s.handleDeregister))
	mux.HandleFunc("GET /registry", s.traced("GET /registry", s.handleRegistry))
	mux.HandleFunc("POST /bootstrap", s.traced("POST /bootstrap", s.handleBootstrap))
	mux.HandleFunc("POST /git", s.traced("POST /git", s.handleGit))
	mux.HandleFunc("POST /gh", s.traced("POST /gh", s.handleGh))
	mux.HandleFunc("POST /pods", s.traced("POST /pods", s.handleCreatePod))
	mux.HandleFunc("GET /pods", s.traced("GET /pods", s.handleListPods))
	mux.HandleFunc("GET /pods/{branch...}", s.traced("GET /pods/{branch}", s.handleGetPod))
	mux.HandleFunc("DELETE /pods/{branch...}", s.traced("DELETE /pods/{branch}", s.handleDeletePod))

	s.mux = mux
	return mux
}

// traced wraps handler in a telemetry span named after route (spec §4.10/
// §4.12's "span around each HTTP handler" ambient requirement). With no
// Telemetry configured, it calls handler directly.
func (s *Server) traced(route string, handler http.HandlerFunc) http.HandlerFunc {
	if s.Telemetry == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.Telemetry.StartHandlerSpan(r.Context(), route)
		handler(w, r.WithContext(ctx))
		telemetry.EndSpan(span, start, nil)
	}
}

// callerID returns the caller's observed address (spec §4.9: "register"
// binds the caller's *observed* identity, not a claimed one). The registry
// is keyed on this, never on anything the request body supplies.
func callerID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) assignedBranch(r *http.Request) (string, bool) {
	return s.Registry.Lookup(callerID(r))
}

func logRequest(r *http.Request, msg string, args ...interface{}) {
	slog.Info(msg, append([]interface{}{"method", r.Method, "path", r.URL.Path}, args...)...)
}

// runExec executes binary unauthenticated, wrapped in a telemetry span when
// Telemetry is configured (spec §4.9/§4.12's "span around each executor
// invocation" ambient requirement).
func (s *Server) runExec(r *http.Request, binary string, args []string, cwd, branch string) protocol.CommandResult {
	if s.Telemetry == nil {
		return s.Exec.Run(r.Context(), binary, args, cwd, s.Identity)
	}
	start := time.Now()
	ctx, span := s.Telemetry.StartExecSpan(r.Context(), binary, branch)
	result := s.Exec.Run(ctx, binary, args, cwd, s.Identity)
	telemetry.EndSpan(span, start, resultErr(result))
	return result
}

// runExecAuthenticated is runExec's authenticated counterpart.
func (s *Server) runExecAuthenticated(r *http.Request, binary string, args []string, cwd, branch string) protocol.CommandResult {
	if s.Telemetry == nil {
		return s.Exec.RunAuthenticated(r.Context(), binary, args, cwd, s.Identity, s.UpstreamToken)
	}
	start := time.Now()
	ctx, span := s.Telemetry.StartExecSpan(r.Context(), binary, branch)
	result := s.Exec.RunAuthenticated(ctx, binary, args, cwd, s.Identity, s.UpstreamToken)
	telemetry.EndSpan(span, start, resultErr(result))
	return result
}

func resultErr(result protocol.CommandResult) error {
	if result.ExitCode == 0 {
		return nil
	}
	return fmt.Errorf("exit code %d", result.ExitCode)
}
