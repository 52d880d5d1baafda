package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	k8srest "k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/yolo-cage/yolo-cage/internal/config"
	"github.com/yolo-cage/yolo-cage/internal/dispatcherhttp"
	"github.com/yolo-cage/yolo-cage/internal/executor"
	"github.com/yolo-cage/yolo-cage/internal/podlifecycle"
	"github.com/yolo-cage/yolo-cage/internal/reaper"
	"github.com/yolo-cage/yolo-cage/internal/registry"
	"github.com/yolo-cage/yolo-cage/internal/telemetry"
	"k8s.io/client-go/kubernetes"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	log := setupLogging()

	cfg, err := config.LoadDispatcher()
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	k8sClient, err := buildKubernetesClient()
	if err != nil {
		return fmt.Errorf("dispatcher: build kubernetes client: %w", err)
	}

	reg := registry.New()
	exec := executor.New()
	pods := podlifecycle.New(k8sClient, cfg.Namespace, cfg.PodImage)
	pods.DispatcherAddr = cfg.DispatcherAddr
	pods.ProxyAddr = cfg.ProxyAddr
	pods.ForgeAPIBypass = cfg.ForgeAPIBypass
	pods.WorkspaceRoot = cfg.WorkspaceRoot
	pods.NodeName = cfg.NodeName

	tp, err := telemetry.Setup(ctx, telemetry.ConfigFromEndpoint(cfg.OTLPEndpoint, "yolo-cage-dispatcher"))
	if err != nil {
		return fmt.Errorf("dispatcher: telemetry setup: %w", err)
	}
	defer tp.Shutdown(context.Background())

	srv := dispatcherhttp.New(reg, exec, pods)
	srv.WorkspaceRoot = cfg.WorkspaceRoot
	srv.UpstreamURL = cfg.UpstreamURL
	srv.UpstreamToken = cfg.UpstreamToken
	srv.Identity = executor.Identity{Name: cfg.CommitterName, Email: cfg.CommitterEmail}
	srv.PrePushHooks = cfg.PrePushHooks
	srv.VersionBanner = Version
	srv.Telemetry = tp

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ReaperSchedule != "" {
		rp := reaper.New(pods, reg, cfg.ReaperSchedule, cfg.ReaperMaxAge, log)
		go func() {
			if err := rp.Run(runCtx); err != nil && runCtx.Err() == nil {
				log.Error("reaper stopped unexpectedly", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Handler: srv.BuildMux(),
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	// A Tailscale auth key switches the listener from a plain TCP socket to
	// a tsnet-backed one (spec's optional private control-plane exposure
	// mode); see tailscale_tsnet.go/tailscale_notsnet.go.
	tsListener, tsCleanup, err := tailscaleListener(runCtx, cfg)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	if tsCleanup != nil {
		defer tsCleanup()
	}

	var ln net.Listener
	if tsListener != nil {
		ln = tsListener
		log.Info("dispatcher starting on tailnet", "hostname", cfg.TailscaleHost, "namespace", cfg.Namespace)
	} else {
		ln, err = net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("dispatcher: listen: %w", err)
		}
		log.Info("dispatcher starting", "addr", cfg.ListenAddr, "namespace", cfg.Namespace)
	}

	if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dispatcher: %w", err)
	}
	return nil
}

// buildKubernetesClient tries in-cluster config first (the normal deploy
// path: the dispatcher runs as a pod itself), falling back to
// $KUBECONFIG/~/.kube/config for local development.
func buildKubernetesClient() (kubernetes.Interface, error) {
	restCfg, err := k8srest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			kubeconfig = os.Getenv("HOME") + "/.kube/config"
		}
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, err
		}
	}
	return kubernetes.NewForConfig(restCfg)
}
