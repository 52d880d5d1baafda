package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yolo-cage/yolo-cage/internal/config"
	"github.com/yolo-cage/yolo-cage/internal/egress"
	"github.com/yolo-cage/yolo-cage/internal/scanner"
	"github.com/yolo-cage/yolo-cage/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the egress proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	log := setupLogging()

	cfg, err := config.LoadProxy()
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}

	policy, err := config.NewPolicyWatcher(cfg.PolicyPath, log)
	if err != nil {
		return fmt.Errorf("proxy: load egress policy: %w", err)
	}
	defer policy.Close()

	certs, err := egress.LoadCertStore(cfg.CACertPath, cfg.CAKeyPath)
	if err != nil {
		return fmt.Errorf("proxy: load CA: %w", err)
	}

	sc := scanner.New(cfg.ScannerURL, cfg.ScannerToken, config.ScannerTimeout)

	logger, err := egress.NewLogger(cfg.LogPath, log)
	if err != nil {
		return fmt.Errorf("proxy: open egress log: %w", err)
	}
	defer logger.Close()

	tp, err := telemetry.Setup(ctx, telemetry.ConfigFromEndpoint(cfg.OTLPEndpoint, "yolo-cage-proxy"))
	if err != nil {
		return fmt.Errorf("proxy: telemetry setup: %w", err)
	}
	defer tp.Shutdown(context.Background())

	proxy := egress.NewProxy(policy, sc, certs, cfg.ForgeAPIHost, logger, log)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: proxy,
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("egress proxy starting", "addr", cfg.ListenAddr, "forge_api_host", cfg.ForgeAPIHost)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("proxy: %w", err)
	}
	return nil
}

func setupLogging() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}
