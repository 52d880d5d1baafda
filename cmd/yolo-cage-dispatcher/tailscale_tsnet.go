//go:build tsnet

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/yolo-cage/yolo-cage/internal/config"
)

// tailscaleListener starts a tsnet node and returns a listener bound to the
// tailnet instead of a plain TCP socket, when cfg.TailscaleAuthKey is set.
// Grounded on the teacher's TailscaleConfig (Hostname/AuthKey/StateDir) and
// its "build with -tags tsnet to enable" gating — the teacher's own
// initTailscale wiring wasn't part of the retrieved pack, so the tsnet.Server
// field usage here follows tsnet's own documented Server/Listen API.
func tailscaleListener(ctx context.Context, cfg *config.Dispatcher) (net.Listener, func(), error) {
	if cfg.TailscaleAuthKey == "" {
		return nil, nil, nil
	}

	stateDir := filepath.Join(os.TempDir(), "tsnet-yolo-cage-dispatcher")
	srv := &tsnet.Server{
		Hostname: cfg.TailscaleHost,
		AuthKey:  cfg.TailscaleAuthKey,
		Dir:      stateDir,
	}

	if _, err := srv.Up(ctx); err != nil {
		return nil, nil, fmt.Errorf("tsnet: bring up tailnet node: %w", err)
	}

	ln, err := srv.Listen("tcp", ":443")
	if err != nil {
		srv.Close()
		return nil, nil, fmt.Errorf("tsnet: listen: %w", err)
	}

	return ln, func() { srv.Close() }, nil
}
