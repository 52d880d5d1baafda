//go:build !tsnet

package main

import (
	"context"
	"fmt"
	"net"

	"github.com/yolo-cage/yolo-cage/internal/config"
)

// tailscaleListener is the default (non-tsnet) build: the tailnet listener
// mode requires `go build -tags tsnet`, matching the teacher's own
// TailscaleConfig doc comment ("Requires building with -tags tsnet").
func tailscaleListener(ctx context.Context, cfg *config.Dispatcher) (net.Listener, func(), error) {
	if cfg.TailscaleAuthKey == "" {
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("tsnet: YOLO_CAGE_TAILSCALE_AUTHKEY is set but this binary was built without -tags tsnet")
}
