// Command yolo-cage-proxy runs the TLS-intercepting egress proxy (spec
// §4.10/§4.11): host/forge-API blocklists and secret scanning on every
// sandbox pod's outbound request. Cobra root layout grounded on the
// teacher's cmd/root.go.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0".
var Version = "dev"

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "yolo-cage-proxy",
		Short: "yolo-cage egress proxy — TLS-intercepting host/forge-API blocklist and secret scanner",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(serveCmd(), versionCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("yolo-cage-proxy %s\n", Version)
		},
	}
}
