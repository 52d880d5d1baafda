// Command yolo-cage-dispatcher runs the dispatcher HTTP service (spec
// §4.9): the version-control command gateway sandbox pods talk to through
// their shim, plus sandbox pod lifecycle management. Cobra root +
// subcommand layout grounded on the teacher's cmd/root.go; here there is a
// single persistent --verbose flag, subcommands are registered in main(),
// and there is a version subcommand. The serve command's listen/shutdown
// shape is grounded on internal/gateway/server.go's Start (ctx.Done()
// triggers a bounded Shutdown, Serve runs in the foreground on the
// listener).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
// "-X main.Version=v1.0.0".
var Version = "dev"

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "yolo-cage-dispatcher",
		Short: "yolo-cage dispatcher — version-control command gateway and sandbox lifecycle manager",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(serveCmd(), versionCmd(), initCmd(), podsCmd(), doctorCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("yolo-cage-dispatcher %s\n", Version)
		},
	}
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
