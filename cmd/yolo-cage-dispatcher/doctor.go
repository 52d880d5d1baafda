package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/yolo-cage/yolo-cage/internal/config"
)

// doctorCmd checks the dispatcher's environment and reports health,
// grounded on the teacher's cmd/doctor.go's "print version/OS/Go, then
// check each configured dependency and print OK/FAILED" shape.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		RunE: func(cmd *cobra.Command, args []string) error {
			runDoctor()
			return nil
		},
	}
}

func runDoctor() {
	fmt.Println("yolo-cage-dispatcher doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfg, err := config.LoadDispatcher()
	if err != nil {
		fmt.Printf("  Config:   FAILED (%s)\n", err)
		return
	}
	fmt.Println("  Config:   OK")
	fmt.Printf("    %-18s %s\n", "Workspace root:", cfg.WorkspaceRoot)
	fmt.Printf("    %-18s %s\n", "Upstream URL:", cfg.UpstreamURL)
	fmt.Printf("    %-18s %s\n", "Namespace:", cfg.Namespace)

	if _, err := os.Stat(cfg.WorkspaceRoot); err != nil {
		fmt.Printf("  Workspace root: NOT FOUND (%s)\n", err)
	} else {
		fmt.Println("  Workspace root: OK")
	}

	fmt.Print("  Kubernetes: ")
	client, err := buildKubernetesClient()
	if err != nil {
		fmt.Printf("FAILED (%s)\n", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := client.CoreV1().Namespaces().Get(ctx, cfg.Namespace, metav1.GetOptions{}); err != nil {
			fmt.Printf("FAILED (%s)\n", err)
		} else {
			fmt.Println("OK")
		}
	}

	if cfg.ReaperSchedule != "" {
		fmt.Printf("  Reaper:   enabled (%s, max age %s)\n", cfg.ReaperSchedule, cfg.ReaperMaxAge)
	} else {
		fmt.Println("  Reaper:   disabled")
	}
}
