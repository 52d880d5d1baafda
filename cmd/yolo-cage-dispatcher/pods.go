package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/yolo-cage/yolo-cage/internal/config"
	"github.com/yolo-cage/yolo-cage/pkg/protocol"
)

// podsCmd is a thin CLI client over the dispatcher's own /pods* HTTP
// surface (spec §6, §4.8) — it never touches Kubernetes directly, so it
// works the same whether the operator is running it from their laptop or
// from inside the cluster.
func podsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "pods",
		Short: "Inspect or remove sandbox pods via the dispatcher HTTP API",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "dispatcher base URL (default: YOLO_CAGE_DISPATCHER_ADDR)")
	cmd.AddCommand(podsListCmd(&addr), podsDeleteCmd(&addr))
	return cmd
}

func podsListCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every sandbox pod",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveDispatcherAddr(*addr)
			if err != nil {
				return err
			}
			resp, err := http.Get(base + "/pods")
			if err != nil {
				return fmt.Errorf("dispatcher: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return dispatcherError(resp)
			}
			var records []protocol.SandboxRecord
			if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
				return fmt.Errorf("dispatcher: decode response: %w", err)
			}
			for _, r := range records {
				fmt.Printf("%-30s %-10s %-16s %s\n", r.Branch, r.Phase, r.Address, r.Created.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}

func podsDeleteCmd(addr *string) *cobra.Command {
	var cleanWorkspace bool
	cmd := &cobra.Command{
		Use:   "delete <branch>",
		Short: "Delete the sandbox pod for a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveDispatcherAddr(*addr)
			if err != nil {
				return err
			}
			url := fmt.Sprintf("%s/pods/%s?clean=%t", base, args[0], cleanWorkspace)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("dispatcher: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return dispatcherError(resp)
			}
			var out struct {
				Existed bool `json:"existed"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("dispatcher: decode response: %w", err)
			}
			if !out.Existed {
				fmt.Printf("no sandbox pod found for branch %q\n", args[0])
				return nil
			}
			fmt.Printf("deleted sandbox pod for branch %q\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanWorkspace, "clean-workspace", false, "also remove the on-disk workspace directory")
	return cmd
}

func resolveDispatcherAddr(flagAddr string) (string, error) {
	if flagAddr != "" {
		return flagAddr, nil
	}
	cfg, err := config.LoadDispatcher()
	if err != nil {
		return "", fmt.Errorf("dispatcher: %w", err)
	}
	return cfg.DispatcherAddr, nil
}

func dispatcherError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("dispatcher: %s: %s", resp.Status, bytes.TrimSpace(body))
}
