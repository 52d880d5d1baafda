package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yolo-cage/yolo-cage/internal/onboard"
)

func initCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively configure the dispatcher and write its env file",
		RunE: func(cmd *cobra.Command, args []string) error {
			answers, err := onboard.Run(os.Stdout)
			if err != nil {
				return err
			}
			if err := onboard.WriteEnvFile(out, answers); err != nil {
				return err
			}
			fmt.Printf("Wrote %s — source it before running `yolo-cage-dispatcher serve`.\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "/etc/yolo-cage/dispatcher.env", "path to write the generated env file")
	return cmd
}
