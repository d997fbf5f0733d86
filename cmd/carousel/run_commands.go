package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carousel/internal/ipc"
)

func newRunCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new capture run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Started {
					fmt.Fprintln(stdout, "Capture run started")
				} else {
					fmt.Fprintf(stdout, "Run not started: %s\n", resp.Message)
				}
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop-monitoring",
		Short: "Stop polling and ingestion for the current run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StopMonitoring()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Stopped {
					fmt.Fprintln(stdout, "Monitoring stopped")
				} else {
					fmt.Fprintf(stdout, "Monitoring not stopped: %s\n", resp.Message)
				}
				return nil
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Abandon the current run and clear recovery state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reset()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Reset {
					fmt.Fprintln(stdout, "Run reset")
				} else {
					fmt.Fprintf(stdout, "Reset failed: %s\n", resp.Message)
				}
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, stopCmd, resetCmd}
}
