package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"carousel/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprint(stdout, renderTable(
					[]string{"Field", "Value"},
					statusRows(resp),
					[]columnAlignment{alignLeft, alignLeft},
				))
				fmt.Fprintln(stdout)
				return nil
			})
		},
	}
}

func statusRows(resp *ipc.StatusResponse) [][]string {
	rows := [][]string{
		{"Daemon running", yesNo(resp.Running)},
		{"PID", strconv.Itoa(resp.PID)},
		{"Stage", stageLabel(resp)},
	}
	if resp.RunID != "" {
		rows = append(rows, []string{"Run ID", resp.RunID})
		if !resp.StartedAt.IsZero() {
			rows = append(rows, []string{"Started", resp.StartedAt.Local().Format(time.RFC1123)})
		}
	}
	if resp.TrackedJobTitle != "" {
		rows = append(rows, []string{"Tracked job", resp.TrackedJobTitle})
	}
	rows = append(rows,
		[]string{"Tracking jobs", yesNo(resp.Tracking)},
		[]string{"Watching inbound", yesNo(resp.Watching)},
		[]string{"Download triggered", yesNo(resp.DownloadTriggered)},
	)
	if resp.MonitoringActive {
		detail := "yes"
		if !resp.MonitoringStartedAt.IsZero() {
			detail = fmt.Sprintf("yes (since %s)", resp.MonitoringStartedAt.Local().Format(time.Kitchen))
		}
		rows = append(rows, []string{"Monitoring flag", detail})
	}
	if resp.CompletionPhaseActive {
		rows = append(rows, []string{"Completion phase flag", "yes"})
	}
	rows = append(rows, []string{"Turntable present", yesNo(resp.DevicePresent)})
	if resp.Message != "" {
		rows = append(rows, []string{"Last error", resp.Message})
	}
	return rows
}

func stageLabel(resp *ipc.StatusResponse) string {
	if resp.Stage == "" || resp.Stage == "pending" {
		return "idle"
	}
	if resp.StageStatus != "" {
		return fmt.Sprintf("%s (%s)", resp.Stage, resp.StageStatus)
	}
	return resp.Stage
}
