package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"carousel/internal/bus"
	"carousel/internal/ipc"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent pipeline events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Events(limit)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Events) == 0 {
					fmt.Fprintln(stdout, "No events recorded")
					return nil
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"Time", "Step", "Detail"},
					eventRows(resp.Events),
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(stdout)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show")
	return cmd
}

func eventRows(events []bus.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, evt := range events {
		rows = append(rows, []string{
			evt.Timestamp.Local().Format(time.TimeOnly),
			string(evt.Step),
			eventDetail(evt),
		})
	}
	return rows
}

func eventDetail(evt bus.Event) string {
	switch {
	case evt.Folder != "" && evt.Message != "":
		return fmt.Sprintf("%s: %s", evt.Folder, evt.Message)
	case evt.Folder != "":
		return evt.Folder
	default:
		return evt.Message
	}
}
