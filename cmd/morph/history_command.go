package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"morph/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var clientID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversions for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(clientID, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No conversions recorded for %s\n", clientID)
					return nil
				}

				rows := make([][]string, 0, len(resp.Entries))
				for _, entry := range resp.Entries {
					outcome := "ok"
					if !entry.Success {
						outcome = "failed"
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", entry.ID),
						fmt.Sprintf("%s -> %s", entry.SourceFormat, entry.TargetFormat),
						formatByteSize(entry.InputSize),
						formatByteSize(entry.OutputSize),
						formatDurationMS(entry.DurationMS),
						outcome,
						formatDisplayTime(entry.CreatedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Conversion", "In", "Out", "Duration", "Result", "When"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "local", "Client identifier")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
