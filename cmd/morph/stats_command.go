package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"morph/internal/ipc"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stats()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Clients:                %d\n", resp.Stats.TotalClients)
				fmt.Fprintf(out, "Total conversions:      %d\n", resp.Stats.TotalConversions)
				fmt.Fprintf(out, "Successful conversions: %d\n", resp.Stats.SuccessfulConversions)
				fmt.Fprintf(out, "Active today:           %d\n", resp.Activity.DailyActiveClients)
				fmt.Fprintf(out, "Active this week:       %d\n", resp.Activity.WeeklyActiveClients)

				if len(resp.Stats.PopularConversions) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Popular conversions:")
					for _, conv := range resp.Stats.PopularConversions {
						fmt.Fprintf(out, "  %s -> %s: %d\n", conv.SourceFormat, conv.TargetFormat, conv.Count)
					}
				}
				if len(resp.Activity.FormatDistribution) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Target formats:")
					for _, fc := range resp.Activity.FormatDistribution {
						fmt.Fprintf(out, "  %s: %d\n", fc.Format, fc.Count)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
