package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show jobID",
		Short: "Show details for a queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]

			return ctx.withQueue(func(q queueAPI) error {
				job, err := q.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %d not found", id)
				}
				if asJSON {
					return writeJSON(cmd, job)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %d\n", job.ID)
				fmt.Fprintf(out, "  Client:      %s\n", job.ClientID)
				fmt.Fprintf(out, "  Source:      %s\n", job.SourceName)
				fmt.Fprintf(out, "  Conversion:  %s -> %s (%s)\n", job.SourceFormat, job.TargetFormat, job.Category)
				fmt.Fprintf(out, "  Status:      %s\n", formatStatusLabel(job.Status))
				if job.Progress.Stage != "" {
					fmt.Fprintf(out, "  Progress:    %s (%.0f%%)\n", job.Progress.Stage, job.Progress.Percent)
				}
				if job.Progress.Message != "" {
					fmt.Fprintf(out, "  Message:     %s\n", job.Progress.Message)
				}
				fmt.Fprintf(out, "  Input size:  %s\n", formatByteSize(job.InputSize))
				if job.OutputSize > 0 {
					fmt.Fprintf(out, "  Output size: %s\n", formatByteSize(job.OutputSize))
				}
				if job.DeliveredPath != "" {
					fmt.Fprintf(out, "  Delivered:   %s\n", job.DeliveredPath)
				}
				if job.RemoteObject != "" {
					fmt.Fprintf(out, "  Remote:      %s\n", job.RemoteObject)
				}
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:       %s\n", job.ErrorMessage)
				}
				if job.NeedsReview {
					fmt.Fprintf(out, "  Review:      %s\n", job.ReviewReason)
				}
				fmt.Fprintf(out, "  Created:     %s\n", formatDisplayTime(job.CreatedAt))
				fmt.Fprintf(out, "  Updated:     %s\n", formatDisplayTime(job.UpdatedAt))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
