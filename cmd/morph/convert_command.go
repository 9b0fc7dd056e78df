package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"morph/internal/config"
	"morph/internal/format"
	"morph/internal/ipc"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Queue a local file for conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target = format.Normalize(target)
			if target == "" {
				return errors.New("target format is required (use --to)")
			}
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Convert(path, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d: %s -> %s (position %d)\n",
					resp.Job.ID, resp.Job.SourceFormat, resp.Job.TargetFormat, resp.Position)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&target, "to", "t", "", "Target format, e.g. jpg, mp3, pdf")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
