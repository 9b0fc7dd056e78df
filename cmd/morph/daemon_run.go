package main

import (
	"strings"

	"github.com/spf13/cobra"

	"morph/internal/daemonrun"
)

// newDaemonRunCommand runs the daemon in the foreground. `morph start`
// spawns this as a detached subprocess.
func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the morph daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if ctx.socketFlag != nil {
				if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
					cfg.Paths.SocketPath = socket
				}
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Log to stderr in a human-readable format")
	return cmd
}
