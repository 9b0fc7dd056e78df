package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"morph/internal/daemonctl"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
		newStatusCommand(ctx),
	}
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	if ctx.configFlag != nil {
		opts.ConfigPath = strings.TrimSpace(*ctx.configFlag)
	}
	return opts
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the morph daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), daemonStartTimeout)
			if err != nil {
				return err
			}
			if result.Launched {
				fmt.Fprintln(out, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(out, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(out, "Daemon already running")
			default:
				if result.Message != "" {
					fmt.Fprintln(out, result.Message)
				} else {
					fmt.Fprintln(out, "Start request sent")
				}
			}
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the morph daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), daemonStopGrace)
			if err != nil {
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintln(out, "Daemon is not running")
					return nil
				}
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not stop gracefully, killed process %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the morph daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result, err := daemonctl.Restart(ctx.socketPath(), ctx.configValue(), exe, daemonLaunchOptions(ctx), daemonStopGrace, daemonStartTimeout)
			if err != nil {
				return err
			}
			if !result.WasRunning {
				fmt.Fprintln(out, "Daemon was not running")
			} else if result.Stop.ForcedKill {
				fmt.Fprintf(out, "Daemon did not stop gracefully, killed process %d\n", result.Stop.PID)
			}
			switch result.Start.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(out, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(out, "Daemon already running")
			default:
				fmt.Fprintln(out, "Start request sent")
			}
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range snapshot.SystemChecks {
				fmt.Fprintln(out, renderStatusLine(check.Label, statusKindFromSeverity(check.Severity), check.Detail, colorize))
			}
			if snapshot.Status.Running && snapshot.Status.PID > 0 {
				fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", snapshot.Status.PID), colorize))
			}
			if snapshot.Status.LastError != "" {
				fmt.Fprintln(out, renderStatusLine("Last Error", statusError, snapshot.Status.LastError, colorize))
			}
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			summary := snapshot.DependencySummary
			fmt.Fprintln(out, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
			for _, dep := range snapshot.Status.Dependencies {
				detail := dep.Detail
				if detail == "" && !dep.Available {
					detail = fmt.Sprintf("%s not found", dep.Command)
				}
				kind := statusKindFromSeverity(daemonctl.DependencySeverity(dep))
				fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
			}
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Directories", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range snapshot.DirectoryChecks {
				fmt.Fprintln(out, renderStatusLine(check.Label, statusKindFromSeverity(check.Severity), check.Detail, colorize))
			}
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Queue Status", colorize) {
				fmt.Fprintln(out, line)
			}
			rows := buildQueueStatusRows(snapshot.Status.QueueStats)
			if len(rows) == 0 {
				fmt.Fprintln(out, statusIndent+"Queue is empty")
				return nil
			}
			table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(out, table)
			return nil
		},
	}
}
