package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"morph/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage morph configuration",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())
	configCmd.AddCommand(newConfigValidateCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var path string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(path)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				target = defaultPath
			}
			expanded, err := config.ExpandPath(target)
			if err != nil {
				return err
			}

			if _, statErr := os.Stat(expanded); statErr == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", expanded)
			}

			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", expanded)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "Destination path for the sample config")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing config file")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var path string
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "show",
		Short:       "Show the effective configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(path))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, cfg)
			}

			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Configuration file: %s\n", resolved)
			} else {
				fmt.Fprintln(out, "No configuration file found, using defaults")
			}
			fmt.Fprintf(out, "Inbox:           %s\n", cfg.Paths.InboxDir)
			fmt.Fprintf(out, "Work:            %s\n", cfg.Paths.WorkDir)
			fmt.Fprintf(out, "Output:          %s\n", cfg.Paths.OutputDir)
			fmt.Fprintf(out, "Logs:            %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Socket:          %s\n", cfg.Paths.SocketPath)
			fmt.Fprintf(out, "HTTP API:        %s\n", valueOrDisabled(cfg.API.Bind))
			fmt.Fprintf(out, "Max file size:   %d MB\n", cfg.Limits.MaxFileSizeMB)
			fmt.Fprintf(out, "Concurrency:     %d\n", cfg.Limits.MaxConcurrentJobs)
			fmt.Fprintf(out, "Inbox watcher:   %s\n", yesNo(cfg.Watch.Enabled))
			fmt.Fprintf(out, "Remote storage:  %s\n", yesNo(cfg.Storage.Enabled))
			fmt.Fprintf(out, "Notifications:   %s\n", valueOrDisabled(cfg.Notifications.NtfyTopic))
			fmt.Fprintf(out, "Log level:       %s\n", cfg.Logging.Level)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "Configuration file path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func valueOrDisabled(value string) string {
	if strings.TrimSpace(value) == "" {
		return "disabled"
	}
	return value
}

func newConfigValidateCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(path))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Configuration file: %s\n", resolved)
			} else {
				fmt.Fprintln(out, "No configuration file found, using defaults")
			}
			fmt.Fprintf(out, "Inbox:  %s\n", cfg.Paths.InboxDir)
			fmt.Fprintf(out, "Work:   %s\n", cfg.Paths.WorkDir)
			fmt.Fprintf(out, "Output: %s\n", cfg.Paths.OutputDir)
			fmt.Fprintf(out, "Logs:   %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Socket: %s\n", cfg.Paths.SocketPath)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "Configuration file path")
	return cmd
}
