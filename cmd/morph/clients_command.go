package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"morph/internal/ipc"
)

func newClientsCommand(ctx *commandContext) *cobra.Command {
	clientsCmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage registered clients",
	}

	clientsCmd.AddCommand(newClientsListCommand(ctx))
	clientsCmd.AddCommand(newClientsBanCommand(ctx, true))
	clientsCmd.AddCommand(newClientsBanCommand(ctx, false))

	return clientsCmd
}

func newClientsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Clients()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Clients) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No clients registered")
					return nil
				}

				rows := make([][]string, 0, len(resp.Clients))
				for _, info := range resp.Clients {
					rows = append(rows, []string{
						info.ClientID,
						formatDisplayTime(info.FirstSeen),
						fmt.Sprintf("%d", info.TotalConversions),
						yesNo(info.Banned),
					})
				}
				table := renderTable(
					[]string{"Client", "First Seen", "Conversions", "Banned"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newClientsBanCommand(ctx *commandContext, ban bool) *cobra.Command {
	use := "ban CLIENT"
	short := "Ban a client from submitting conversions"
	if !ban {
		use = "unban CLIENT"
		short = "Lift a client ban"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID := strings.TrimSpace(args[0])
			if clientID == "" {
				return fmt.Errorf("client id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetBanned(clientID, ban)
				if err != nil {
					return err
				}
				if resp.Banned {
					fmt.Fprintf(cmd.OutOrStdout(), "Client %s banned\n", resp.ClientID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Client %s unbanned\n", resp.ClientID)
				}
				return nil
			})
		},
	}
}
