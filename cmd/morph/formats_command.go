package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"morph/internal/api"
	"morph/internal/format"
)

func newFormatsCommand() *cobra.Command {
	var input string
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "formats",
		Short:       "List supported formats and conversion targets",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			matrix := api.FormatMatrix()

			if trimmed := format.Normalize(input); trimmed != "" {
				for _, info := range matrix {
					if info.Format == trimmed {
						if asJSON {
							return writeJSON(cmd, info)
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s\n", info.Format, info.Category, strings.Join(info.Targets, ", "))
						return nil
					}
				}
				return fmt.Errorf("unsupported format %q", input)
			}

			if asJSON {
				return writeJSON(cmd, api.FormatsResponse{Formats: matrix})
			}

			rows := make([][]string, 0, len(matrix))
			for _, info := range matrix {
				rows = append(rows, []string{info.Format, info.Category, strings.Join(info.Targets, ", ")})
			}
			table := renderTable([]string{"Format", "Category", "Targets"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Show targets for a single source format")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
