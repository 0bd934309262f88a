package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	var location string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded mission templates",
		Long: `List the mission templates in priority order, showing where each one can
appear and with what probability.`,
		Example: `  # List everything
  starlance list

  # Only bar missions
  starlance list --location Bar

  # Machine-readable output
  starlance list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.tel.Shutdown(cmd.Context())

			type row struct {
				Name     string `json:"name"`
				Location string `json:"location"`
				Chance   int    `json:"chance"`
				Priority int    `json:"priority"`
				Unique   bool   `json:"unique"`
			}

			var rows []row
			for _, t := range eng.cat.Templates() {
				loc := t.Avail.Location.String()
				if location != "" && loc != location {
					continue
				}
				rows = append(rows, row{
					Name:     t.Name,
					Location: loc,
					Chance:   t.Avail.Chance,
					Priority: t.Avail.Priority,
					Unique:   t.Unique,
				})
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLOCATION\tCHANCE\tPRIORITY\tUNIQUE")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\n", r.Name, r.Location, r.Chance, r.Priority, r.Unique)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "filter by spawn location (None, Computer, Bar, Land, Enter)")

	return cmd
}
