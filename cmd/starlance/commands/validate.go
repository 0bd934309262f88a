package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the mission catalog",
		Long: `Load the universe and every mission file, reporting what parsed, what was
skipped and why.

This command checks:
  - Mission header syntax and required fields
  - Chapter regex and conditional fragment compilation
  - Spob and system references against the universe
  - Script chunk compilation and execution`,
		Example: `  # Validate with the default config
  starlance validate

  # Fail on any skipped mission file
  starlance validate --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.tel.Shutdown(cmd.Context())

			total := countMissionFiles(eng.cfg.MissionsDir)
			loaded := eng.cat.Len()

			log.Info().
				Int("loaded", loaded).
				Int("files", total).
				Msg("Catalog validated")

			fmt.Printf("%d of %d mission files loaded\n", loaded, total)
			if strict && loaded < total {
				return fmt.Errorf("%d mission files failed to load", total-loaded)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any mission file is skipped")

	return cmd
}
