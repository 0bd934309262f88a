package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the mission directory and hot-reload changed files",
		Long: `Load the catalog, then keep watching the mission directory. Changed or new
mission files are re-parsed and swapped into the catalog in place; files that
fail to parse keep their previous version.

Intended for mission development. Runs until interrupted.`,
		Example: `  # Watch with the default config
  starlance watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.tel.Shutdown(cmd.Context())

			// The config file may already have watch enabled; otherwise the
			// command implies it.
			w := eng.watcher
			if w == nil {
				if w, err = eng.cat.Watch(cmd.Context()); err != nil {
					return fmt.Errorf("starting watcher: %w", err)
				}
			}
			defer w.Close()

			log.Info().
				Str("dir", eng.cfg.MissionsDir).
				Int("loaded", eng.cat.Len()).
				Msg("Watching mission directory")
			fmt.Printf("watching %s (%d missions loaded), ctrl-c to stop\n",
				eng.cfg.MissionsDir, eng.cat.Len())

			<-cmd.Context().Done()
			return nil
		},
	}

	return cmd
}
