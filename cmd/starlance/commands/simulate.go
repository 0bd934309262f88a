package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/starlance/starlance/pkg/catalog"
	"github.com/starlance/starlance/pkg/missions"
)

func newSimulateCommand() *cobra.Command {
	var (
		location string
		spobName string
		sysName  string
		faction  int
		runs     int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate trigger evaluations against the catalog",
		Long: `Evaluate a trigger repeatedly and report which templates were eligible and
how often instances actually spawned. Computer triggers report offers
instead of spawns; nothing is accepted, so no run leaves live state behind.`,
		Example: `  # One bar visit on a spob
  starlance simulate --location Bar --spob "Caldera Station"

  # A thousand system entries, for spawn-rate tuning
  starlance simulate --location Enter --system Gamma --runs 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.tel.Shutdown(cmd.Context())

			loc, err := catalog.ParseLocation(location)
			if err != nil {
				return err
			}

			trig := missions.Trigger{Location: loc}
			if cmd.Flags().Changed("faction") {
				trig.Faction = &faction
			}
			if spobName != "" {
				spob, ok := eng.uni.GetSpob(spobName)
				if !ok {
					return fmt.Errorf("unknown spob %q", spobName)
				}
				trig.Spob = spob
				if sys, ok := eng.uni.GetSystem(spob.System); ok {
					trig.System = sys
				}
			}
			if sysName != "" {
				sys, ok := eng.uni.GetSystem(sysName)
				if !ok {
					return fmt.Errorf("unknown system %q", sysName)
				}
				trig.System = sys
			}

			eligible := eng.mgr.EligibleTemplates(trig)
			fmt.Printf("%d eligible templates\n", len(eligible))
			for _, t := range eligible {
				fmt.Printf("  %s (chance %d, priority %d)\n", t.Name, t.Avail.Chance, t.Avail.Priority)
			}

			spawned := 0
			for i := 0; i < runs; i++ {
				if loc == catalog.LocationComputer {
					offers := eng.mgr.ComputerMissions(cmd.Context(), trig)
					spawned += len(offers)
					eng.mgr.DiscardOffers(offers)
					continue
				}
				spawned += eng.mgr.TriggerRun(cmd.Context(), trig)
				for _, m := range append([]*missions.Mission(nil), eng.mgr.Live()...) {
					eng.mgr.Abort(m)
				}
			}

			log.Info().
				Str("location", location).
				Int("runs", runs).
				Int("spawned", spawned).
				Msg("Simulation complete")

			fmt.Printf("%d runs, %d spawns (%.2f per run)\n", runs, spawned, float64(spawned)/float64(runs))
			return nil
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "trigger location (None, Computer, Bar, Land, Enter)")
	cmd.Flags().StringVar(&spobName, "spob", "", "spob the trigger fires at")
	cmd.Flags().StringVar(&sysName, "system", "", "system the trigger fires in")
	cmd.Flags().IntVar(&faction, "faction", 0, "faction id in control at the trigger point")
	cmd.Flags().IntVar(&runs, "runs", 1, "number of trigger evaluations")
	_ = cmd.MarkFlagRequired("location")

	return cmd
}
