package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/starlance/starlance/pkg/persist"
	"github.com/starlance/starlance/pkg/stores"
)

func newSaveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Inspect the save database",
	}
	cmd.AddCommand(newSaveListCommand())
	cmd.AddCommand(newSaveShowCommand())
	return cmd
}

func newSaveListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List save slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			saves, err := store.ListSaves(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}
			for _, s := range saves {
				fmt.Printf("%s\t%d missions\t%s\n", s.Slot, s.MissionCount, s.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum slots to list")

	return cmd
}

func newSaveShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <slot>",
		Short: "Show a save slot's document",
		Long: `Print a save document as YAML for inspection, including every mission's
markers, claims and serialized script state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetSave(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				_, err := os.Stdout.Write(rec.Document)
				if err == nil {
					fmt.Println()
				}
				return err
			}

			snap, err := persist.DecodeJSON(rec.Document)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(snap)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}

	return cmd
}

// openStore opens the configured save database, ready for queries.
func openStore(cmd *cobra.Command) (*stores.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("no save database configured")
	}
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            cfg.Store.Path,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime.Duration,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(cmd.Context()); err != nil {
		return nil, err
	}
	if err := store.Migrate(cmd.Context()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
