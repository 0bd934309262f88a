package commands

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.starlark.net/starlark"

	"github.com/starlance/starlance/pkg/catalog"
	"github.com/starlance/starlance/pkg/conditional"
	"github.com/starlance/starlance/pkg/config"
	"github.com/starlance/starlance/pkg/missions"
	"github.com/starlance/starlance/pkg/telemetry"
	"github.com/starlance/starlance/pkg/universe"
)

// engine bundles everything a command needs after bootstrap.
type engine struct {
	cfg     *config.Config
	tel     *telemetry.Telemetry
	uni     *universe.Universe
	cat     *catalog.Catalog
	mgr     *missions.Manager
	watcher *catalog.Watcher
}

// loadEngine performs the full bootstrap: config, telemetry, universe,
// conditional environment, catalog, manager. Conditional predicates compile
// during LoadAll, so the player module must be bound before it runs.
func loadEngine(ctx context.Context) (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	uni, err := universe.Load(cfg.UniversePath)
	if err != nil {
		return nil, fmt.Errorf("loading universe: %w", err)
	}

	env, err := loadConditionalEnv(cfg.EnvPath)
	if err != nil {
		return nil, err
	}
	eval := conditional.NewEvaluator(env, tel.Logger)

	cat := catalog.New(cfg.MissionsDir, uni, eval, tel.Logger)
	player := missions.NewPlayer("")
	mgr := missions.NewManager(cat, uni, player, eval, tel, missions.Config{
		Seed:           cfg.Seed,
		MaxScriptSteps: cfg.MaxScriptSteps,
	})
	eval.Bind(missions.PlayerEnv(mgr))

	if err := cat.LoadAll(); err != nil {
		return nil, fmt.Errorf("loading missions: %w", err)
	}

	eng := &engine{cfg: cfg, tel: tel, uni: uni, cat: cat, mgr: mgr}
	if cfg.Watch {
		if eng.watcher, err = cat.Watch(ctx); err != nil {
			return nil, fmt.Errorf("starting watcher: %w", err)
		}
	}
	return eng, nil
}

// loadConfig honors the global flags: an explicit --config wins, otherwise
// defaults apply. --verbose and --json override the file.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Telemetry.Logging.Format = "json"
	}
	// Commands are one-shot; the metrics listener belongs to long-running
	// embedders.
	cfg.Telemetry.Metrics.Enabled = false
	return cfg, nil
}

// countMissionFiles counts candidate mission files under dir, loadable or
// not.
func countMissionFiles(dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && filepath.Ext(path) == ".star" {
			n++
		}
		return nil
	})
	return n
}

// loadConditionalEnv executes an optional Starlark file and returns its
// globals for use as the shared conditional environment.
func loadConditionalEnv(path string) (starlark.StringDict, error) {
	if path == "" {
		return starlark.StringDict{}, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading conditional environment: %w", err)
	}
	thread := &starlark.Thread{Name: "env"}
	globals, err := starlark.ExecFile(thread, path, src, nil)
	if err != nil {
		return nil, fmt.Errorf("executing conditional environment: %w", err)
	}
	return globals, nil
}
