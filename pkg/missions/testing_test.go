package missions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starlance/starlance/pkg/catalog"
	"github.com/starlance/starlance/pkg/conditional"
	"github.com/starlance/starlance/pkg/telemetry"
	"github.com/starlance/starlance/pkg/universe"
)

// newTestManager builds a full manager over a temp catalog written from the
// given filename -> source map. The sampler is seeded for deterministic
// draws.
func newTestManager(t *testing.T, sources map[string]string) *Manager {
	t.Helper()

	dir := t.TempDir()
	for name, src := range sources {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatalf("failed to write mission file: %v", err)
		}
	}

	uni := universe.New()
	uni.AddSystem(&universe.System{Name: "Alpha"})
	uni.AddSystem(&universe.System{Name: "Beta"})
	uni.AddSystem(&universe.System{Name: "Gamma"})
	uni.AddSpob(&universe.Spob{Name: "Caldera Station", System: "Alpha", Faction: 1})
	uni.AddSpob(&universe.Spob{Name: "Harbor Prime", System: "Beta", Faction: 2})
	uni.AddSpob(&universe.Spob{Name: "Quarantine Rock", System: "Gamma", Faction: 1, NoMissions: true})
	uni.AddFaction(&universe.Faction{ID: 1, Name: "Consortium"})
	uni.AddFaction(&universe.Faction{ID: 2, Name: "Free Traders"})

	tel := telemetry.NewNop()
	eval := conditional.NewEvaluator(nil, tel.Logger)
	cat := catalog.New(dir, uni, eval, tel.Logger)
	player := NewPlayer("1")
	mgr := NewManager(cat, uni, player, eval, tel, Config{Seed: 42})
	eval.Bind(PlayerEnv(mgr))

	if err := cat.LoadAll(); err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	return mgr
}

// barTrigger is the common test trigger: at the bar on Caldera Station.
func barTrigger(mgr *Manager) Trigger {
	spob, _ := mgr.uni.GetSpob("Caldera Station")
	sys, _ := mgr.uni.GetSystem("Alpha")
	faction := spob.Faction
	return Trigger{
		Location: catalog.LocationBar,
		Faction:  &faction,
		Spob:     spob,
		System:   sys,
	}
}

// mustLookup resolves a template by name or fails the test.
func mustLookup(t *testing.T, mgr *Manager, name string) *catalog.Template {
	t.Helper()

	tmpl, ok := mgr.catalog.Lookup(name)
	if !ok {
		t.Fatalf("template %q not loaded", name)
	}
	return tmpl
}
