package missions

import (
	"testing"

	"github.com/starlance/starlance/pkg/catalog"
)

const barMission = `# ---
# name: Bar Mission
# avail:
#   location: Bar
#   chance: 100
# ---
def create():
    misn.accept()
`

func TestIsEligibleLocation(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"bar.star": barMission})
	tmpl := mustLookup(t, mgr, "Bar Mission")

	trig := barTrigger(mgr)
	if !mgr.IsEligible(tmpl, trig) {
		t.Error("matching location should be eligible")
	}

	trig.Location = catalog.LocationLand
	if mgr.IsEligible(tmpl, trig) {
		t.Error("location mismatch should reject")
	}
}

func TestIsEligibleSpobFilter(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"pinned.star": `# ---
# name: Pinned
# avail:
#   location: Bar
#   chance: 100
#   spob: Caldera Station
# ---
def create():
    pass
`})
	tmpl := mustLookup(t, mgr, "Pinned")

	trig := barTrigger(mgr)
	if !mgr.IsEligible(tmpl, trig) {
		t.Error("matching spob should be eligible")
	}

	other, _ := mgr.uni.GetSpob("Harbor Prime")
	trig.Spob = other
	if mgr.IsEligible(tmpl, trig) {
		t.Error("wrong spob should reject")
	}

	trig.Spob = nil
	if mgr.IsEligible(tmpl, trig) {
		t.Error("spob filter with no trigger spob should reject")
	}
}

func TestNoMissionsSpobBlocksGenerics(t *testing.T) {
	mgr := newTestManager(t, map[string]string{
		"generic.star": barMission,
		"pinned.star": `# ---
# name: Pinned To Rock
# avail:
#   location: Bar
#   chance: 100
#   spob: Quarantine Rock
# ---
def create():
    pass
`})
	generic := mustLookup(t, mgr, "Bar Mission")
	pinned := mustLookup(t, mgr, "Pinned To Rock")

	rock, _ := mgr.uni.GetSpob("Quarantine Rock")
	sys, _ := mgr.uni.GetSystem("Gamma")
	faction := rock.Faction
	trig := Trigger{Location: catalog.LocationBar, Faction: &faction, Spob: rock, System: sys}

	if mgr.IsEligible(generic, trig) {
		t.Error("generic template must not spawn on a no-missions spob")
	}
	if !mgr.IsEligible(pinned, trig) {
		t.Error("explicitly pinned template overrides the no-missions flag")
	}
}

func TestIsEligibleSystemFilter(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"sys.star": `# ---
# name: System Bound
# avail:
#   location: Enter
#   chance: 100
#   system: Beta
# ---
def create():
    pass
`})
	tmpl := mustLookup(t, mgr, "System Bound")

	beta, _ := mgr.uni.GetSystem("Beta")
	if !mgr.IsEligible(tmpl, Trigger{Location: catalog.LocationEnter, System: beta}) {
		t.Error("matching system should be eligible")
	}

	alpha, _ := mgr.uni.GetSystem("Alpha")
	if mgr.IsEligible(tmpl, Trigger{Location: catalog.LocationEnter, System: alpha}) {
		t.Error("wrong system should reject")
	}
	if mgr.IsEligible(tmpl, Trigger{Location: catalog.LocationEnter}) {
		t.Error("system filter with no trigger system should reject")
	}
}

func TestIsEligibleFactions(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"fac.star": `# ---
# name: Faction Bound
# avail:
#   location: Bar
#   chance: 100
#   factions:
#     - 1
# ---
def create():
    pass
`})
	tmpl := mustLookup(t, mgr, "Faction Bound")

	trig := barTrigger(mgr)
	if !mgr.IsEligible(tmpl, trig) {
		t.Error("listed faction should be eligible")
	}

	other := 2
	trig.Faction = &other
	if mgr.IsEligible(tmpl, trig) {
		t.Error("unlisted faction should reject")
	}

	trig.Faction = nil
	if mgr.IsEligible(tmpl, trig) {
		t.Error("faction filter with unknown trigger faction should reject")
	}
}

func TestFactionWildcard(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"bar.star": barMission})
	tmpl := mustLookup(t, mgr, "Bar Mission")

	trig := barTrigger(mgr)
	trig.Faction = nil
	if !mgr.IsEligible(tmpl, trig) {
		t.Error("empty faction set matches any trigger faction")
	}
}

func TestChapterGate(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"ch.star": `# ---
# name: Chaptered
# avail:
#   location: Bar
#   chance: 100
#   chapter: "[12]"
# ---
def create():
    pass
`})
	tmpl := mustLookup(t, mgr, "Chaptered")
	trig := barTrigger(mgr)

	mgr.player.Chapter = "1"
	if !mgr.IsEligible(tmpl, trig) {
		t.Error("chapter 1 should match [12]")
	}
	mgr.player.Chapter = "3"
	if mgr.IsEligible(tmpl, trig) {
		t.Error("chapter 3 should not match [12]")
	}
}

func TestUniqueGate(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"u.star": `# ---
# name: Once Only
# unique: true
# avail:
#   location: Bar
#   chance: 100
# ---
def create():
    misn.accept()
`})
	tmpl := mustLookup(t, mgr, "Once Only")
	trig := barTrigger(mgr)

	if !mgr.IsEligible(tmpl, trig) {
		t.Fatal("fresh unique template should be eligible")
	}

	// A live instance blocks further spawns.
	m, err := mgr.NewInstance(tmpl, false)
	if err != nil {
		t.Fatalf("instance failed: %v", err)
	}
	if outcome := mgr.RunCreate(m); outcome != OutcomeOK {
		t.Fatalf("create outcome %d", outcome)
	}
	if !m.Accepted {
		t.Fatal("mission should have accepted itself")
	}
	if mgr.IsEligible(tmpl, trig) {
		t.Error("running unique template should be ineligible")
	}

	// Completion blocks it forever.
	mgr.Finish(m, true)
	if !mgr.player.IsDone("Once Only") {
		t.Fatal("finish(done) should record completion")
	}
	if mgr.IsEligible(tmpl, trig) {
		t.Error("completed unique template should be ineligible")
	}
}

func TestConditionalGate(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"cond.star": `# ---
# name: Conditional
# avail:
#   location: Bar
#   chance: 100
#   cond: player.chapter() == "1"
# ---
def create():
    pass
`})
	tmpl := mustLookup(t, mgr, "Conditional")
	trig := barTrigger(mgr)

	if !mgr.IsEligible(tmpl, trig) {
		t.Error("true conditional should pass")
	}
	mgr.player.Chapter = "2"
	if mgr.IsEligible(tmpl, trig) {
		t.Error("false conditional should reject")
	}
}

func TestBrokenConditionalRejectsPermanently(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"b.star": `# ---
# name: Broken Cond
# avail:
#   location: Bar
#   chance: 100
#   cond: "undefined_name > 0"
# ---
def create():
    pass
`})
	tmpl := mustLookup(t, mgr, "Broken Cond")
	if mgr.IsEligible(tmpl, barTrigger(mgr)) {
		t.Error("uncompilable conditional must reject")
	}
}

func TestPrerequisiteGate(t *testing.T) {
	mgr := newTestManager(t, map[string]string{"p.star": `# ---
# name: Sequel
# avail:
#   location: Bar
#   chance: 100
#   done: Original
# ---
def create():
    pass
`})
	tmpl := mustLookup(t, mgr, "Sequel")
	trig := barTrigger(mgr)

	if mgr.IsEligible(tmpl, trig) {
		t.Error("unmet prerequisite should reject")
	}
	mgr.player.MarkDone("Original")
	if !mgr.IsEligible(tmpl, trig) {
		t.Error("met prerequisite should pass")
	}
}

func TestEligibleTemplatesPriorityOrder(t *testing.T) {
	mgr := newTestManager(t, map[string]string{
		"a.star": `# ---
# name: Background Noise
# avail:
#   location: Bar
#   chance: 100
#   priority: 80
# ---
def create():
    pass
`,
		"b.star": `# ---
# name: Main Plot
# avail:
#   location: Bar
#   chance: 100
#   priority: 5
# ---
def create():
    pass
`})

	eligible := mgr.EligibleTemplates(barTrigger(mgr))
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible, got %d", len(eligible))
	}
	if eligible[0].Name != "Main Plot" || eligible[1].Name != "Background Noise" {
		t.Errorf("wrong priority order: %s, %s", eligible[0].Name, eligible[1].Name)
	}
}
