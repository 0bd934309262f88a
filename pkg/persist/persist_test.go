package persist

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starlance/starlance/pkg/catalog"
	"github.com/starlance/starlance/pkg/conditional"
	"github.com/starlance/starlance/pkg/missions"
	"github.com/starlance/starlance/pkg/telemetry"
	"github.com/starlance/starlance/pkg/universe"
)

const courierMission = `# ---
# name: Courier Run
# avail:
#   location: Bar
#   chance: 100
# ---

def create():
    misn.set_title("Courier Run")
    misn.set_desc("Deliver a parcel to Harbor Prime.")
    misn.set_reward("5000 credits")
    misn.accept()
    misn.marker_add("spob", "Harbor Prime", "high")
    misn.osd_create("Courier Run", ["Fly to Harbor Prime", "Land"])
    mem["parcel"] = misn.cargo_add("Parcels")
    mem["stage"] = 2
`

const sentryMission = `# ---
# name: Gamma Sentry
# avail:
#   location: Bar
#   chance: 100
# ---

def create():
    misn.set_title("Gamma Sentry")
    if not misn.claim(["Gamma"]):
        misn.finish(False)
    misn.accept()
`

// newHarness wires a manager over a temp catalog. Called twice per round
// trip test so restore runs against a fresh process image.
func newHarness(t *testing.T, sources map[string]string) (*missions.Manager, *telemetry.Telemetry, *universe.Universe) {
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
	uni.AddFaction(&universe.Faction{ID: 1, Name: "Consortium"})
	uni.AddFaction(&universe.Faction{ID: 2, Name: "Free Traders"})

	tel := telemetry.NewNop()
	eval := conditional.NewEvaluator(nil, tel.Logger)
	cat := catalog.New(dir, uni, eval, tel.Logger)
	player := missions.NewPlayer("1")
	mgr := missions.NewManager(cat, uni, player, eval, tel, missions.Config{Seed: 42})
	eval.Bind(missions.PlayerEnv(mgr))

	if err := cat.LoadAll(); err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	return mgr, tel, uni
}

func startMission(t *testing.T, mgr *missions.Manager, name string) *missions.Mission {
	t.Helper()

	if _, err := mgr.MissionStart(name); err != nil {
		t.Fatalf("failed to start %q: %v", name, err)
	}
	for _, m := range mgr.Live() {
		if m.Template.Name == name {
			return m
		}
	}
	t.Fatalf("%q not on the live list after start", name)
	return nil
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	sources := map[string]string{"courier.star": courierMission}

	mgr, tel, _ := newHarness(t, sources)
	mgr.Player().Chapter = "2"
	mgr.Player().MarkDone("Old Favor")
	orig := startMission(t, mgr, "Courier Run")

	snap, err := New(mgr, tel).Capture(context.Background())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	blob, err := EncodeJSON(snap)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	mgr2, tel2, _ := newHarness(t, sources)
	decoded, err := DecodeJSON(blob)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	failed := New(mgr2, tel2).Restore(context.Background(), decoded)
	if len(failed) != 0 {
		t.Fatalf("expected clean restore, got failures: %v", failed)
	}

	if mgr2.Player().Chapter != "2" {
		t.Errorf("chapter = %q, want 2", mgr2.Player().Chapter)
	}
	if !mgr2.Player().IsDone("Old Favor") {
		t.Error("completed mission list did not survive")
	}
	if len(mgr2.Live()) != 1 {
		t.Fatalf("live missions = %d, want 1", len(mgr2.Live()))
	}

	m := mgr2.Live()[0]
	if m.ID != orig.ID {
		t.Errorf("mission id = %d, want %d", m.ID, orig.ID)
	}
	if m.Title != "Courier Run" || m.Reward != "5000 credits" {
		t.Errorf("metadata did not survive: title=%q reward=%q", m.Title, m.Reward)
	}
	if len(m.Markers) != 1 || m.Markers[0].Target.Name != "Harbor Prime" {
		t.Fatalf("markers did not survive: %+v", m.Markers)
	}
	if m.Markers[0].ID != orig.Markers[0].ID {
		t.Errorf("marker id = %d, want %d", m.Markers[0].ID, orig.Markers[0].ID)
	}

	if len(m.Cargo) != 1 {
		t.Fatalf("cargo links = %d, want 1", len(m.Cargo))
	}
	commodity, ok := mgr2.Player().CargoCommodity(m.Cargo[0])
	if !ok || commodity != "Parcels" {
		t.Errorf("cargo inventory not rebuilt: %q %v", commodity, ok)
	}

	if m.OSD == 0 {
		t.Fatal("osd was not restored")
	}
	entry, ok := mgr2.OSD().Get(m.OSD)
	if !ok {
		t.Fatal("restored osd id not in registry")
	}
	if entry.Title != "Courier Run" || len(entry.Items) != 2 {
		t.Errorf("osd contents did not survive: %+v", entry)
	}

	mem, err := m.Env().Persist()
	if err != nil {
		t.Fatalf("failed to read restored mem: %v", err)
	}
	var plain map[string]interface{}
	if err := json.Unmarshal(mem, &plain); err != nil {
		t.Fatalf("restored mem is not valid json: %v", err)
	}
	if plain["stage"] != float64(2) {
		t.Errorf("mem[stage] = %v, want 2", plain["stage"])
	}
	if plain["parcel"] == nil {
		t.Error("mem[parcel] did not survive")
	}
}

func TestCaptureDoesNotMutate(t *testing.T) {
	mgr, tel, _ := newHarness(t, map[string]string{"courier.star": courierMission})
	startMission(t, mgr, "Courier Run")

	adapter := New(mgr, tel)
	first, err := adapter.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	second, err := adapter.Capture(context.Background())
	if err != nil {
		t.Fatalf("second capture failed: %v", err)
	}
	if len(mgr.Live()) != 1 {
		t.Errorf("capture changed the live list: %d missions", len(mgr.Live()))
	}

	a, _ := EncodeJSON(first)
	b, _ := EncodeJSON(second)
	if string(a) != string(b) {
		t.Error("back to back captures differ")
	}
}

func TestRestoreUnknownTemplate(t *testing.T) {
	sources := map[string]string{"courier.star": courierMission}

	mgr, tel, _ := newHarness(t, sources)
	startMission(t, mgr, "Courier Run")
	snap, err := New(mgr, tel).Capture(context.Background())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	snap.Missions = append(snap.Missions, MissionSnapshot{
		Template: "Retired Plotline",
		ID:       99,
	})

	mgr2, tel2, _ := newHarness(t, sources)
	failed := New(mgr2, tel2).Restore(context.Background(), snap)
	if len(failed) != 1 {
		t.Fatalf("failed loads = %d, want 1", len(failed))
	}
	if failed[0].Template != "Retired Plotline" {
		t.Errorf("failed template = %q", failed[0].Template)
	}
	if !strings.Contains(failed[0].Reason, "no longer exists") {
		t.Errorf("unexpected failure reason: %q", failed[0].Reason)
	}
	if len(mgr2.Live()) != 1 {
		t.Errorf("surviving missions = %d, want 1", len(mgr2.Live()))
	}
}

func TestRestoreCorruptMem(t *testing.T) {
	sources := map[string]string{"courier.star": courierMission}

	mgr, tel, _ := newHarness(t, sources)
	startMission(t, mgr, "Courier Run")
	snap, err := New(mgr, tel).Capture(context.Background())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	snap.Missions[0].Mem = json.RawMessage(`"not a table"`)

	mgr2, tel2, _ := newHarness(t, sources)
	failed := New(mgr2, tel2).Restore(context.Background(), snap)
	if len(failed) != 1 {
		t.Fatalf("failed loads = %d, want 1", len(failed))
	}
	if !strings.Contains(failed[0].Reason, "script state corrupt") {
		t.Errorf("unexpected failure reason: %q", failed[0].Reason)
	}
	if len(mgr2.Live()) != 0 {
		t.Errorf("corrupt mission reached the live list: %d", len(mgr2.Live()))
	}
}

func TestRestoreReactivatesClaims(t *testing.T) {
	sources := map[string]string{"sentry.star": sentryMission}

	mgr, tel, _ := newHarness(t, sources)
	startMission(t, mgr, "Gamma Sentry")
	snap, err := New(mgr, tel).Capture(context.Background())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	mgr2, tel2, uni2 := newHarness(t, sources)
	failed := New(mgr2, tel2).Restore(context.Background(), snap)
	if len(failed) != 0 {
		t.Fatalf("expected clean restore, got failures: %v", failed)
	}

	rival := mgr2.ClaimRegistry().Create(true)
	rival.AddSystem("Gamma")
	if rival.Test() {
		t.Error("restored claim did not block a rival exclusive claim")
	}
	rival.Destroy()

	if !uni2.SystemClaimed("Gamma") {
		t.Error("system claim mark was not rebuilt")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeJSON([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCaptureAfterAcceptAndFinish(t *testing.T) {
	sources := map[string]string{
		"courier.star": courierMission,
		"flash.star": `# ---
# name: Flash Favor
# avail:
#   location: Bar
#   chance: 100
# ---

def create():
    misn.accept()
    misn.finish(True)
`,
	}

	mgr, tel, _ := newHarness(t, sources)
	startMission(t, mgr, "Courier Run")
	if _, err := mgr.MissionStart("Flash Favor"); err != nil {
		t.Fatalf("failed to start Flash Favor: %v", err)
	}

	snap, err := New(mgr, tel).Capture(context.Background())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if len(snap.Missions) != 1 {
		t.Fatalf("captured missions = %d, want 1", len(snap.Missions))
	}
	if snap.Missions[0].Template != "Courier Run" {
		t.Errorf("captured template = %q", snap.Missions[0].Template)
	}
	if !contains(snap.Done, "Flash Favor") {
		t.Error("instant completion not in the done list")
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestRestoreDropsDanglingMarker(t *testing.T) {
	sources := map[string]string{"courier.star": courierMission}

	mgr, tel, _ := newHarness(t, sources)
	startMission(t, mgr, "Courier Run")
	snap, err := New(mgr, tel).Capture(context.Background())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	snap.Missions[0].Markers[0].Target = "Ghost Landing"

	mgr2, tel2, _ := newHarness(t, sources)
	failed := New(mgr2, tel2).Restore(context.Background(), snap)
	if len(failed) != 0 {
		t.Fatalf("expected clean restore, got failures: %v", failed)
	}
	if len(mgr2.Live()) != 1 {
		t.Fatalf("live missions = %d, want 1", len(mgr2.Live()))
	}
	if n := len(mgr2.Live()[0].Markers); n != 0 {
		t.Errorf("dangling marker survived restore: %d markers", n)
	}
}

func TestOSDPriorityOnlySavedWhenOverridden(t *testing.T) {
	sources := map[string]string{
		"courier.star": courierMission,
		"urgent.star": `# ---
# name: Urgent Dispatch
# avail:
#   location: Bar
#   chance: 100
# ---

def create():
    misn.accept()
    misn.osd_create("Urgent Dispatch", ["Hurry"])
    misn.osd_priority(5)
`,
	}

	mgr, tel, _ := newHarness(t, sources)
	startMission(t, mgr, "Courier Run")
	startMission(t, mgr, "Urgent Dispatch")

	snap, err := New(mgr, tel).Capture(context.Background())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	byName := map[string]MissionSnapshot{}
	for _, ms := range snap.Missions {
		byName[ms.Template] = ms
	}
	if p := byName["Courier Run"].OSD.Priority; p != nil {
		t.Errorf("default priority written to snapshot: %d", *p)
	}
	if p := byName["Urgent Dispatch"].OSD.Priority; p == nil || *p != 5 {
		t.Errorf("overridden priority not preserved: %v", p)
	}

	mgr2, tel2, _ := newHarness(t, sources)
	if failed := New(mgr2, tel2).Restore(context.Background(), snap); len(failed) != 0 {
		t.Fatalf("expected clean restore, got failures: %v", failed)
	}
	for _, m := range mgr2.Live() {
		entry, ok := mgr2.OSD().Get(m.OSD)
		if !ok {
			t.Fatalf("%s: restored osd id not in registry", m.Template.Name)
		}
		want := m.Template.Avail.Priority
		if m.Template.Name == "Urgent Dispatch" {
			want = 5
		}
		if entry.Priority != want {
			t.Errorf("%s: restored priority = %d, want %d", m.Template.Name, entry.Priority, want)
		}
	}
}
