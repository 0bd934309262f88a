package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starlance/starlance/pkg/conditional"
	"github.com/starlance/starlance/pkg/telemetry"
	"github.com/starlance/starlance/pkg/universe"
)

func testUniverse(t *testing.T) *universe.Universe {
	t.Helper()

	uni := universe.New()
	uni.AddSystem(&universe.System{Name: "Alpha"})
	uni.AddSpob(&universe.Spob{Name: "Caldera Station", System: "Alpha", Faction: 1})
	return uni
}

func newTestCatalog(t *testing.T, dir string) *Catalog {
	t.Helper()

	tel := telemetry.NewNop()
	eval := conditional.NewEvaluator(nil, tel.Logger)
	return New(dir, testUniverse(t), eval, tel.Logger)
}

func writeMission(t *testing.T, dir, filename, src string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("failed to write mission file: %v", err)
	}
	return path
}

const validMission = `# ---
# name: Test Mission
# avail:
#   location: Bar
#   chance: 30
#   priority: 20
# ---

def create():
    misn.set_title("Test")
`

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "test.star", validMission)

	c := newTestCatalog(t, dir)
	if err := c.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 template, got %d", c.Len())
	}

	tmpl, ok := c.Lookup("Test Mission")
	if !ok {
		t.Fatal("template not found by name")
	}
	if tmpl.Avail.Location != LocationBar {
		t.Errorf("expected Bar location, got %s", tmpl.Avail.Location)
	}
	if tmpl.Avail.Chance != 30 {
		t.Errorf("expected chance 30, got %d", tmpl.Avail.Chance)
	}
	if tmpl.Avail.Priority != 20 {
		t.Errorf("expected priority 20, got %d", tmpl.Avail.Priority)
	}
	if tmpl.Chunk == nil {
		t.Error("script chunk missing")
	}
}

func TestLoadAllSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "good.star", validMission)
	writeMission(t, dir, "noheader.star", "def create():\n    pass\n")
	writeMission(t, dir, "badsyntax.star", `# ---
# name: Broken
# avail:
#   location: Bar
# ---

def create(:
`)

	c := newTestCatalog(t, dir)
	if err := c.LoadAll(); err != nil {
		t.Fatalf("load should tolerate per-file failures: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected only the good template, got %d", c.Len())
	}
}

func TestDuplicateKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "a_first.star", validMission)
	writeMission(t, dir, "b_second.star", validMission)

	c := newTestCatalog(t, dir)
	if err := c.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 template after dedup, got %d", c.Len())
	}
	tmpl, _ := c.Lookup("Test Mission")
	if filepath.Base(tmpl.Filename) != "a_first.star" {
		t.Errorf("expected first-loaded file kept, got %s", tmpl.Filename)
	}
}

func TestPriorityOrdering(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "low.star", `# ---
# name: Later
# avail:
#   location: Bar
#   chance: 10
#   priority: 90
# ---
def create():
    pass
`)
	writeMission(t, dir, "high.star", `# ---
# name: Urgent
# avail:
#   location: Bar
#   chance: 10
#   priority: 5
# ---
def create():
    pass
`)
	writeMission(t, dir, "default.star", validMission)

	c := newTestCatalog(t, dir)
	if err := c.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got := make([]string, 0, c.Len())
	for _, tmpl := range c.Templates() {
		got = append(got, tmpl.Name)
	}
	want := []string{"Urgent", "Test Mission", "Later"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("priority order: got %v, want %v", got, want)
		}
	}
}

func TestDefaultPriority(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "nopri.star", `# ---
# name: No Priority
# avail:
#   location: Bar
#   chance: 10
# ---
def create():
    pass
`)

	c := newTestCatalog(t, dir)
	if err := c.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	tmpl, _ := c.Lookup("No Priority")
	if tmpl.Avail.Priority != defaultPriority {
		t.Errorf("expected default priority %d, got %d", defaultPriority, tmpl.Avail.Priority)
	}
}

func TestHeaderFields(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "full.star", `# ---
# name: Full Header
# unique: true
# avail:
#   location: Computer
#   chance: 250
#   spob: Caldera Station
#   system: Alpha
#   chapter: "[12]"
#   factions:
#     - 1
#     - 3
#   cond: 1 < 2
#   done: Some Other Mission
#   priority: 7
# tags:
#   - story
#   - combat
# ---
def create():
    pass
`)

	c := newTestCatalog(t, dir)
	if err := c.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	tmpl, ok := c.Lookup("Full Header")
	if !ok {
		t.Fatal("template not found")
	}
	if !tmpl.Unique {
		t.Error("unique flag lost")
	}
	if tmpl.Avail.Spob != "Caldera Station" || tmpl.Avail.System != "Alpha" {
		t.Error("spob/system filters lost")
	}
	if tmpl.Avail.Chapter == nil || !tmpl.Avail.Chapter.MatchString("1") {
		t.Error("chapter pattern not compiled")
	}
	if !tmpl.Avail.Factions[1] || !tmpl.Avail.Factions[3] || tmpl.Avail.Factions[2] {
		t.Error("faction set incorrect")
	}
	if tmpl.Avail.Cond == nil {
		t.Error("conditional not compiled")
	}
	if tmpl.Avail.Prerequisite != "Some Other Mission" {
		t.Error("prerequisite lost")
	}
	if !tmpl.HasTag("story") || !tmpl.HasTag("combat") || tmpl.HasTag("other") {
		t.Error("tags incorrect")
	}
}

func TestBrokenChapterAndCondLoadAnyway(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "broken.star", `# ---
# name: Broken Filters
# avail:
#   location: Bar
#   chance: 10
#   chapter: "(["
#   cond: "no_such_name > 1"
# ---
def create():
    pass
`)

	c := newTestCatalog(t, dir)
	if err := c.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	tmpl, ok := c.Lookup("Broken Filters")
	if !ok {
		t.Fatal("template with broken filters should still load")
	}
	if tmpl.Avail.Chapter != nil {
		t.Error("broken chapter pattern should stay nil")
	}
	if tmpl.Avail.Cond != nil {
		t.Error("broken conditional should stay nil")
	}
	if tmpl.Avail.ChapterRaw == "" || tmpl.Avail.CondRaw == "" {
		t.Error("raw fragments should be retained for diagnostics")
	}
}

func TestReloadOne(t *testing.T) {
	dir := t.TempDir()
	path := writeMission(t, dir, "test.star", validMission)

	c := newTestCatalog(t, dir)
	if err := c.LoadAll(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	before, _ := c.Lookup("Test Mission")

	writeMission(t, dir, "test.star", `# ---
# name: Test Mission
# avail:
#   location: Bar
#   chance: 60
#   priority: 20
# ---
def create():
    misn.set_title("Updated")
`)
	if err := c.ReloadOne("Test Mission"); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	after, _ := c.Lookup("Test Mission")
	if before != after {
		t.Error("reload must preserve template pointer identity")
	}
	if after.Avail.Chance != 60 {
		t.Errorf("expected reloaded chance 60, got %d", after.Avail.Chance)
	}

	// A broken rewrite keeps the previous record.
	writeMission(t, dir, "test.star", "garbage")
	if err := c.ReloadOne("Test Mission"); err == nil {
		t.Fatal("expected reload error for broken file")
	}
	kept, _ := c.Lookup("Test Mission")
	if kept.Avail.Chance != 60 {
		t.Error("failed reload must retain the previous record")
	}

	// A rename is rejected.
	writeMission(t, dir, "test.star", `# ---
# name: Renamed Mission
# avail:
#   location: Bar
#   chance: 10
# ---
def create():
    pass
`)
	if err := c.ReloadOne("Test Mission"); err == nil {
		t.Fatal("expected reload error for renamed template")
	}
	_ = path
}

func TestReloadUnknown(t *testing.T) {
	c := newTestCatalog(t, t.TempDir())
	if err := c.ReloadOne("Nobody"); err == nil {
		t.Error("expected error reloading unknown template")
	}
}

func TestExtractHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty file", ""},
		{"no header", "def create():\n    pass\n"},
		{"unterminated header", "# ---\n# name: X\ndef create():\n    pass\n"},
		{"code before header", "x = 1\n# ---\n# name: X\n# ---\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := extractHeader(tt.src); err == nil {
				t.Error("expected header extraction error")
			}
		})
	}
}

func TestParseLocationTokens(t *testing.T) {
	for _, token := range []string{"None", "Computer", "Bar", "Land", "Enter"} {
		loc, err := ParseLocation(token)
		if err != nil {
			t.Errorf("ParseLocation(%q) failed: %v", token, err)
		}
		if loc.String() != token {
			t.Errorf("round trip: %q -> %q", token, loc.String())
		}
	}
	if _, err := ParseLocation("Orbit"); err == nil {
		t.Error("expected error for unknown location")
	}
}
