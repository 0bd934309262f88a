package claims

import (
	"testing"

	"github.com/starlance/starlance/pkg/telemetry"
	"github.com/starlance/starlance/pkg/universe"
)

func newTestRegistry(t *testing.T) (*Registry, *universe.Universe) {
	t.Helper()

	uni := universe.New()
	uni.AddSystem(&universe.System{Name: "Alpha"})
	uni.AddSystem(&universe.System{Name: "Beta"})
	return NewRegistry(uni, telemetry.NewNop().Logger), uni
}

func TestExclusiveBlocksEverything(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first := reg.Create(true)
	first.AddSystem("Alpha")
	if !first.Test() {
		t.Fatal("first claim should pass on empty registry")
	}
	first.Activate()

	second := reg.Create(true)
	second.AddSystem("Alpha")
	if second.Test() {
		t.Error("second exclusive claim should conflict")
	}

	shared := reg.Create(false)
	shared.AddSystem("Alpha")
	if shared.Test() {
		t.Error("shared claim should conflict with active exclusive")
	}
}

func TestSharedClaimsCoexist(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first := reg.Create(false)
	first.AddSystem("Alpha")
	first.Activate()

	second := reg.Create(false)
	second.AddSystem("Alpha")
	if !second.Test() {
		t.Error("shared claims on the same system should coexist")
	}
	second.Activate()

	exclusive := reg.Create(true)
	exclusive.AddSystem("Alpha")
	if exclusive.Test() {
		t.Error("exclusive claim should conflict with active shared claims")
	}

	// Both shared claims must be gone before an exclusive can succeed.
	first.Destroy()
	if exclusive.Test() {
		t.Error("one remaining shared claim should still conflict")
	}
	second.Destroy()
	if !exclusive.Test() {
		t.Error("released registry should accept the exclusive claim")
	}
}

func TestTestDoesNotMutate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	probe := reg.Create(true)
	probe.AddSystem("Alpha")
	probe.Test()
	probe.Test()

	other := reg.Create(true)
	other.AddSystem("Alpha")
	if !other.Test() {
		t.Error("Test must not take reservations")
	}
}

func TestStringTargets(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first := reg.Create(true)
	first.AddString("boss-fight")
	first.Activate()

	second := reg.Create(true)
	second.AddString("boss-fight")
	if second.Test() {
		t.Error("string targets arbitrate like systems")
	}

	unrelated := reg.Create(true)
	unrelated.AddString("other-event")
	if !unrelated.Test() {
		t.Error("distinct string targets should not conflict")
	}
}

func TestUniverseMirror(t *testing.T) {
	reg, uni := newTestRegistry(t)

	set := reg.Create(true)
	set.AddSystem("Alpha")
	set.Activate()
	if !uni.SystemClaimed("Alpha") {
		t.Error("exclusive claim should mark the system claimed")
	}
	if uni.SystemClaimed("Beta") {
		t.Error("unrelated system should stay unclaimed")
	}

	set.Destroy()
	if uni.SystemClaimed("Alpha") {
		t.Error("destroying the claim should clear the system flag")
	}
}

func TestSharedClaimDoesNotMirror(t *testing.T) {
	reg, uni := newTestRegistry(t)

	set := reg.Create(false)
	set.AddSystem("Alpha")
	set.Activate()
	if uni.SystemClaimed("Alpha") {
		t.Error("shared claims must not mark the system claimed")
	}
	set.Destroy()
}

func TestDestroyIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)

	set := reg.Create(true)
	set.AddSystem("Alpha")
	set.Activate()
	set.Destroy()
	set.Destroy()

	var nilSet *Set
	nilSet.Destroy()
	if !nilSet.Test() {
		t.Error("nil set should test clean")
	}

	fresh := reg.Create(true)
	fresh.AddSystem("Alpha")
	if !fresh.Test() {
		t.Error("double destroy must not corrupt the registry")
	}
}

func TestAddAfterActivateIgnored(t *testing.T) {
	reg, _ := newTestRegistry(t)

	set := reg.Create(true)
	set.AddSystem("Alpha")
	set.Activate()
	set.AddSystem("Beta")

	other := reg.Create(true)
	other.AddSystem("Beta")
	if !other.Test() {
		t.Error("target added after activation must not reserve anything")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	reg, uni := newTestRegistry(t)

	set := reg.Create(true)
	set.AddSystem("Alpha")
	set.AddString("boss-fight")
	set.Activate()

	snap := set.Save()
	set.Destroy()

	restored := reg.Load(snap)
	if !restored.Active() {
		t.Fatal("restored set should be active")
	}
	if !uni.SystemClaimed("Alpha") {
		t.Error("restored exclusive claim should mark the system claimed")
	}

	rival := reg.Create(true)
	rival.AddString("boss-fight")
	if rival.Test() {
		t.Error("restored string reservation should block rivals")
	}

	if reg.Load(nil) != nil {
		t.Error("nil snapshot loads as nil set")
	}
}
