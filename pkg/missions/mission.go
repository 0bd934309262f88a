package missions

import (
	"fmt"

	"github.com/starlance/starlance/pkg/catalog"
	"github.com/starlance/starlance/pkg/claims"
	"github.com/starlance/starlance/pkg/osd"
	"github.com/starlance/starlance/pkg/scripting"
)

// MissionID is a process-unique nonzero mission instance identifier. 0 is
// reserved and denotes "not yet accepted".
type MissionID uint32

// TargetKind distinguishes marker target families.
type TargetKind int

// Marker target kinds.
const (
	TargetSystem TargetKind = iota
	TargetSpob
)

// String returns the save-format token for the kind.
func (k TargetKind) String() string {
	if k == TargetSpob {
		return "spob"
	}
	return "system"
}

// ParseTargetKind converts a save-format token to a TargetKind.
func ParseTargetKind(s string) (TargetKind, error) {
	switch s {
	case "system":
		return TargetSystem, nil
	case "spob":
		return TargetSpob, nil
	}
	return TargetSystem, fmt.Errorf("unknown target kind %q", s)
}

// Target is a marker target: a system or a spob, referenced by name so saves
// survive catalog reordering.
type Target struct {
	Kind TargetKind
	Name string
}

// Tier is a marker's visual importance tier.
type Tier int

// Marker tiers.
const (
	TierComputer Tier = iota
	TierLow
	TierHigh
	TierPlot
)

var tierNames = map[Tier]string{
	TierComputer: "computer",
	TierLow:      "low",
	TierHigh:     "high",
	TierPlot:     "plot",
}

// String returns the save-format token for the tier.
func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// ParseTier converts a save-format token to a Tier.
func ParseTier(s string) (Tier, error) {
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return TierComputer, fmt.Errorf("unknown marker tier %q", s)
}

// Marker is a map annotation pointing the player at a mission target.
type Marker struct {
	ID     uint32
	Target Target
	Tier   Tier
}

// Mission is a live, stateful occurrence of a template, bound to its own
// scripting environment.
type Mission struct {
	// ID is the process-unique identifier; 0 until truly accepted or
	// restored.
	ID MissionID

	// Template is the back-reference to the immutable template. Never
	// owned, never mutated.
	Template *catalog.Template

	// Title, Desc and Reward are scripting-set metadata.
	Title  string
	Desc   string
	Reward string

	// RewardValue is the numeric reward, when the script sets one.
	RewardValue int64

	// Markers are the mission's map annotations.
	Markers []Marker

	// Cargo lists linked cargo instance ids. The cargo lives in the player
	// inventory; its lifetime is tied to this mission.
	Cargo []uint64

	// OSD is the objectives widget id, 0 if none.
	OSD osd.ID

	// Claims is the claim set acquired during creation, nil if none.
	Claims *claims.Set

	// Accepted is true once the accept entry point ran to completion and
	// the player took the mission.
	Accepted bool

	// env is the exclusively-owned scripting environment.
	env *scripting.Env

	// finished is set when the script requested an early finish.
	finished bool

	// finishedDone is set when the finish was a proper completion, which
	// permanently records unique templates.
	finishedDone bool

	// deleted is set when the mission tore itself down mid-run; the caller
	// must not touch the instance further.
	deleted bool

	mgr *Manager
}

// Env returns the mission's scripting environment.
func (m *Mission) Env() *scripting.Env {
	return m.env
}

// Deleted reports whether the mission removed itself mid-run.
func (m *Mission) Deleted() bool {
	return m.deleted
}

// AddMarker attaches a marker. If explicitID is nil, the id is assigned as
// one past the highest existing marker id.
func (m *Mission) AddMarker(explicitID *uint32, target Target, tier Tier) uint32 {
	var id uint32
	if explicitID != nil {
		id = *explicitID
	} else {
		for _, mk := range m.Markers {
			if mk.ID >= id {
				id = mk.ID + 1
			}
		}
	}
	m.Markers = append(m.Markers, Marker{ID: id, Target: target, Tier: tier})
	return id
}

// RemoveMarker removes a marker by id. Reports whether one was removed.
func (m *Mission) RemoveMarker(id uint32) bool {
	for i, mk := range m.Markers {
		if mk.ID == id {
			m.Markers = append(m.Markers[:i], m.Markers[i+1:]...)
			return true
		}
	}
	return false
}

// LinkCargo ties a cargo instance's lifetime to this mission.
func (m *Mission) LinkCargo(cargoID uint64) {
	m.Cargo = append(m.Cargo, cargoID)
}

// UnlinkCargo removes a cargo link without touching the inventory. Reports
// whether the link existed.
func (m *Mission) UnlinkCargo(cargoID uint64) bool {
	for i, id := range m.Cargo {
		if id == cargoID {
			m.Cargo = append(m.Cargo[:i], m.Cargo[i+1:]...)
			return true
		}
	}
	return false
}
