// Package persist converts live mission state to and from its durable
// snapshot shape. The adapter owns the round trip only; the stores package
// decides where snapshots rest.
package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/starlance/starlance/pkg/claims"
	"github.com/starlance/starlance/pkg/missions"
	"github.com/starlance/starlance/pkg/telemetry"
)

// MarkerSnapshot is the durable shape of one map marker.
type MarkerSnapshot struct {
	ID     uint32 `json:"id" yaml:"id"`
	Kind   string `json:"type" yaml:"type"`
	Target string `json:"target" yaml:"target"`
	Tier   string `json:"tier" yaml:"tier"`
}

// CargoSnapshot is one linked cargo instance. The commodity name travels
// with the id so inventory can be rebuilt on load.
type CargoSnapshot struct {
	ID        uint64 `json:"id" yaml:"id"`
	Commodity string `json:"commodity" yaml:"commodity"`
}

// OSDSnapshot is the inline objectives widget state. Active is only written
// when it differs from the default first objective; Priority only when it
// differs from the owning template's priority.
type OSDSnapshot struct {
	Title    string   `json:"title" yaml:"title"`
	Items    []string `json:"items" yaml:"items"`
	Active   int      `json:"active,omitempty" yaml:"active,omitempty"`
	Hidden   bool     `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Priority *int     `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// MissionSnapshot is the durable shape of one live mission. The template is
// referenced by name; the script state rides along as the serialized mem
// table.
type MissionSnapshot struct {
	Template    string           `json:"data" yaml:"data"`
	ID          uint32           `json:"id" yaml:"id"`
	Title       string           `json:"title" yaml:"title"`
	Desc        string           `json:"desc" yaml:"desc"`
	Reward      string           `json:"reward" yaml:"reward"`
	RewardValue int64            `json:"reward_value,omitempty" yaml:"reward_value,omitempty"`
	Markers     []MarkerSnapshot `json:"markers,omitempty" yaml:"markers,omitempty"`
	Cargo       []CargoSnapshot  `json:"cargos,omitempty" yaml:"cargos,omitempty"`
	OSD         *OSDSnapshot     `json:"osd,omitempty" yaml:"osd,omitempty"`
	Claims      *claims.Snapshot `json:"claims,omitempty" yaml:"claims,omitempty"`
	Mem         json.RawMessage  `json:"mem,omitempty" yaml:"mem,omitempty"`
}

// Snapshot is a full save document: player progress plus every live
// mission.
type Snapshot struct {
	Chapter  string            `json:"chapter" yaml:"chapter"`
	Done     []string          `json:"done,omitempty" yaml:"done,omitempty"`
	Missions []MissionSnapshot `json:"missions,omitempty" yaml:"missions,omitempty"`
}

// FailedLoad describes one mission a restore could not bring back. The
// remaining missions loaded fine; callers surface the list to the player.
type FailedLoad struct {
	Template string `json:"template" yaml:"template"`
	Reason   string `json:"reason" yaml:"reason"`
}

// Adapter performs the save and load round trips against a manager.
type Adapter struct {
	mgr    *missions.Manager
	tel    *telemetry.Telemetry
	logger *telemetry.Logger
}

// New creates an adapter bound to a manager.
func New(mgr *missions.Manager, tel *telemetry.Telemetry) *Adapter {
	return &Adapter{
		mgr:    mgr,
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("persist"),
	}
}

// Capture produces a snapshot of current state. The manager is not
// mutated.
func (a *Adapter) Capture(ctx context.Context) (*Snapshot, error) {
	_, span := a.tel.Tracer.StartSaveSpan(ctx, "capture")
	defer span.End()

	snap := &Snapshot{
		Chapter: a.mgr.Player().Chapter,
		Done:    a.mgr.Player().Done(),
	}
	for _, m := range a.mgr.Live() {
		if m.ID == 0 {
			continue
		}
		ms, err := a.captureMission(m)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, missions.NewPersistenceError("capture failed", err).
				WithTemplate(m.Template.Name)
		}
		snap.Missions = append(snap.Missions, *ms)
	}
	a.tel.Metrics.RecordSave(len(snap.Missions))
	telemetry.RecordSuccess(span)
	return snap, nil
}

func (a *Adapter) captureMission(m *missions.Mission) (*MissionSnapshot, error) {
	ms := &MissionSnapshot{
		Template:    m.Template.Name,
		ID:          uint32(m.ID),
		Title:       m.Title,
		Desc:        m.Desc,
		Reward:      m.Reward,
		RewardValue: m.RewardValue,
		Claims:      m.Claims.Save(),
	}
	for _, mk := range m.Markers {
		ms.Markers = append(ms.Markers, MarkerSnapshot{
			ID:     mk.ID,
			Kind:   mk.Target.Kind.String(),
			Target: mk.Target.Name,
			Tier:   mk.Tier.String(),
		})
	}
	for _, cargoID := range m.Cargo {
		commodity, ok := a.mgr.Player().CargoCommodity(cargoID)
		if !ok {
			a.logger.WithMissionID(uint32(m.ID)).
				Warnf("linked cargo %d missing from inventory, dropping from save", cargoID)
			continue
		}
		ms.Cargo = append(ms.Cargo, CargoSnapshot{ID: cargoID, Commodity: commodity})
	}
	if m.OSD != 0 {
		if e, ok := a.mgr.OSD().Get(m.OSD); ok {
			ms.OSD = &OSDSnapshot{
				Title:  e.Title,
				Items:  append([]string(nil), e.Items...),
				Active: e.Active,
				Hidden: e.Hidden,
			}
			if e.Priority != m.Template.Avail.Priority {
				p := e.Priority
				ms.OSD.Priority = &p
			}
		}
	}
	mem, err := m.Env().Persist()
	if err != nil {
		return nil, err
	}
	ms.Mem = mem
	return ms, nil
}

// Restore rebuilds live state from a snapshot. Missions that cannot come
// back are skipped and reported; the rest load normally. Claim sets are
// re-activated in list order once every mission is back.
func (a *Adapter) Restore(ctx context.Context, snap *Snapshot) []FailedLoad {
	_, span := a.tel.Tracer.StartSaveSpan(ctx, "restore")
	defer span.End()

	a.mgr.Player().Chapter = snap.Chapter
	a.mgr.Player().RestoreDone(snap.Done)

	var failed []FailedLoad
	for i := range snap.Missions {
		ms := &snap.Missions[i]
		if err := a.restoreMission(ms); err != nil {
			a.tel.Metrics.RecordFailedLoad()
			a.logger.WithTemplate(ms.Template).WithError(err).
				Warn("mission failed to load")
			failed = append(failed, FailedLoad{
				Template: ms.Template,
				Reason:   err.Error(),
			})
			continue
		}
		a.tel.Metrics.RecordRestore()
	}
	a.mgr.ActivateClaims()
	a.mgr.ClearAndRemarkAll()
	telemetry.RecordSuccess(span)
	return failed
}

func (a *Adapter) restoreMission(ms *MissionSnapshot) error {
	t, ok := a.mgr.Catalog().Lookup(ms.Template)
	if !ok {
		return missions.NewLoadError("template no longer exists", nil)
	}
	m, err := a.mgr.NewInstance(t, false)
	if err != nil {
		return err
	}
	m.ID = missions.MissionID(ms.ID)
	m.Title = ms.Title
	m.Desc = ms.Desc
	m.Reward = ms.Reward
	m.RewardValue = ms.RewardValue

	for _, mk := range ms.Markers {
		kind, err := missions.ParseTargetKind(mk.Kind)
		if err != nil {
			a.logger.WithTemplate(ms.Template).Warnf("dropping marker: %s", err)
			continue
		}
		tier, err := missions.ParseTier(mk.Tier)
		if err != nil {
			a.logger.WithTemplate(ms.Template).Warnf("dropping marker: %s", err)
			continue
		}
		var known bool
		if kind == missions.TargetSystem {
			_, known = a.mgr.Universe().GetSystem(mk.Target)
		} else {
			_, known = a.mgr.Universe().GetSpob(mk.Target)
		}
		if !known {
			a.logger.WithTemplate(ms.Template).
				Warnf("dropping marker: target %q no longer exists", mk.Target)
			continue
		}
		id := mk.ID
		m.AddMarker(&id, missions.Target{Kind: kind, Name: mk.Target}, tier)
	}

	for _, c := range ms.Cargo {
		a.mgr.Player().RestoreCargo(c.ID, c.Commodity)
		m.LinkCargo(c.ID)
	}

	if ms.OSD != nil {
		priority := t.Avail.Priority
		if ms.OSD.Priority != nil {
			priority = *ms.OSD.Priority
		}
		m.OSD = a.mgr.OSD().Create(ms.OSD.Title, ms.OSD.Items, priority)
		a.mgr.OSD().SetActive(m.OSD, ms.OSD.Active)
		a.mgr.OSD().SetHidden(m.OSD, ms.OSD.Hidden)
	}

	m.Claims = a.mgr.ClaimRegistry().Load(ms.Claims)

	if len(ms.Mem) > 0 {
		if err := m.Env().Unpersist(ms.Mem); err != nil {
			a.mgr.Cleanup(m)
			return missions.NewPersistenceError("script state corrupt", err)
		}
	}

	a.mgr.InsertRestored(m)
	return nil
}

// EncodeJSON serializes a snapshot for storage.
func EncodeJSON(snap *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeJSON deserializes a stored snapshot.
func DecodeJSON(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}
